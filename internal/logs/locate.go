package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/services"
	"famforge/internal/toolexec"
)

// LatestRunLog returns the most recently modified famforge-*.log in dir.
func LatestRunLog(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "famforge-*.log"))
	if err != nil {
		return "", fmt.Errorf("list run logs: %w", err)
	}
	var latest string
	var latestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest, latestMod = path, info.ModTime()
		}
	}
	if latest == "" {
		return "", services.Wrap(services.ErrNotFound, "logs", "latest run log", "no run logs in "+dir, nil)
	}
	return latest, nil
}

// StageLog returns the scheduler log of the asynchronous stage rec is in.
// Families outside lift-over and build have no stage log.
func StageLog(cfg *config.Config, rec *family.Record, dir string) (string, bool) {
	var stage config.Stage
	switch rec.Stage {
	case family.StageLiftover:
		stage = cfg.Stages.Liftover
	case family.StageBuild:
		stage = cfg.Stages.Build
	default:
		return "", false
	}
	vars := toolexec.Vars{Family: rec.Family, Cluster: rec.Cluster, Dir: dir}
	name := vars.Expand(stage.LogFile)
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, name)
	}
	return name, true
}
