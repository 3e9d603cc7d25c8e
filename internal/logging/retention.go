package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"famforge/internal/config"
)

// PruneRunLogs removes famforge-*.log files in the configured log directory
// that are older than logging.retention_days. The log for keepRunID is never
// removed. A retention of 0 disables pruning.
func PruneRunLogs(logger *slog.Logger, cfg *config.Config, keepRunID string) int {
	if cfg == nil || cfg.Logging.RetentionDays <= 0 {
		return 0
	}
	dir := strings.TrimSpace(cfg.Paths.LogDir)
	if dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	keep := RunLogPath(cfg, keepRunID)
	cutoff := time.Now().AddDate(0, 0, -cfg.Logging.RetentionDays)

	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if matched, err := filepath.Match("famforge-*.log", name); err != nil || !matched {
			continue
		}
		fullPath := filepath.Join(dir, name)
		if fullPath == keep {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(fullPath); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", fullPath),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		pruned++
		if logger != nil {
			logger.Debug("log pruned", String("path", fullPath), String(FieldEventType, "log_pruned"))
		}
	}
	return pruned
}
