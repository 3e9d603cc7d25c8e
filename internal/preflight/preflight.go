package preflight

import (
	"context"
	"fmt"
	"strings"

	"famforge/internal/config"
	"famforge/internal/deps"
	"famforge/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks for the given config. Tool lookups
// are reported separately by CheckTools.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, path := range cfg.Environment.RequiredFiles {
		results = append(results, CheckRequiredFile(path))
	}
	results = append(results,
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Aligned root", cfg.Paths.AlignedRoot),
		CheckDirectoryReadable("Cluster directory", cfg.Paths.ClusterDir),
	)
	return results
}

// Verify runs every check and returns a configuration error naming each
// failure. A nil error means the run may start.
func Verify(ctx context.Context, cfg *config.Config) error {
	var problems []string
	for _, result := range RunAll(ctx, cfg) {
		if !result.Passed {
			problems = append(problems, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	for _, status := range deps.Missing(CheckTools(cfg)) {
		problems = append(problems, fmt.Sprintf("tool %s: %s", status.Name, status.Detail))
	}
	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "verify", strings.Join(problems, "; "), nil)
}
