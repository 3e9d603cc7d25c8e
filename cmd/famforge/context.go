package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"famforge/internal/config"
	"famforge/internal/logging"
	"famforge/internal/pipeline"
	"famforge/internal/queue"
	"famforge/internal/toolexec"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	dataDirFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// newExecutor is swapped by tests.
	newExecutor func() toolexec.Executor
}

func newCommandContext(configFlag, logLevelFlag, dataDirFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		dataDirFlag:  dataDirFlag,
		newExecutor:  func() toolexec.Executor { return toolexec.NewExecutor() },
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if dir := flagValue(c.dataDirFlag); dir != "" {
			if err := cfg.ApplyDataDir(dir); err != nil {
				c.configErr = err
				return
			}
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// familyConfig returns the config for commands that work on family
// directories, which need an aligned root.
func (c *commandContext) familyConfig() (*config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Paths.AlignedRoot) == "" {
		return nil, errors.New("paths.aligned_root is not set; pass --data-dir or set it in the config file")
	}
	return cfg, nil
}

// runLogger builds the logger for a command that starts or advances families
// and prunes old run logs.
func (c *commandContext) runLogger(cfg *config.Config, runID string) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg, runID, flagValue(c.logLevelFlag))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger = logger.With(logging.String(logging.FieldRunID, runID))
	if pruned := logging.PruneRunLogs(logger, cfg, runID); pruned > 0 {
		logger.Debug("pruned old run logs", logging.Int("count", pruned))
	}
	return logger, nil
}

// commandLogger is the quieter logger for inspection commands.
func (c *commandContext) commandLogger(cfg *config.Config) *slog.Logger {
	level := flagValue(c.logLevelFlag)
	if level == "" {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: cfg.Logging.Format, OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) newPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	return pipeline.New(cfg, c.newExecutor(), pipeline.WithLogger(logger))
}

func (c *commandContext) withStore(fn func(*config.Config, *queue.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func newRunID() string {
	return uuid.NewString()
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
