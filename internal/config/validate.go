package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validatePostProcess(); err != nil {
		return err
	}
	if err := c.validateStage("liftover", c.Stages.Liftover); err != nil {
		return err
	}
	if err := c.validateStage("build", c.Stages.Build); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateTools() error {
	for _, nt := range c.namedTools() {
		if nt.tool.Command == "" {
			return fmt.Errorf("tools.%s.command must be set", nt.name)
		}
		if nt.tool.TimeoutSeconds < 0 {
			return fmt.Errorf("tools.%s.timeout_seconds must be >= 0", nt.name)
		}
	}
	return nil
}

func (c *Config) validatePostProcess() error {
	seen := make(map[string]struct{}, len(c.PostProcess))
	for i, step := range c.PostProcess {
		if step.Name == "" {
			return fmt.Errorf("postprocess[%d].name must be set", i)
		}
		if step.Command == "" {
			return fmt.Errorf("postprocess.%s.command must be set", step.Name)
		}
		if _, dup := seen[step.Name]; dup {
			return fmt.Errorf("postprocess.%s is defined more than once", step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	return nil
}

func (c *Config) validateStage(name string, stage Stage) error {
	if strings.TrimSpace(stage.LogFile) == "" {
		return fmt.Errorf("stages.%s.log_file must be set", name)
	}
	if strings.TrimSpace(stage.Artifact) == "" {
		return fmt.Errorf("stages.%s.artifact must be set", name)
	}
	if strings.TrimSpace(stage.FinishedMarker) == "" {
		return fmt.Errorf("stages.%s.finished_marker must be set", name)
	}
	if len(stage.ErrorPatterns) == 0 {
		return fmt.Errorf("stages.%s.error_patterns must not be empty", name)
	}
	for _, pattern := range stage.ErrorPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("stages.%s.error_patterns: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	w := c.Workflow
	if w.MaxAttempts < 1 {
		return errors.New("workflow.max_attempts must be at least 1")
	}
	if w.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if w.MaxPollInterval < w.PollInterval {
		return errors.New("workflow.max_poll_interval must be >= workflow.poll_interval")
	}
	if w.IdleWait <= 0 {
		return errors.New("workflow.idle_wait must be positive")
	}
	if w.ConversionAttempts < 1 {
		return errors.New("workflow.conversion_attempts must be at least 1")
	}
	if w.ConversionBackoff < 0 {
		return errors.New("workflow.conversion_backoff must be >= 0")
	}
	if w.StageTimeoutHours < 0 {
		return errors.New("workflow.stage_timeout_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
