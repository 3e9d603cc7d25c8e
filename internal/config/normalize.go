package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeLogging()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.AlignedRoot, err = expandPath(strings.TrimSpace(c.Paths.AlignedRoot)); err != nil {
		return fmt.Errorf("paths.aligned_root: %w", err)
	}
	if c.Paths.ClusterDir, err = expandPath(strings.TrimSpace(c.Paths.ClusterDir)); err != nil {
		return fmt.Errorf("paths.cluster_dir: %w", err)
	}
	if c.Paths.NamesFile, err = expandPath(strings.TrimSpace(c.Paths.NamesFile)); err != nil {
		return fmt.Errorf("paths.names_file: %w", err)
	}
	for i, file := range c.Environment.RequiredFiles {
		if c.Environment.RequiredFiles[i], err = expandPath(strings.TrimSpace(file)); err != nil {
			return fmt.Errorf("environment.required_files[%d]: %w", i, err)
		}
	}
	return nil
}

func (c *Config) normalizeTools() {
	if len(c.PostProcess) == 0 {
		c.PostProcess = DefaultPostProcess()
	}
	for _, tool := range c.toolRefs() {
		tool.Command = strings.TrimSpace(tool.Command)
		tool.Stdout = strings.TrimSpace(tool.Stdout)
	}
	for i := range c.PostProcess {
		c.PostProcess[i].Name = strings.TrimSpace(c.PostProcess[i].Name)
		c.PostProcess[i].Command = strings.TrimSpace(c.PostProcess[i].Command)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// PostProcessPrefix prefixes post-processing step names in ToolsByName.
const PostProcessPrefix = "postprocess."

type namedTool struct {
	name string
	tool *Tool
}

func (c *Config) namedTools() []namedTool {
	return []namedTool{
		{"create_alignment", &c.Tools.CreateAlignment},
		{"to_stockholm", &c.Tools.ToStockholm},
		{"liftover", &c.Tools.Liftover},
		{"redundancy_filter", &c.Tools.RedundancyFilter},
		{"trim", &c.Tools.Trim},
		{"partial_filter", &c.Tools.PartialFilter},
		{"pfbuild", &c.Tools.Build},
	}
}

func (c *Config) toolRefs() []*Tool {
	named := c.namedTools()
	refs := make([]*Tool, 0, len(named))
	for _, nt := range named {
		refs = append(refs, nt.tool)
	}
	return refs
}

// ToolsByName returns every configured tool keyed by tool name.
// Post-processing steps are keyed "postprocess.<step>".
func (c *Config) ToolsByName() map[string]Tool {
	tools := make(map[string]Tool)
	for _, nt := range c.namedTools() {
		tools[nt.name] = *nt.tool
	}
	for _, step := range c.PostProcess {
		tools[PostProcessPrefix+step.Name] = step.Tool()
	}
	return tools
}

// ToolCommands returns the executable of every tool in ToolsByName.
func (c *Config) ToolCommands() map[string]string {
	commands := make(map[string]string)
	for name, tool := range c.ToolsByName() {
		commands[name] = tool.Command
	}
	return commands
}
