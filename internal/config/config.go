package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	AlignedRoot string `toml:"aligned_root"`
	ClusterDir  string `toml:"cluster_dir"`
	NamesFile   string `toml:"names_file"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Environment describes the external environment a run depends on.
type Environment struct {
	// RequiredFiles must all exist before a run starts (e.g. the pfamrc file).
	RequiredFiles []string `toml:"required_files"`
	// GroupWritable applies g+w recursively to families that reach a terminal state.
	GroupWritable bool `toml:"group_writable"`
}

// Tool describes one external command invocation. Args, Stdout, and the
// command itself may reference {family}, {seed}, {cluster}, and {dir}.
type Tool struct {
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	Stdout         string   `toml:"stdout"`
	Exclude        []string `toml:"exclude"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Tools contains the external commands driven by the pipeline.
type Tools struct {
	CreateAlignment  Tool `toml:"create_alignment"`
	ToStockholm      Tool `toml:"to_stockholm"`
	Liftover         Tool `toml:"liftover"`
	RedundancyFilter Tool `toml:"redundancy_filter"`
	Trim             Tool `toml:"trim"`
	PartialFilter    Tool `toml:"partial_filter"`
	Build            Tool `toml:"pfbuild"`
}

// PostProcessStep is one DESC enrichment or quality-check command run after a
// successful build.
type PostProcessStep struct {
	Name           string   `toml:"name"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	Stdout         string   `toml:"stdout"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Tool returns the step as a plain tool invocation.
func (s PostProcessStep) Tool() Tool {
	return Tool{Command: s.Command, Args: s.Args, Stdout: s.Stdout, TimeoutSeconds: s.TimeoutSeconds}
}

// Stage holds the log contract of an asynchronous external stage.
type Stage struct {
	LogFile             string   `toml:"log_file"`
	Artifact            string   `toml:"artifact"`
	Scratch             []string `toml:"scratch"`
	FinishedMarker      string   `toml:"finished_marker"`
	ErrorPatterns       []string `toml:"error_patterns"`
	MemoryLimitExitCode int      `toml:"memory_limit_exit_code"`
}

// Stages groups the two asynchronous stages.
type Stages struct {
	Liftover Stage `toml:"liftover"`
	Build    Stage `toml:"build"`
}

// Workflow contains retry, polling, and disposition settings.
type Workflow struct {
	MaxAttempts        int  `toml:"max_attempts"`
	PollInterval       int  `toml:"poll_interval"`
	MaxPollInterval    int  `toml:"max_poll_interval"`
	IdleWait           int  `toml:"idle_wait"`
	ConversionAttempts int  `toml:"conversion_attempts"`
	ConversionBackoff  int  `toml:"conversion_backoff"`
	StageTimeoutHours  int  `toml:"stage_timeout_hours"`
	MoveCompleted      bool `toml:"move_completed"`
	WatchLogs          bool `toml:"watch_logs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Run            bool   `toml:"run"`
	Errors         bool   `toml:"errors"`
}

// Config encapsulates all configuration values for famforge.
//
// Configuration sections by subsystem:
//   - Paths: alignment root, cluster files, queue state and logs
//   - Environment: required external files and permission fixups
//   - Tools: alignment, conversion, lift-over, seed preparation and build commands
//   - PostProcess: ordered DESC enrichment and QC commands
//   - Stages: log files, artifacts and failure signatures per asynchronous stage
//   - Workflow: retry limits, polling backoff, stuck cap
//   - Logging: log format and level
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths             `toml:"paths"`
	Environment   Environment       `toml:"environment"`
	Tools         Tools             `toml:"tools"`
	PostProcess   []PostProcessStep `toml:"postprocess"`
	Stages        Stages            `toml:"stages"`
	Workflow      Workflow          `toml:"workflow"`
	Logging       Logging           `toml:"logging"`
	Notifications Notifications     `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/famforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("famforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// ApplyDataDir fills unset alignment paths relative to the directory holding
// the cluster statistics file.
func (c *Config) ApplyDataDir(dataDir string) error {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return errors.New("data directory required")
	}
	abs, err := expandPath(dataDir)
	if err != nil {
		return err
	}
	if c.Paths.AlignedRoot == "" {
		c.Paths.AlignedRoot = filepath.Join(abs, defaultAlignedDirName)
	}
	if c.Paths.ClusterDir == "" {
		c.Paths.ClusterDir = filepath.Join(abs, defaultClusterDirName)
	}
	if c.Paths.NamesFile == "" {
		c.Paths.NamesFile = filepath.Join(abs, defaultNamesFileName)
	}
	return nil
}

// EnsureDirectories creates required directories for coordinator operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir}
	if c.Paths.AlignedRoot != "" {
		dirs = append(dirs, c.Paths.AlignedRoot)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the shared work queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// MaxRetries returns how many re-invocations a stage may receive after its
// first failure.
func (c *Config) MaxRetries() int {
	if c.Workflow.MaxAttempts <= 1 {
		return 0
	}
	return c.Workflow.MaxAttempts - 1
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}
