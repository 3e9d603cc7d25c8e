package toolexec

import (
	"context"
	"strings"
	"time"

	"famforge/internal/config"
)

// Vars holds the per-family values substituted into tool templates.
type Vars struct {
	Family  string
	Cluster string
	Dir     string
}

// Seed returns the name of the family's seed alignment file.
func (v Vars) Seed() string {
	if v.Family == "" {
		return ""
	}
	return v.Family + "_SEED"
}

// Expand substitutes template placeholders in value.
func (v Vars) Expand(value string) string {
	if !strings.Contains(value, "{") {
		return value
	}
	return strings.NewReplacer(
		"{family}", v.Family,
		"{seed}", v.Seed(),
		"{cluster}", v.Cluster,
		"{dir}", v.Dir,
	).Replace(value)
}

// Command is a fully expanded external invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Stdout  string
	Exclude []string
	Timeout time.Duration
}

// String renders the command roughly as a shell would show it.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	out := strings.Join(parts, " ")
	if c.Stdout != "" {
		out += " > " + c.Stdout
	}
	return out
}

// Result describes a finished command.
type Result struct {
	// ExitCode is -1 when the command never started.
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Expand builds a Command from a configured tool and the family variables.
func Expand(tool config.Tool, vars Vars) Command {
	args := make([]string, 0, len(tool.Args))
	for _, arg := range tool.Args {
		args = append(args, vars.Expand(arg))
	}
	cmd := Command{
		Name:    vars.Expand(strings.TrimSpace(tool.Command)),
		Args:    args,
		Dir:     vars.Dir,
		Stdout:  vars.Expand(strings.TrimSpace(tool.Stdout)),
		Exclude: append([]string(nil), tool.Exclude...),
	}
	if tool.TimeoutSeconds > 0 {
		cmd.Timeout = time.Duration(tool.TimeoutSeconds) * time.Second
	}
	return cmd
}
