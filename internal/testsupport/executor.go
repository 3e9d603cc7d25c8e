package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"famforge/internal/toolexec"
)

// Handler simulates one external tool.
type Handler func(cmd toolexec.Command) (toolexec.Result, error)

// Executor is a scripted toolexec.Executor. Commands are dispatched on their
// name; unscripted commands succeed and write a single line to their stdout
// target when they have one.
type Executor struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []toolexec.Command
}

// NewExecutor returns an Executor with no scripted tools.
func NewExecutor() *Executor {
	return &Executor{handlers: make(map[string]Handler)}
}

// On scripts the tool called name.
func (e *Executor) On(name string, h Handler) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = h
	return e
}

// Run implements toolexec.Executor.
func (e *Executor) Run(_ context.Context, cmd toolexec.Command) (toolexec.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, cmd)
	h := e.handlers[cmd.Name]
	e.mu.Unlock()

	if h != nil {
		return h(cmd)
	}
	if cmd.Stdout != "" {
		return toolexec.Result{}, WriteOutput(cmd, "ok\n")
	}
	return toolexec.Result{}, nil
}

// Calls returns the commands run so far.
func (e *Executor) Calls() []toolexec.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]toolexec.Command(nil), e.calls...)
}

// Count returns how many times the tool called name was run.
func (e *Executor) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Name == name {
			n++
		}
	}
	return n
}

// CountIn returns how many times the tool called name was run inside the
// directory whose base name is dirBase.
func (e *Executor) CountIn(name, dirBase string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.Name == name && filepath.Base(c.Dir) == dirBase {
			n++
		}
	}
	return n
}

// WriteOutput writes content to the command's stdout target.
func WriteOutput(cmd toolexec.Command, content string) error {
	return WriteIn(cmd, cmd.Stdout, content)
}

// WriteIn writes content to name inside the command's directory.
func WriteIn(cmd toolexec.Command, name, content string) error {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(cmd.Dir, name)
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
