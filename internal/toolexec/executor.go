package toolexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"famforge/internal/services"
)

const stderrTailBytes = 4096

// NewExecutor returns the Executor that runs commands with os/exec.
func NewExecutor() Executor {
	return commandExecutor{}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "toolexec", "run", "command not configured", nil)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	var (
		out    *os.File
		stdout io.ReadCloser
		err    error
	)
	if c.Stdout != "" {
		target := c.Stdout
		if !filepath.IsAbs(target) && c.Dir != "" {
			target = filepath.Join(c.Dir, target)
		}
		out, err = os.Create(target)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("open stdout target %s: %w", target, err)
		}
		defer out.Close()
		if len(c.Exclude) == 0 {
			cmd.Stdout = out
		} else if stdout, err = cmd.StdoutPipe(); err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
		}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, services.Wrap(services.ErrExternalTool, "toolexec", "start", c.Name, err)
	}

	var copyErr error
	if stdout != nil {
		copyErr = copyFiltered(out, stdout, c.Exclude)
	}
	waitErr := cmd.Wait()
	result := Result{
		ExitCode: exitCode(cmd),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return result, services.Wrap(services.ErrTimeout, "toolexec", "run", fmt.Sprintf("%s timed out after %s", c.Name, c.Timeout), ctx.Err())
	case waitErr != nil:
		msg := fmt.Sprintf("%s exited with code %d", c.Name, result.ExitCode)
		if result.Stderr != "" {
			msg += ": " + result.Stderr
		}
		return result, services.Wrap(services.ErrExternalTool, "toolexec", "run", msg, waitErr)
	case copyErr != nil:
		return result, fmt.Errorf("write %s: %w", c.Stdout, copyErr)
	}
	return result, nil
}

// copyFiltered copies src to dst line by line, dropping lines containing any
// of the exclude substrings.
func copyFiltered(dst io.Writer, src io.Reader, exclude []string) error {
	reader := bufio.NewReader(src)
	writer := bufio.NewWriter(dst)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && !containsAny(line, exclude) {
			if _, werr := writer.WriteString(line); werr != nil {
				_, _ = io.Copy(io.Discard, reader)
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return writer.Flush()
			}
			return err
		}
	}
}

func containsAny(line string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(line, needle) {
			return true
		}
	}
	return false
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = b.data[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}
