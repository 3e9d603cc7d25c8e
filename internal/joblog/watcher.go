package joblog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"famforge/internal/config"
)

var exitCodePattern = regexp.MustCompile(`exit code (\d+)`)

// LogRecord is the parsed view of a stage log file.
type LogRecord struct {
	// Present is true when the log exists and is non-empty.
	Present    bool
	Finished   bool
	ErrorLines []string
	// ExitCode is the first exit code named by an error line, or 0.
	ExitCode           int
	IsMemoryLimitError bool
}

// Failed reports whether the job finished with at least one error line.
func (r LogRecord) Failed() bool {
	return r.Finished && len(r.ErrorLines) > 0
}

// Watcher inspects a stage log.
type Watcher interface {
	Inspect(path string) (LogRecord, error)
}

// TextWatcher matches raw log lines against a marker and error patterns.
type TextWatcher struct {
	marker          string
	patterns        []*regexp.Regexp
	memoryLimitCode int
}

// NewTextWatcher compiles the log contract of a configured stage.
func NewTextWatcher(stage config.Stage) (*TextWatcher, error) {
	w := &TextWatcher{
		marker:          strings.TrimRight(stage.FinishedMarker, "\r\n"),
		memoryLimitCode: stage.MemoryLimitExitCode,
	}
	for _, pattern := range stage.ErrorPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile error pattern %q: %w", pattern, err)
		}
		w.patterns = append(w.patterns, re)
	}
	return w, nil
}

// Inspect reads the log at path. A missing log is not an error; it yields a
// record with Present=false.
func (w *TextWatcher) Inspect(path string) (LogRecord, error) {
	var record LogRecord
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return record, nil
		}
		return record, fmt.Errorf("open stage log: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		raw, readErr := reader.ReadString('\n')
		if raw != "" {
			record.Present = true
			w.classify(&record, strings.TrimRight(raw, "\r\n"))
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return record, fmt.Errorf("read stage log: %w", readErr)
		}
	}
	return record, nil
}

func (w *TextWatcher) classify(record *LogRecord, line string) {
	if w.marker != "" && line == w.marker {
		record.Finished = true
		return
	}
	for _, re := range w.patterns {
		if !re.MatchString(line) {
			continue
		}
		record.ErrorLines = append(record.ErrorLines, line)
		if m := exitCodePattern.FindStringSubmatch(line); m != nil {
			code, err := strconv.Atoi(m[1])
			if err == nil {
				if record.ExitCode == 0 {
					record.ExitCode = code
				}
				if w.memoryLimitCode > 0 && code == w.memoryLimitCode {
					record.IsMemoryLimitError = true
				}
			}
		}
		return
	}
}
