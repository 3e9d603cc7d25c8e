package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"famforge/internal/coordinator"
	"famforge/internal/family"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	return paint(statusKindColor(kind), base, colorize)
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) color.Attribute {
	switch kind {
	case statusOK:
		return color.FgGreen
	case statusWarn:
		return color.FgYellow
	case statusError:
		return color.FgRed
	default:
		return color.FgBlue
	}
}

// paint colours s when colorize is set. The decision is made by the caller
// from the output stream, not from fatih/color's global stdout check.
func paint(attr color.Attribute, s string, colorize bool) string {
	c := color.New(attr)
	if colorize {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	return []string{paint(color.FgBlue, line, colorize), paint(color.FgBlue, rule, colorize)}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func dispositionMessage(d family.Disposition, reason string) string {
	if reason == "" {
		return d.Label()
	}
	return fmt.Sprintf("%s: %s", d.Label(), reason)
}

// renderSummary prints the end-of-run tallies: a count table followed by the
// failed families of each stage and the families with post-processing
// warnings.
func renderSummary(s coordinator.Summary, colorize bool) string {
	var b strings.Builder
	elapsed := s.Finished.Sub(s.Started).Round(time.Second)
	fmt.Fprintf(&b, "Run %s finished in %s\n", s.RunID, elapsed)

	rows := [][]string{
		{paint(color.FgGreen, "Done", colorize), strconv.Itoa(len(s.Done))},
	}
	for _, stage := range family.Stages() {
		if ids := s.FailedAt(stage); len(ids) > 0 {
			rows = append(rows, []string{
				paint(color.FgRed, "Failed "+strings.ToLower(stage.Label()), colorize),
				strconv.Itoa(len(ids)),
			})
		}
	}
	if len(s.Warnings) > 0 {
		rows = append(rows, []string{paint(color.FgYellow, "With warnings", colorize), strconv.Itoa(len(s.Warnings))})
	}
	if s.Dropped > 0 {
		rows = append(rows, []string{"Dropped", strconv.Itoa(s.Dropped)})
	}
	b.WriteString(renderTable([]string{"Outcome", "Families"}, rows, []columnAlignment{alignLeft, alignRight}))
	b.WriteString("\n")

	for _, stage := range family.Stages() {
		if ids := s.FailedAt(stage); len(ids) > 0 {
			fmt.Fprintf(&b, "%d failed %s: %s\n", len(ids), strings.ToLower(stage.Label()), strings.Join(ids, " "))
		}
	}
	for _, id := range sortedKeys(s.Warnings) {
		fmt.Fprintf(&b, "%s: %s\n", id, strings.Join(s.Warnings[id], "; "))
	}
	return b.String()
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
