package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"famforge/internal/config"
)

// Requirement is an external program run by one pipeline stage. Tools run
// through an interpreter (the Pfam perl scripts, for instance) also name the
// script the interpreter loads.
type Requirement struct {
	Name    string
	Stage   string
	Command string
	Script  string
}

// Status reports whether a requirement can be run.
type Status struct {
	Requirement
	// Path is the resolved executable when Available is set.
	Path      string
	Available bool
	Detail    string
}

var toolStages = map[string]string{
	"create_alignment":  "alignment",
	"to_stockholm":      "alignment",
	"liftover":          "liftover",
	"redundancy_filter": "seed preparation",
	"trim":              "seed preparation",
	"partial_filter":    "seed preparation",
	"pfbuild":           "build",
}

var interpreters = map[string]bool{
	"perl": true, "python": true, "python3": true, "sh": true, "bash": true,
}

// FromTools builds one requirement per configured tool, sorted by name.
func FromTools(tools map[string]config.Tool) []Requirement {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]Requirement, 0, len(names))
	for _, name := range names {
		tool := tools[name]
		stage := toolStages[name]
		if strings.HasPrefix(name, config.PostProcessPrefix) {
			stage = "post-processing"
		}
		reqs = append(reqs, Requirement{
			Name:    name,
			Stage:   stage,
			Command: strings.TrimSpace(tool.Command),
			Script:  scriptOf(tool),
		})
	}
	return reqs
}

// scriptOf returns the script an interpreted tool loads, if its first
// argument is a literal file path.
func scriptOf(tool config.Tool) string {
	if !interpreters[filepath.Base(strings.TrimSpace(tool.Command))] || len(tool.Args) == 0 {
		return ""
	}
	first := tool.Args[0]
	if strings.HasPrefix(first, "-") || strings.Contains(first, "{") {
		return ""
	}
	switch filepath.Ext(first) {
	case ".pl", ".pm", ".py", ".sh":
		return first
	}
	return ""
}

// Check resolves every requirement on PATH and checks that interpreted
// scripts exist.
func Check(reqs []Requirement) []Status {
	results := make([]Status, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, check(req))
	}
	return results
}

func check(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "no command configured"
		if req.Stage != "" {
			status.Detail += " for " + req.Stage
		}
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("%s not on PATH", req.Command)
		return status
	}
	if req.Script != "" {
		info, err := os.Stat(req.Script)
		if err != nil {
			status.Detail = fmt.Sprintf("%s script %s not found", filepath.Base(req.Command), req.Script)
			return status
		}
		if info.IsDir() {
			status.Detail = fmt.Sprintf("%s script %s is a directory", filepath.Base(req.Command), req.Script)
			return status
		}
	}
	status.Path = path
	status.Available = true
	return status
}

// Missing returns the statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, st := range statuses {
		if !st.Available {
			missing = append(missing, st)
		}
	}
	return missing
}
