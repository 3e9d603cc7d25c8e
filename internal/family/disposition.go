package family

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Disposition is the lifecycle classification of a family.
type Disposition string

const (
	Pending    Disposition = "pending"
	Done       Disposition = "done"
	DoneMerged Disposition = "done_merged"
	Failed     Disposition = "failed"
	Ignored    Disposition = "ignored"
	Function   Disposition = "function"
	DUF        Disposition = "duf"
)

var dispositionDirs = map[Disposition]string{
	Done:       "DONE",
	DoneMerged: "DONE_MERGED",
	Ignored:    "IGNORE",
	Function:   "FUNCTION",
	Failed:     "FAILED",
	DUF:        "DUF",
}

// TerminalDispositions lists every disposition that owns a parent directory,
// in the order directories are searched.
func TerminalDispositions() []Disposition {
	return []Disposition{Done, DoneMerged, Ignored, Function, Failed, DUF}
}

// ParseDisposition accepts a disposition name or its directory name.
func ParseDisposition(value string) (Disposition, error) {
	trimmed := strings.TrimSpace(value)
	if Disposition(strings.ToLower(trimmed)) == Pending {
		return Pending, nil
	}
	for d, dir := range dispositionDirs {
		if strings.EqualFold(trimmed, string(d)) || strings.EqualFold(trimmed, dir) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown disposition %q", value)
}

// Terminal reports whether the disposition ends automated processing.
func (d Disposition) Terminal() bool {
	_, ok := dispositionDirs[d]
	return ok
}

// DirName is the parent directory name for the disposition, or "" for pending.
func (d Disposition) DirName() string {
	return dispositionDirs[d]
}

// Label renders the disposition for humans.
func (d Disposition) Label() string {
	if d == DUF {
		return "DUF"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(d), "_", " "))
}

// Stage is the pipeline step a family is in.
type Stage string

const (
	StageAlignment   Stage = "alignment"
	StageLiftover    Stage = "liftover"
	StageBuild       Stage = "build"
	StagePostProcess Stage = "postprocess"
	StageComplete    Stage = "complete"
)

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageAlignment, StageLiftover, StageBuild, StagePostProcess, StageComplete}
}

// Label renders the stage for humans.
func (s Stage) Label() string {
	if s == StagePostProcess {
		return "Post-processing"
	}
	return cases.Title(language.English).String(string(s))
}
