package archive

import (
	"errors"

	"github.com/BadgerOps/zarchive/internal/encoding"
	"github.com/BadgerOps/zarchive/internal/zos"
)

// State describes sources or destination after a run.
type State string

const (
	StatePresent    State = "present"
	StateAbsent     State = "absent"
	StateIncomplete State = "incomplete"
	StateArchive    State = "archive"
	StateCompressed State = "compressed"
)

// SourceSet is the expanded work list of an archive run.
type SourceSet struct {
	Expanded        []string
	ExpandedExclude []string
	// Sources is Expanded minus ExpandedExclude, sorted and de-duplicated.
	Sources []string
}

// Classification partitions Sources by existence.
type Classification struct {
	Targets  []string
	NotFound []string
}

// RemovalKind is the result of removing one archived source.
type RemovalKind string

const (
	Removed       RemovalKind = "removed"
	AlreadyAbsent RemovalKind = "already_absent"
	RemovalFailed RemovalKind = "failed"
)

// RemovalOutcome reports what happened to one source when remove is set.
type RemovalOutcome struct {
	Target  string      `json:"target"`
	Outcome RemovalKind `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
}

// Result is the payload of an archive run. Phases receive a Result and
// return an updated copy.
type Result struct {
	Archived               []string `json:"archived"`
	Dest                   string   `json:"dest"`
	State                  State    `json:"state"`
	DestState              State    `json:"dest_state"`
	Changed                bool     `json:"changed"`
	Missing                []string `json:"missing"`
	Arcroot                string   `json:"arcroot"`
	ExpandedSources        []string `json:"expanded_sources"`
	ExpandedExcludeSources []string `json:"expanded_exclude_sources"`
	encoding.Outcome
	Removal []RemovalOutcome `json:"removal,omitempty"`

	sources SourceSet
	targets []string
	alloc   zos.AllocSpec
}

// Sources returns the work list computed by the expand phase.
func (r Result) Sources() SourceSet { return r.sources }

// Targets returns the sources found by the classify phase.
func (r Result) Targets() []string { return r.targets }

// UnarchiveResult is the payload of an unarchive run.
type UnarchiveResult struct {
	Src      string   `json:"src"`
	DestPath string   `json:"dest_path"`
	Targets  []string `json:"targets"`
	Missing  []string `json:"missing"`
	Changed  bool     `json:"changed"`
	encoding.Outcome
}

func newOutcome() encoding.Outcome {
	return encoding.Outcome{
		Encoded:                []string{},
		FailedOnEncoding:       []string{},
		SkippedEncodingTargets: []string{},
	}
}

func clone(s []string) []string {
	return append([]string{}, s...)
}

// commandFailure wraps a utility error so its rc and output reach the caller.
func commandFailure(err error, format string, args ...any) *Failure {
	f := failf(err, format, args...)
	var ce *zos.CommandError
	if errors.As(err, &ce) {
		f.RC = ce.RC
		f.Stdout = ce.Stdout
		f.Stderr = ce.Stderr
	}
	return f
}
