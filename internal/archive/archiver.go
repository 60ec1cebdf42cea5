package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BadgerOps/zarchive/internal/checksum"
	"github.com/BadgerOps/zarchive/internal/encoding"
	"github.com/BadgerOps/zarchive/internal/expand"
	"github.com/BadgerOps/zarchive/internal/zos"
)

// Options are settings shared by every run of an Archiver.
type Options struct {
	// TmpHLQ names temporary data sets when a request does not set tmp_hlq.
	TmpHLQ string
}

// Archiver runs archive and unarchive requests.
type Archiver struct {
	zos    *zos.Client
	opts   Options
	logger *slog.Logger
}

// New creates an Archiver. client may be nil when only USS formats are used.
func New(client *zos.Client, opts Options, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{zos: client, opts: opts, logger: logger}
}

func (a *Archiver) tmpHLQ(req string) string {
	if req != "" {
		return req
	}
	return a.opts.TmpHLQ
}

func (a *Archiver) client() (*zos.Client, error) {
	if a.zos == nil {
		return nil, fmt.Errorf("MVS formats need a z/OS utility client")
	}
	return a.zos, nil
}

// packHandler is the per-storage half of an archive run.
type packHandler interface {
	expander() expand.Expander
	normalize(name string) string
	exists(ctx context.Context, name string) (bool, error)
	destExists(ctx context.Context) (bool, error)
	checkSources(r Result) error
	computeDestSize(ctx context.Context, r Result) (Result, error)
	archiveTargets(ctx context.Context, r Result) (Result, error)
	removeTarget(ctx context.Context, name string) RemovalOutcome
	fixPermissions(ctx context.Context, r Result) error
	destState(ctx context.Context, r Result) (State, error)
	fingerprinter() checksum.Fingerprinter
	converter() encoding.Converter
}

// phase is one step of a run. It returns the updated result.
type phase func(ctx context.Context, r Result) (Result, error)

type archiveRun struct {
	req     Request
	h       packHandler
	tracker *checksum.Tracker
	adapter *encoding.Adapter
	logger  *slog.Logger
}

// Archive packs req.Src into req.Dest. A fatal error is a *Failure; the
// returned Result then holds whatever the run had accumulated.
func (a *Archiver) Archive(ctx context.Context, req Request) (Result, error) {
	res := Result{
		Dest:                   req.Dest,
		Archived:               []string{},
		Missing:                []string{},
		ExpandedSources:        []string{},
		ExpandedExcludeSources: []string{},
		Outcome:                newOutcome(),
		State:                  StatePresent,
		DestState:              StateAbsent,
	}
	if err := req.Validate(); err != nil {
		return res, failf(err, "invalid archive request")
	}
	v, _ := lookupFormat(req.Format)
	h, err := a.newPackHandler(req, v)
	if err != nil {
		return res, failf(err, "invalid archive request")
	}
	res.Dest = h.normalize(req.Dest)

	exists, err := h.destExists(ctx)
	if err != nil {
		return res, failf(err, "checking destination %s", res.Dest)
	}
	if exists && !req.Force {
		return res, failf(ErrDestExists, "%s exists; set force to replace it", res.Dest)
	}

	run := &archiveRun{
		req:     req,
		h:       h,
		tracker: checksum.NewTracker(h.fingerprinter()),
		logger:  a.logger.With("operation", "archive", "format", string(req.Format.Type), "dest", res.Dest),
	}
	if req.Encoding != nil {
		run.adapter = encoding.NewAdapter(h.converter(), a.logger)
	}
	if err := run.tracker.Snapshot(ctx, res.Dest); err != nil {
		return res, failf(err, "fingerprinting %s", res.Dest)
	}

	phases := []struct {
		name string
		fn   phase
	}{
		{"expand", run.expand},
		{"classify", run.classify},
		{"encode", run.encode},
		{"size", h.computeDestSize},
		{"pack", h.archiveTargets},
		{"remove", run.remove},
		{"permissions", run.permissions},
		{"changed", run.changed},
		{"revert", run.revert},
		{"state", run.state},
	}
	for _, p := range phases {
		next, err := p.fn(ctx, res)
		if err != nil {
			run.logger.Error("archive failed", "phase", p.name, "error", err)
			var f *Failure
			if !errors.As(err, &f) {
				f = failf(err, "archive %s phase failed for %s", p.name, res.Dest)
			}
			return next, f
		}
		res = next
	}
	run.logger.Info("archive complete",
		"archived", len(res.Archived),
		"missing", len(res.Missing),
		"dest_state", res.DestState,
		"changed", res.Changed,
	)
	return res, nil
}

func (a *Archiver) newPackHandler(req Request, v variant) (packHandler, error) {
	switch v := v.(type) {
	case ussContainer:
		return newUSSArchive(req, v), nil
	case mvsPacker:
		c, err := a.client()
		if err != nil {
			return nil, err
		}
		return newMVSArchive(req, v, c, a.tmpHLQ(req.TmpHLQ), a.logger), nil
	}
	return nil, fmt.Errorf("format %s has no archive handler", req.Format.Type)
}

func (run *archiveRun) expand(ctx context.Context, r Result) (Result, error) {
	src := make([]string, len(run.req.Src))
	for i, s := range run.req.Src {
		src[i] = run.h.normalize(s)
	}
	exclude := make([]string, len(run.req.Exclude))
	for i, s := range run.req.Exclude {
		exclude[i] = run.h.normalize(s)
	}

	x := run.h.expander()
	expanded, err := x.Expand(ctx, src)
	if err != nil {
		return r, err
	}
	expandedExclude, err := x.Expand(ctx, exclude)
	if err != nil {
		return r, err
	}
	r.sources = SourceSet{
		Expanded:        expanded,
		ExpandedExclude: expandedExclude,
		Sources:         expand.Difference(expanded, expandedExclude),
	}
	r.ExpandedSources = clone(expanded)
	r.ExpandedExcludeSources = clone(expandedExclude)
	return r, run.h.checkSources(r)
}

// classify splits the work list into targets and not-found sources.
func (run *archiveRun) classify(ctx context.Context, r Result) (Result, error) {
	c, err := Classify(ctx, r.sources.Sources, run.h.exists)
	if err != nil {
		return r, err
	}
	for _, n := range c.NotFound {
		run.logger.Warn("source not found", "source", n)
	}
	r.targets = c.Targets
	r.Missing = c.NotFound
	return r, nil
}

// Classify partitions sources with exists. The result always satisfies
// Targets ∪ NotFound == sources with no overlap.
func Classify(ctx context.Context, sources []string, exists func(context.Context, string) (bool, error)) (Classification, error) {
	c := Classification{Targets: []string{}, NotFound: []string{}}
	for _, s := range sources {
		ok, err := exists(ctx, s)
		if err != nil {
			return c, fmt.Errorf("checking %s: %w", s, err)
		}
		if ok {
			c.Targets = append(c.Targets, s)
		} else {
			c.NotFound = append(c.NotFound, s)
		}
	}
	return c, nil
}

func (run *archiveRun) encode(ctx context.Context, r Result) (Result, error) {
	if run.adapter == nil || len(r.targets) == 0 {
		return r, nil
	}
	e := run.req.Encoding
	skip := make([]string, len(e.SkipEncoding))
	for i, s := range e.SkipEncoding {
		skip[i] = run.h.normalize(s)
	}
	r.Outcome = run.adapter.Encode(ctx, r.targets, e.From, e.To, skip)
	return r, nil
}

func (run *archiveRun) remove(ctx context.Context, r Result) (Result, error) {
	if !run.req.Remove {
		return r, nil
	}
	outcomes := make([]RemovalOutcome, 0, len(r.Archived))
	for _, t := range r.Archived {
		o := run.h.removeTarget(ctx, t)
		if o.Outcome == RemovalFailed {
			run.logger.Warn("source not removed", "source", t, "reason", o.Reason)
		}
		outcomes = append(outcomes, o)
	}
	r.Removal = outcomes
	return r, nil
}

func (run *archiveRun) permissions(ctx context.Context, r Result) (Result, error) {
	if run.req.Permissions.empty() || len(r.Archived) == 0 {
		return r, nil
	}
	return r, run.h.fixPermissions(ctx, r)
}

func (run *archiveRun) changed(ctx context.Context, r Result) (Result, error) {
	if len(r.Archived) == 0 {
		return r, nil
	}
	changed, err := run.tracker.Changed(ctx, r.Dest)
	if err != nil {
		return r, err
	}
	r.Changed = changed
	return r, nil
}

func (run *archiveRun) revert(ctx context.Context, r Result) (Result, error) {
	if run.adapter == nil || len(r.Encoded) == 0 {
		return r, nil
	}
	e := run.req.Encoding
	if err := run.adapter.Revert(ctx, revertable(r.Outcome, r.Removal), e.From, e.To); err != nil {
		return r, failf(err, "archive %s was written but a source could not be reverted to %s", r.Dest, e.From)
	}
	return r, nil
}

// revertable drops encoded targets the remove phase already deleted.
func revertable(o encoding.Outcome, removal []RemovalOutcome) encoding.Outcome {
	if len(removal) == 0 {
		return o
	}
	gone := make(map[string]bool, len(removal))
	for _, rm := range removal {
		if rm.Outcome != RemovalFailed {
			gone[rm.Target] = true
		}
	}
	keep := make([]string, 0, len(o.Encoded))
	for _, t := range o.Encoded {
		if !gone[t] {
			keep = append(keep, t)
		}
	}
	o.Encoded = keep
	return o
}

func (run *archiveRun) state(ctx context.Context, r Result) (Result, error) {
	r.State = SourceState(run.req.Remove, len(r.Archived) > 0, r.Removal)
	ds, err := run.h.destState(ctx, r)
	if err != nil {
		return r, err
	}
	r.DestState = ds
	return r, nil
}

// SourceState reports what remains of the sources. Sources that were not
// archived are never removed.
func SourceState(remove, archived bool, removal []RemovalOutcome) State {
	if !remove || !archived {
		return StatePresent
	}
	for _, o := range removal {
		if o.Outcome == RemovalFailed {
			return StateIncomplete
		}
	}
	return StateAbsent
}

// MVSDestState computes the destination state of an MVS run. A missing
// source outranks a successful pack.
func MVSDestState(destExists bool, notFound []string) State {
	switch {
	case !destExists:
		return StateAbsent
	case len(notFound) > 0:
		return StateIncomplete
	default:
		return StateArchive
	}
}

// USSDestState computes the destination state of a USS run.
func USSDestState(dest string, destExists bool, notFound []string) State {
	if !destExists {
		return StateAbsent
	}
	if len(notFound) > 0 {
		return StateIncomplete
	}
	if archiveExtRe.MatchString(dest) {
		return StateArchive
	}
	return StateCompressed
}

func upperAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToUpper(strings.TrimSpace(n))
	}
	return out
}
