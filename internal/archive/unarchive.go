package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BadgerOps/zarchive/internal/encoding"
	"github.com/BadgerOps/zarchive/internal/safety"
	"github.com/BadgerOps/zarchive/internal/zos"
)

// unpackHandler is the per-storage half of an unarchive run.
type unpackHandler interface {
	normalize(name string) string
	src() string
	destPath() string
	srcExists(ctx context.Context) (bool, error)
	unpack(ctx context.Context, r UnarchiveResult) (UnarchiveResult, error)
	fixPermissions(r UnarchiveResult) error
	encodeTargets(r UnarchiveResult) []string
	removeSource(ctx context.Context) error
	converter() encoding.Converter
}

// Unarchive unpacks req.Src. In list mode nothing is written and Targets
// holds the names the archive contains.
func (a *Archiver) Unarchive(ctx context.Context, req UnarchiveRequest) (UnarchiveResult, error) {
	res := UnarchiveResult{
		Src:     req.Src,
		Targets: []string{},
		Missing: []string{},
		Outcome: newOutcome(),
	}
	if err := req.Validate(); err != nil {
		return res, failf(err, "invalid unarchive request")
	}
	v, _ := lookupFormat(req.Format)
	h, err := a.newUnpackHandler(req, v)
	if err != nil {
		return res, failf(err, "invalid unarchive request")
	}
	res.Src = h.src()
	res.DestPath = h.destPath()
	logger := a.logger.With("operation", "unarchive", "format", string(req.Format.Type), "src", res.Src)

	ok, err := h.srcExists(ctx)
	if err != nil {
		return res, failf(err, "checking %s", res.Src)
	}
	if !ok {
		return res, failf(nil, "%s does not exist", res.Src)
	}

	res, err = h.unpack(ctx, res)
	if err != nil {
		logger.Error("unarchive failed", "error", err)
		var f *Failure
		if !errors.As(err, &f) {
			f = failf(err, "unpacking %s", res.Src)
		}
		return res, f
	}
	for _, m := range res.Missing {
		logger.Warn("included member not in archive", "member", m)
	}
	if req.List {
		logger.Info("archive listed", "members", len(res.Targets))
		return res, nil
	}
	res.Changed = len(res.Targets) > 0

	if err := h.fixPermissions(res); err != nil {
		return res, failf(err, "setting permissions under %s", res.DestPath)
	}
	if req.Encoding != nil {
		adapter := encoding.NewAdapter(h.converter(), a.logger)
		skip := make([]string, len(req.Encoding.SkipEncoding))
		for i, s := range req.Encoding.SkipEncoding {
			skip[i] = h.normalize(s)
		}
		res.Outcome = adapter.Encode(ctx, h.encodeTargets(res), req.Encoding.From, req.Encoding.To, skip)
	}
	if !req.RemoteSrc {
		if err := h.removeSource(ctx); err != nil {
			return res, failf(err, "removing uploaded archive %s", res.Src)
		}
	}
	logger.Info("unarchive complete", "targets", len(res.Targets), "missing", len(res.Missing))
	return res, nil
}

func (a *Archiver) newUnpackHandler(req UnarchiveRequest, v variant) (unpackHandler, error) {
	switch v := v.(type) {
	case ussContainer:
		return newUSSUnarchive(req, v), nil
	case mvsPacker:
		c, err := a.client()
		if err != nil {
			return nil, err
		}
		return &mvsUnarchive{req: req, packer: v, client: c, tmpHLQ: a.tmpHLQ(req.TmpHLQ), logger: a.logger}, nil
	}
	return nil, fmt.Errorf("format %s has no unarchive handler", req.Format.Type)
}

// SelectMembers applies include or exclude to an archive listing. Include
// names absent from the archive are returned as missing.
func SelectMembers(members []safety.Member, include, exclude []string) (selected []safety.Member, missing []string) {
	missing = []string{}
	switch {
	case len(include) > 0:
		want := make(map[string]bool, len(include))
		for _, n := range include {
			want[memberKey(n)] = true
		}
		found := make(map[string]bool)
		for _, m := range members {
			if k := memberKey(m.Name); want[k] {
				selected = append(selected, m)
				found[k] = true
			}
		}
		for _, n := range include {
			if !found[memberKey(n)] {
				missing = append(missing, n)
			}
		}
	case len(exclude) > 0:
		skip := make(map[string]bool, len(exclude))
		for _, n := range exclude {
			skip[memberKey(n)] = true
		}
		for _, m := range members {
			if !skip[memberKey(m.Name)] {
				selected = append(selected, m)
			}
		}
	default:
		selected = members
	}
	return selected, missing
}

func memberKey(name string) string {
	return strings.TrimPrefix(strings.TrimRight(filepath.ToSlash(name), "/"), "./")
}

type ussUnarchive struct {
	req       UnarchiveRequest
	container ussContainer
}

func newUSSUnarchive(req UnarchiveRequest, c ussContainer) *ussUnarchive {
	return &ussUnarchive{req: req, container: c}
}

func (h *ussUnarchive) normalize(name string) string { return name }

func (h *ussUnarchive) src() string { return ussPath(h.req.Src) }

// destPath defaults to the working directory, as running tar there would.
func (h *ussUnarchive) destPath() string {
	if h.req.Dest == "" {
		return ussPath(".")
	}
	return ussPath(h.req.Dest)
}

func (h *ussUnarchive) srcExists(context.Context) (bool, error) {
	info, err := os.Stat(h.src())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%s is a directory", h.src())
	}
	return true, nil
}

func (h *ussUnarchive) unpack(_ context.Context, r UnarchiveResult) (UnarchiveResult, error) {
	rd, err := h.container.open(r.Src)
	if err != nil {
		return r, failf(err, "opening %s archive %s", h.req.Format.Type, r.Src)
	}
	defer func() {
		_ = rd.Close()
	}()

	members, err := rd.members()
	if err != nil {
		return r, failf(err, "reading %s", r.Src)
	}
	selected, missing := SelectMembers(members, h.req.Include, h.req.Exclude)
	r.Missing = missing

	// Every selected member is validated before the first write.
	if _, err := safety.Sanitize(selected, r.DestPath); err != nil {
		return r, failf(err, "refusing to extract %s into %s", r.Src, r.DestPath)
	}
	if h.req.List {
		for _, m := range selected {
			if k := memberKey(m.Name); k != "" && k != "." {
				r.Targets = append(r.Targets, k)
			}
		}
		return r, nil
	}

	if err := os.MkdirAll(r.DestPath, 0o755); err != nil {
		return r, failf(err, "creating %s", r.DestPath)
	}
	keep := make(map[string]bool, len(selected))
	for _, m := range selected {
		keep[m.Name] = true
	}
	err = rd.walk(func(e entry, content io.Reader) error {
		if !keep[e.Name] {
			return nil
		}
		rel, err := extractEntry(r.DestPath, e, content)
		if err != nil {
			return err
		}
		if rel != "" {
			r.Targets = append(r.Targets, rel)
		}
		return nil
	})
	if err != nil {
		return r, failf(err, "extracting %s into %s", r.Src, r.DestPath)
	}
	return r, nil
}

func (h *ussUnarchive) paths(r UnarchiveResult) []string {
	out := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		out[i] = filepath.Join(r.DestPath, filepath.FromSlash(t))
	}
	return out
}

func (h *ussUnarchive) fixPermissions(r UnarchiveResult) error {
	return applyPermissions(h.req.Permissions, h.paths(r))
}

// encodeTargets lists the extracted regular files.
func (h *ussUnarchive) encodeTargets(r UnarchiveResult) []string {
	var files []string
	for _, p := range h.paths(r) {
		if info, err := os.Lstat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	return files
}

func (h *ussUnarchive) removeSource(context.Context) error {
	return os.Remove(h.src())
}

func (h *ussUnarchive) converter() encoding.Converter { return encoding.USSConverter{} }

type mvsUnarchive struct {
	req    UnarchiveRequest
	packer mvsPacker
	client *zos.Client
	tmpHLQ string
	logger *slog.Logger
}

// unpackSpaceFactor scales the packed size when sizing the unpack target.
const unpackSpaceFactor = 4

func (h *mvsUnarchive) normalize(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

func (h *mvsUnarchive) src() string { return h.normalize(h.req.Src) }

func (h *mvsUnarchive) destPath() string {
	if h.req.Dest != "" {
		return h.normalize(h.req.Dest)
	}
	return h.normalize(h.req.DestDataSet.Name)
}

func (h *mvsUnarchive) srcExists(ctx context.Context) (bool, error) {
	return h.client.Exists(ctx, h.src())
}

func (h *mvsUnarchive) adrdssu() bool { return h.req.Format.Options.UsesADRDSSU() }

func (h *mvsUnarchive) unpack(ctx context.Context, r UnarchiveResult) (UnarchiveResult, error) {
	// A plain packed data set holds one data set; listing needs no unpack.
	if h.req.List && !h.adrdssu() {
		r.Targets = []string{r.Src}
		return r, nil
	}
	c := h.client
	info, err := c.Info(ctx, r.Src)
	if err != nil {
		return r, failf(err, "reading attributes of %s", r.Src)
	}
	spec := mergeDefaults(h.req.DestDataSet.allocSpec(""), h.packer.defaults())
	if spec.SpacePrimary == 0 {
		spec.SpacePrimary = kilobytes(info.AllocatedBytes) * unpackSpaceFactor
		spec.SpaceType = "K"
	}

	// Without ADRDSSU the packed data set is unpacked straight into dest.
	direct := !h.adrdssu() && r.DestPath != ""
	target := r.DestPath
	if direct {
		exists, err := c.Exists(ctx, target)
		if err != nil {
			return r, failf(err, "checking %s", target)
		}
		if exists {
			if !h.req.Force {
				return r, failf(ErrDestExists, "%s exists; set force to replace it", target)
			}
			if err := c.Delete(ctx, target); err != nil {
				return r, commandFailure(err, "removing existing %s", target)
			}
		}
	} else {
		target, err = c.TempName(ctx, h.tmpHLQ)
		if err != nil {
			return r, commandFailure(err, "naming temporary data set")
		}
	}
	spec.Name = target
	if err := c.Allocate(ctx, spec); err != nil {
		return r, commandFailure(err, "allocating %s", target)
	}
	keep := false
	defer func() {
		if !keep {
			h.drop(ctx, target)
		}
	}()

	if err := h.packer.unpack(ctx, c, r.Src, target); err != nil {
		return r, err
	}

	if !h.adrdssu() {
		name := target
		if r.DestPath != "" {
			name = r.DestPath
		}
		r.Targets = []string{name}
		// A temporary target becomes the result when no dest was named.
		keep = direct || r.DestPath == ""
		if keep && !direct {
			r.DestPath = target
		}
		return r, nil
	}
	return h.restore(ctx, r, target)
}

func (h *mvsUnarchive) restore(ctx context.Context, r UnarchiveResult, dump string) (UnarchiveResult, error) {
	opts := zos.RestoreOptions{
		Include: upperAll(h.req.Include),
		Exclude: upperAll(h.req.Exclude),
		Volumes: h.req.Format.Options.DestVolumes,
		Force:   h.req.Force,
		NoRun:   h.req.List,
	}
	report, err := h.client.Restore(ctx, dump, opts)
	if err != nil {
		f := commandFailure(err, "ADRDSSU RESTORE from %s failed", r.Src)
		if report != nil {
			if len(report.NotProcessed) > 0 {
				f.Msg += "; not restored: " + strings.Join(report.NotProcessed, ", ")
			}
			if !h.req.List {
				for _, name := range report.Processed {
					h.drop(ctx, name)
				}
			}
		}
		return r, f
	}
	r.Targets = clone(report.Processed)
	r.Missing = missingIncludes(opts.Include, report.Processed)
	return r, nil
}

// missingIncludes returns the literal include names that were not restored.
// Patterns are never reported.
func missingIncludes(include, restored []string) []string {
	got := make(map[string]bool, len(restored))
	for _, n := range restored {
		got[n] = true
	}
	missing := []string{}
	for _, n := range include {
		if !strings.ContainsAny(n, "*%") && !got[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

func (h *mvsUnarchive) drop(ctx context.Context, name string) {
	if err := h.client.Delete(ctx, name); err != nil && !errors.Is(err, zos.ErrNotFound) {
		h.logger.Warn("data set not deleted during cleanup", "name", name, "error", err)
	}
}

func (h *mvsUnarchive) fixPermissions(UnarchiveResult) error { return nil }

func (h *mvsUnarchive) encodeTargets(r UnarchiveResult) []string { return r.Targets }

func (h *mvsUnarchive) removeSource(ctx context.Context) error {
	return h.client.Delete(ctx, h.src())
}

func (h *mvsUnarchive) converter() encoding.Converter { return encoding.NewMVSConverter(h.client) }
