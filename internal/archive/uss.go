package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/BadgerOps/zarchive/internal/checksum"
	"github.com/BadgerOps/zarchive/internal/encoding"
	"github.com/BadgerOps/zarchive/internal/expand"
)

type ussArchive struct {
	req       Request
	container ussContainer
}

func newUSSArchive(req Request, c ussContainer) *ussArchive {
	return &ussArchive{req: req, container: c}
}

func (h *ussArchive) expander() expand.Expander { return expand.USS{} }

func (h *ussArchive) normalize(name string) string { return ussPath(name) }

// ussPath expands a leading ~ and makes the path absolute.
func ussPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func (h *ussArchive) exists(_ context.Context, name string) (bool, error) {
	_, err := os.Lstat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (h *ussArchive) destExists(ctx context.Context) (bool, error) {
	dest := ussPath(h.req.Dest)
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.IsDir() {
		return true, fmt.Errorf("destination %s is a directory", dest)
	}
	return true, nil
}

func (h *ussArchive) checkSources(Result) error { return nil }

func (h *ussArchive) computeDestSize(_ context.Context, r Result) (Result, error) {
	return r, nil
}

// Arcroot is the directory member names are made relative to: the parent of
// a single source, else the deepest directory containing every source.
func Arcroot(targets []string) string {
	if len(targets) == 0 {
		return ""
	}
	if len(targets) == 1 {
		return filepath.Dir(filepath.Clean(targets[0]))
	}
	common := strings.Split(filepath.Clean(targets[0]), string(filepath.Separator))
	for _, t := range targets[1:] {
		parts := strings.Split(filepath.Clean(t), string(filepath.Separator))
		n := 0
		for n < len(common) && n < len(parts) && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}
	root := strings.Join(common, string(filepath.Separator))
	if root == "" {
		root = string(filepath.Separator)
	}
	for _, t := range targets {
		if filepath.Clean(t) == root {
			return filepath.Dir(root)
		}
	}
	return root
}

func (h *ussArchive) archiveTargets(_ context.Context, r Result) (Result, error) {
	if len(r.targets) == 0 {
		return r, nil
	}
	dest := r.Dest
	// Missing sources still widen the root, so member names do not depend on
	// which sources exist.
	r.Arcroot = Arcroot(r.sources.Sources)

	fail := func(err error) (Result, error) {
		r.DestState = StateIncomplete
		return r, &Failure{
			Msg:       fmt.Sprintf("error creating %s archive %s", h.req.Format.Type, dest),
			DestState: StateIncomplete,
			Err:       err,
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail(err)
	}
	pf, err := renameio.NewPendingFile(dest, renameio.WithPermissions(0o644), renameio.WithExistingPermissions())
	if err != nil {
		return fail(err)
	}
	defer func() {
		_ = pf.Cleanup()
	}()

	w, err := h.container.create(pf)
	if err != nil {
		return fail(err)
	}
	skip := map[string]bool{dest: true, pf.Name(): true}
	archived := make([]string, 0, len(r.targets))
	for _, t := range r.targets {
		if err := addTree(w, r.Arcroot, t, skip); err != nil {
			return fail(err)
		}
		archived = append(archived, t)
	}
	if err := w.Close(); err != nil {
		return fail(err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fail(err)
	}
	r.Archived = archived
	return r, nil
}

// addTree adds target and, for directories, everything beneath it depth
// first. Paths in skip are left out.
func addTree(w memberWriter, root, target string, skip map[string]bool) error {
	return filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if skip[path] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return w.add(filepath.ToSlash(rel), path, info)
	})
}

func (h *ussArchive) removeTarget(_ context.Context, name string) RemovalOutcome {
	if _, err := os.Lstat(name); errors.Is(err, fs.ErrNotExist) {
		return RemovalOutcome{Target: name, Outcome: AlreadyAbsent}
	}
	if err := os.RemoveAll(name); err != nil {
		return RemovalOutcome{Target: name, Outcome: RemovalFailed, Reason: err.Error()}
	}
	return RemovalOutcome{Target: name, Outcome: Removed}
}

func (h *ussArchive) fixPermissions(_ context.Context, r Result) error {
	return applyPermissions(h.req.Permissions, []string{r.Dest})
}

func (h *ussArchive) destState(ctx context.Context, r Result) (State, error) {
	_, err := os.Stat(r.Dest)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	return USSDestState(r.Dest, exists, r.Missing), nil
}

func (h *ussArchive) fingerprinter() checksum.Fingerprinter { return checksum.USSFingerprinter{} }

func (h *ussArchive) converter() encoding.Converter { return encoding.USSConverter{} }
