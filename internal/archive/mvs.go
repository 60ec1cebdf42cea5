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

// dumpAttrs are the attributes of the temporary ADRDSSU dump data set.
var dumpAttrs = zos.AllocSpec{Type: zos.TypeSequential, RecordFormat: "U", BlockSize: 27998}

type mvsArchive struct {
	req    Request
	packer mvsPacker
	client *zos.Client
	tmpHLQ string
	logger *slog.Logger
}

func newMVSArchive(req Request, p mvsPacker, c *zos.Client, tmpHLQ string, logger *slog.Logger) *mvsArchive {
	return &mvsArchive{req: req, packer: p, client: c, tmpHLQ: tmpHLQ, logger: logger}
}

func (h *mvsArchive) expander() expand.Expander { return expand.NewMVS(h.client, h.logger) }

func (h *mvsArchive) normalize(name string) string { return strings.ToUpper(strings.TrimSpace(name)) }

func (h *mvsArchive) exists(ctx context.Context, name string) (bool, error) {
	return h.client.Exists(ctx, name)
}

func (h *mvsArchive) destExists(ctx context.Context) (bool, error) {
	return h.client.Exists(ctx, h.normalize(h.req.Dest))
}

func (h *mvsArchive) checkSources(r Result) error {
	if len(r.sources.Sources) > 1 && !h.req.Format.Options.UsesADRDSSU() {
		return failf(ErrMultiSourceNeedsADRDSSU, "cannot pack %d sources into %s format %s",
			len(r.sources.Sources), r.Dest, h.req.Format.Type)
	}
	return nil
}

// computeDestSize sizes the destination from the space the targets occupy,
// unless the request already gives a primary space.
func (h *mvsArchive) computeDestSize(ctx context.Context, r Result) (Result, error) {
	spec := mergeDefaults(h.req.DestDataSet.allocSpec(r.Dest), h.packer.defaults())
	if spec.SpacePrimary == 0 && len(r.targets) > 0 {
		var total int64
		for _, t := range r.targets {
			name := t
			if base, _, ok := zos.SplitMember(t); ok {
				name = base
			}
			ds, err := h.client.Info(ctx, name)
			if err != nil {
				return r, fmt.Errorf("sizing %s: %w", t, err)
			}
			total += ds.AllocatedBytes
		}
		spec.SpacePrimary = kilobytes(total)
		spec.SpaceType = "K"
		h.logger.Debug("destination sized from sources", "bytes", total, "space_primary_kb", spec.SpacePrimary)
	}
	r.alloc = spec
	return r, nil
}

// kilobytes rounds bytes up to whole kilobytes, never below one.
func kilobytes(bytes int64) int {
	kb := int((bytes + 1023) / 1024)
	if kb < 1 {
		kb = 1
	}
	return kb
}

func (h *mvsArchive) archiveTargets(ctx context.Context, r Result) (Result, error) {
	if len(r.targets) == 0 {
		return r, nil
	}
	c := h.client
	dest := r.Dest

	// An existing destination without force was refused before any work.
	if h.req.Force {
		if err := c.Delete(ctx, dest); err != nil && !errors.Is(err, zos.ErrNotFound) {
			return r, commandFailure(err, "removing existing destination %s", dest)
		}
	}

	in := r.targets[0]
	if h.req.Format.Options.UsesADRDSSU() {
		tmp, err := c.TempName(ctx, h.tmpHLQ)
		if err != nil {
			return r, commandFailure(err, "naming temporary dump data set")
		}
		spec := dumpAttrs
		spec.Name = tmp
		spec.SpacePrimary = r.alloc.SpacePrimary
		spec.SpaceType = r.alloc.SpaceType
		if err := c.Allocate(ctx, spec); err != nil {
			return r, commandFailure(err, "allocating temporary dump data set %s", tmp)
		}
		defer h.dropTemp(ctx, tmp)

		if _, err := c.Dump(ctx, r.targets, tmp, h.req.Force); err != nil {
			return r, commandFailure(err, "ADRDSSU DUMP of %s failed", strings.Join(r.targets, ", "))
		}
		in = tmp
	}

	if err := c.Allocate(ctx, r.alloc); err != nil {
		return r, commandFailure(err, "allocating destination %s", dest)
	}
	if err := h.packer.pack(ctx, c, in, dest); err != nil {
		h.dropTemp(ctx, dest)
		return r, err
	}
	r.Archived = clone(r.targets)
	return r, nil
}

func (h *mvsArchive) dropTemp(ctx context.Context, name string) {
	if err := h.client.Delete(ctx, name); err != nil && !errors.Is(err, zos.ErrNotFound) {
		h.logger.Warn("temporary data set not deleted", "name", name, "error", err)
	}
}

func (h *mvsArchive) removeTarget(ctx context.Context, name string) RemovalOutcome {
	err := h.client.Delete(ctx, name)
	switch {
	case err == nil:
		return RemovalOutcome{Target: name, Outcome: Removed}
	case errors.Is(err, zos.ErrNotFound):
		return RemovalOutcome{Target: name, Outcome: AlreadyAbsent}
	default:
		return RemovalOutcome{Target: name, Outcome: RemovalFailed, Reason: err.Error()}
	}
}

func (h *mvsArchive) fixPermissions(context.Context, Result) error { return nil }

func (h *mvsArchive) destState(ctx context.Context, r Result) (State, error) {
	exists, err := h.client.Exists(ctx, r.Dest)
	if err != nil {
		return "", err
	}
	return MVSDestState(exists, r.Missing), nil
}

func (h *mvsArchive) fingerprinter() checksum.Fingerprinter {
	return checksum.MVSFingerprinter{Catalog: h.client}
}

func (h *mvsArchive) converter() encoding.Converter { return encoding.NewMVSConverter(h.client) }
