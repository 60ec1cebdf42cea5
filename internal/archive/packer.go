package archive

import (
	"context"
	"fmt"

	"github.com/BadgerOps/zarchive/internal/zos"
)

// mvsPacker is implemented by the terse and xmit format variants.
type mvsPacker interface {
	variant
	// defaults are the destination attributes used when none are given.
	defaults() zos.AllocSpec
	pack(ctx context.Context, c *zos.Client, in, out string) error
	unpack(ctx context.Context, c *zos.Client, in, out string) error
}

type terseVariant struct {
	spack bool
}

func (terseVariant) storage() Storage { return StorageMVS }

func (terseVariant) defaults() zos.AllocSpec {
	return zos.AllocSpec{Type: zos.TypeSequential, RecordFormat: "FB", RecordLength: 1024}
}

func (v terseVariant) pack(ctx context.Context, c *zos.Client, in, out string) error {
	mode := zos.TersePack
	if v.spack {
		mode = zos.TerseSpack
	}
	if _, err := c.Terse(ctx, mode, in, out); err != nil {
		return commandFailure(err, "AMATERSE %s of %s into %s failed", mode, in, out)
	}
	return nil
}

func (terseVariant) unpack(ctx context.Context, c *zos.Client, in, out string) error {
	if _, err := c.Terse(ctx, zos.TerseUnpack, in, out); err != nil {
		return commandFailure(err, "AMATERSE UNPACK of %s into %s failed", in, out)
	}
	return nil
}

type xmitVariant struct {
	logDataSet string
}

func (xmitVariant) storage() Storage { return StorageMVS }

func (xmitVariant) defaults() zos.AllocSpec {
	return zos.AllocSpec{Type: zos.TypeSequential, RecordFormat: "FB", RecordLength: 80, BlockSize: 3200}
}

func (v xmitVariant) pack(ctx context.Context, c *zos.Client, in, out string) error {
	res, err := c.Transmit(ctx, in, out, v.logDataSet)
	if err == nil {
		return nil
	}
	f := commandFailure(err, "XMIT of %s into %s failed", in, out)
	if abend, reason, ok := zos.ParseAbend(res.Stdout + "\n" + res.Stderr); ok {
		f.Msg += fmt.Sprintf(" with abend %s reason %s", abend, reason)
		if hint, ok := zos.AbendHint(abend, reason); ok {
			f.Msg += ": " + hint
		}
	}
	return f
}

func (xmitVariant) unpack(ctx context.Context, c *zos.Client, in, out string) error {
	if _, err := c.Receive(ctx, in, out); err != nil {
		return commandFailure(err, "RECEIVE of %s into %s failed", in, out)
	}
	return nil
}

// mergeDefaults fills every attribute spec leaves unset from def.
func mergeDefaults(spec, def zos.AllocSpec) zos.AllocSpec {
	if spec.Type == "" {
		spec.Type = def.Type
	}
	if spec.RecordFormat == "" {
		spec.RecordFormat = def.RecordFormat
	}
	if spec.RecordLength == 0 {
		spec.RecordLength = def.RecordLength
	}
	if spec.BlockSize == 0 {
		spec.BlockSize = def.BlockSize
	}
	return spec
}
