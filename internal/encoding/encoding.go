// Package encoding converts the character set of archive sources before
// packing and converts them back afterwards.
package encoding

import (
	"context"
	"fmt"
	"log/slog"
)

// Converter rewrites target in place from one charset to another.
type Converter interface {
	Convert(ctx context.Context, target, from, to string) error
}

// Outcome records what an Encode pass did to each target.
type Outcome struct {
	Encoded                []string `json:"encoded"`
	FailedOnEncoding       []string `json:"failed_on_encoding"`
	SkippedEncodingTargets []string `json:"skipped_encoding_targets"`
}

// RevertError is returned when an encoded target cannot be converted back.
// The target is left in the converted charset.
type RevertError struct {
	Target string
	Err    error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("reverting encoding of %s: %v", e.Target, e.Err)
}

func (e *RevertError) Unwrap() error { return e.Err }

// Adapter drives a Converter over a target list.
type Adapter struct {
	conv   Converter
	logger *slog.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(conv Converter, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{conv: conv, logger: logger}
}

// Encode converts every target not named in skip. A failing target is
// recorded in FailedOnEncoding and the rest are still converted.
func (a *Adapter) Encode(ctx context.Context, targets []string, from, to string, skip []string) Outcome {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	out := Outcome{
		Encoded:                []string{},
		FailedOnEncoding:       []string{},
		SkippedEncodingTargets: []string{},
	}
	for _, t := range targets {
		if skipped[t] {
			out.SkippedEncodingTargets = append(out.SkippedEncodingTargets, t)
			continue
		}
		if err := a.conv.Convert(ctx, t, from, to); err != nil {
			a.logger.Warn("encoding failed", "target", t, "from", from, "to", to, "error", err)
			out.FailedOnEncoding = append(out.FailedOnEncoding, t)
			continue
		}
		out.Encoded = append(out.Encoded, t)
	}
	if len(out.FailedOnEncoding) > 0 && len(out.Encoded) > 0 {
		a.logger.Warn("archive will contain mixed encodings",
			"encoded", len(out.Encoded), "failed_on_encoding", out.FailedOnEncoding)
	}
	return out
}

// Revert converts every target in o.Encoded from to back to from. The first
// failure stops the pass and is returned as a *RevertError.
func (a *Adapter) Revert(ctx context.Context, o Outcome, from, to string) error {
	for _, t := range o.Encoded {
		if err := a.conv.Convert(ctx, t, to, from); err != nil {
			return &RevertError{Target: t, Err: err}
		}
		a.logger.Debug("encoding reverted", "target", t)
	}
	return nil
}
