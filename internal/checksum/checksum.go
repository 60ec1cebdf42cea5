// Package checksum fingerprints archive destinations so a run can report
// whether it changed them.
package checksum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// BlockSize is the read size used when hashing USS files.
const BlockSize = 64 * 1024

// Fingerprinter returns a content digest for target, or "" when target does
// not exist or carries no checksum (directories).
type Fingerprinter interface {
	Fingerprint(ctx context.Context, target string) (string, error)
}

// Tracker remembers the fingerprint taken before an operation.
type Tracker struct {
	fp       Fingerprinter
	original map[string]string
}

// NewTracker returns a Tracker that fingerprints with fp.
func NewTracker(fp Fingerprinter) *Tracker {
	return &Tracker{fp: fp, original: make(map[string]string)}
}

// Snapshot records the current fingerprint of target.
func (t *Tracker) Snapshot(ctx context.Context, target string) error {
	sum, err := t.fp.Fingerprint(ctx, target)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", target, err)
	}
	t.original[target] = sum
	return nil
}

// Original returns the fingerprint recorded by Snapshot.
func (t *Tracker) Original(target string) string {
	return t.original[target]
}

// Changed compares the current fingerprint of target against its snapshot.
// A target with no original fingerprint is always changed.
func (t *Tracker) Changed(ctx context.Context, target string) (bool, error) {
	orig := t.original[target]
	if orig == "" {
		return true, nil
	}
	sum, err := t.fp.Fingerprint(ctx, target)
	if err != nil {
		return false, fmt.Errorf("fingerprint %s: %w", target, err)
	}
	return sum != orig, nil
}

// USSFingerprinter hashes regular files with SHA-256.
type USSFingerprinter struct{}

// Fingerprint implements Fingerprinter.
func (USSFingerprinter) Fingerprint(_ context.Context, target string) (string, error) {
	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", nil
	}
	return HashFile(target)
}

// HashFile streams path through SHA-256 in BlockSize reads.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, BlockSize)); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Catalog is the subset of the zos client the MVS fingerprinter needs.
type Catalog interface {
	Exists(ctx context.Context, name string) (bool, error)
	Checksum(ctx context.Context, name string) (string, error)
}

// MVSFingerprinter asks the remote checksum utility for a data set digest.
type MVSFingerprinter struct {
	Catalog Catalog
}

// Fingerprint implements Fingerprinter.
func (m MVSFingerprinter) Fingerprint(ctx context.Context, target string) (string, error) {
	ok, err := m.Catalog.Exists(ctx, target)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return m.Catalog.Checksum(ctx, target)
}
