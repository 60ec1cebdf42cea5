package checksum

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BadgerOps/zarchive/internal/zos"
	"github.com/BadgerOps/zarchive/internal/zos/zostest"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	// Larger than one block so the buffered loop runs more than once.
	data := []byte(strings.Repeat("z", BlockSize*2+17))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d, want 64", len(a))
	}
	b, _ := HashFile(path)
	if a != b {
		t.Error("digest is not stable")
	}
}

func TestUSSFingerprinter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	var fp USSFingerprinter

	if sum, err := fp.Fingerprint(ctx, dir); err != nil || sum != "" {
		t.Errorf("directory fingerprint = %q, %v; want empty", sum, err)
	}
	if sum, err := fp.Fingerprint(ctx, filepath.Join(dir, "missing")); err != nil || sum != "" {
		t.Errorf("missing fingerprint = %q, %v; want empty", sum, err)
	}
}

func TestTrackerChanged(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.tar")
	tr := NewTracker(USSFingerprinter{})

	// Absent before the run: any result counts as a change.
	if err := tr.Snapshot(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if changed, _ := tr.Changed(ctx, path); !changed {
		t.Error("new destination should report changed")
	}

	if err := tr.Snapshot(ctx, path); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if changed, _ := tr.Changed(ctx, path); changed {
		t.Error("identical rewrite should not report changed")
	}

	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if changed, _ := tr.Changed(ctx, path); !changed {
		t.Error("modified destination should report changed")
	}
}

func TestMVSFingerprinter(t *testing.T) {
	ctx := context.Background()
	cat := zostest.NewCatalog()
	cat.Add(zostest.DataSet{Name: "USER.DEST.TRS", Content: []byte("packed")})
	fp := MVSFingerprinter{Catalog: zos.NewClient(cat, zos.Binaries{}, nil)}

	sum, err := fp.Fingerprint(ctx, "USER.DEST.TRS")
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if len(sum) != 64 {
		t.Errorf("digest = %q, want 64 hex chars", sum)
	}

	missing, err := fp.Fingerprint(ctx, "USER.NOPE")
	if err != nil || missing != "" {
		t.Errorf("missing data set fingerprint = %q, %v; want empty", missing, err)
	}
	if n := cat.Invoked("sha256"); n != 1 {
		t.Errorf("sha256 invoked %d times, want 1", n)
	}
}
