package zos_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/BadgerOps/zarchive/internal/zos"
	"github.com/BadgerOps/zarchive/internal/zos/zostest"
)

func newTestClient(t *testing.T) (*zos.Client, *zostest.Catalog) {
	t.Helper()
	cat := zostest.NewCatalog()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return zos.NewClient(cat, zos.Binaries{}, logger), cat
}

func TestResolveGDS(t *testing.T) {
	client, cat := newTestClient(t)
	cat.Add(zostest.DataSet{Name: "USER.GDG", Type: zos.TypeGDG})
	cat.Add(zostest.DataSet{Name: "USER.GDG.G0001V00", Content: []byte("old")})
	cat.Add(zostest.DataSet{Name: "USER.GDG.G0002V00", Content: []byte("new")})
	cat.Add(zostest.DataSet{Name: "USER.GDG.G0002V00.EXTRA"})
	ctx := context.Background()

	tests := []struct {
		name    string
		want    string
		wantErr error
	}{
		{"USER.GDG(0)", "USER.GDG.G0002V00", nil},
		{"USER.GDG(-1)", "USER.GDG.G0001V00", nil},
		{"USER.GDG(-2)", "", zos.ErrGenerationNotCataloged},
		{"USER.GDG(+1)", "", zos.ErrGenerationNotCataloged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.ResolveGDS(ctx, tt.name)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveGDS(%q): %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("ResolveGDS(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	abs, err := client.ResolveGDS(ctx, "USER.GDG(-1)")
	if err != nil {
		t.Fatal(err)
	}
	if !regexp.MustCompile(`^USER\.GDG\.G\d+V\d+$`).MatchString(abs) {
		t.Errorf("resolved name %q is not an absolute generation", abs)
	}
}

func TestIsRelativeGDS(t *testing.T) {
	tests := map[string]bool{
		"USER.GDG(0)":    true,
		"USER.GDG(-3)":   true,
		"USER.GDG(+1)":   true,
		"USER.GDG(1)":    false,
		"USER.LIB(MEM)":  false,
		"USER.PLAIN.SEQ": false,
	}
	for name, want := range tests {
		if got := zos.IsRelativeGDS(name); got != want {
			t.Errorf("IsRelativeGDS(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestExists(t *testing.T) {
	client, cat := newTestClient(t)
	cat.Add(zostest.DataSet{Name: "USER.SEQ"})
	cat.Add(zostest.DataSet{Name: "USER.LIB", Type: zos.TypePartitioned, Members: map[string][]byte{"MEM1": []byte("x")}})
	cat.Add(zostest.DataSet{Name: "USER.GDG.G0001V00"})
	ctx := context.Background()

	tests := map[string]bool{
		"USER.SEQ":       true,
		"user.seq":       true,
		"USER.SEQ2":      false,
		"USER.LIB(MEM1)": true,
		"USER.LIB(MEM2)": false,
		"USER.GDG(0)":    true,
		"USER.GDG(+1)":   false,
	}
	for name, want := range tests {
		got, err := client.Exists(ctx, name)
		if err != nil {
			t.Fatalf("Exists(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("Exists(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestListWildcard(t *testing.T) {
	client, cat := newTestClient(t)
	cat.Add(zostest.DataSet{Name: "USER.ARCHIVE1.TEST"})
	cat.Add(zostest.DataSet{Name: "USER.ARCHIVE2.TEST"})
	cat.Add(zostest.DataSet{Name: "USER.OTHER.DATA"})

	names, err := client.List(context.Background(), "USER.ARCHIVE*.TEST")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "USER.ARCHIVE1.TEST" || names[1] != "USER.ARCHIVE2.TEST" {
		t.Errorf("List() = %v", names)
	}

	none, err := client.List(context.Background(), "NOBODY.*")
	if err != nil {
		t.Fatalf("List with no matches returned error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no names, got %v", none)
	}
}

func TestInfoAndDelete(t *testing.T) {
	client, cat := newTestClient(t)
	cat.Add(zostest.DataSet{Name: "USER.SEQ", RecordFormat: "FB", RecordLength: 80, Bytes: 4096})
	ctx := context.Background()

	ds, err := client.Info(ctx, "USER.SEQ")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if ds.AllocatedBytes != 4096 || ds.Type != zos.TypeSequential || ds.RecordLength != 80 {
		t.Errorf("unexpected info %+v", ds)
	}

	if err := client.Delete(ctx, "USER.SEQ"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := client.Delete(ctx, "USER.SEQ"); !errors.Is(err, zos.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
	if _, err := client.Info(ctx, "USER.SEQ"); !errors.Is(err, zos.ErrNotFound) {
		t.Errorf("Info after delete err = %v, want ErrNotFound", err)
	}
}

func TestAllocateAndTempName(t *testing.T) {
	client, cat := newTestClient(t)
	ctx := context.Background()

	name, err := client.TempName(ctx, "tmphlq")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Allocate(ctx, zos.AllocSpec{Name: name, SpacePrimary: 10, RecordFormat: "FB", RecordLength: 80}); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, ok := cat.Get(name); !ok {
		t.Fatalf("%s was not allocated", name)
	}
	if err := client.Allocate(ctx, zos.AllocSpec{Name: name}); err == nil {
		t.Error("expected allocating an existing name to fail")
	}
}

func TestUtilityFailureIsCommandError(t *testing.T) {
	client, cat := newTestClient(t)
	cat.Add(zostest.DataSet{Name: "USER.IN"})
	cat.Add(zostest.DataSet{Name: "USER.OUT"})
	cat.Fail("AMATERSE", zos.Output{RC: 12, Stdout: "AMA572E bad input", Stderr: "boom"})

	_, err := client.Terse(context.Background(), zos.TersePack, "USER.IN", "USER.OUT")
	var cmdErr *zos.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandError, got %v", err)
	}
	if cmdErr.RC != 12 || cmdErr.Stdout != "AMA572E bad input" {
		t.Errorf("unexpected error detail %+v", cmdErr)
	}
}
