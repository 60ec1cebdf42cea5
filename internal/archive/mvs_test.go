package archive

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/BadgerOps/zarchive/internal/zos"
	"github.com/BadgerOps/zarchive/internal/zos/zostest"
)

func newMVSArchiver(t *testing.T, sets ...zostest.DataSet) (*Archiver, *zostest.Catalog, *zos.Client) {
	t.Helper()
	cat := zostest.NewCatalog()
	for _, ds := range sets {
		cat.Add(ds)
	}
	client := zos.NewClient(cat, zos.Binaries{}, testLogger())
	return New(client, Options{}, testLogger()), cat, client
}

func terseADRDSSU() Format {
	return Format{Type: FormatTerse, Options: FormatOptions{UseADRDSSU: true}}
}

func TestMVSMultiSourceNeedsADRDSSU(t *testing.T) {
	a, cat, _ := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.A", Content: []byte("a")},
		zostest.DataSet{Name: "USER.B", Content: []byte("b")},
	)

	_, err := a.Archive(context.Background(), Request{
		Src:    []string{"USER.A", "USER.B"},
		Dest:   "USER.OUT.TRS",
		Format: Format{Type: FormatTerse},
	})
	if !errors.Is(err, ErrMultiSourceNeedsADRDSSU) {
		t.Fatalf("expected ErrMultiSourceNeedsADRDSSU, got %v", err)
	}
	if n := cat.Invoked("AMATERSE"); n != 0 {
		t.Errorf("AMATERSE invoked %d times", n)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"USER.A", "USER.B"}) {
		t.Errorf("catalog = %v", got)
	}
}

func TestMVSTerseADRDSSURoundTrip(t *testing.T) {
	ctx := context.Background()
	a, cat, client := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.SRC1", Content: []byte("one")},
		zostest.DataSet{Name: "USER.SRC2", Content: []byte("two")},
	)

	res, err := a.Archive(ctx, Request{
		Src:    []string{"user.src*"},
		Dest:   "user.arch.trs",
		Format: terseADRDSSU(),
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !reflect.DeepEqual(res.Archived, []string{"USER.SRC1", "USER.SRC2"}) {
		t.Errorf("archived = %v", res.Archived)
	}
	if res.Dest != "USER.ARCH.TRS" || res.DestState != StateArchive || !res.Changed {
		t.Errorf("dest=%s dest_state=%s changed=%v", res.Dest, res.DestState, res.Changed)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"USER.ARCH.TRS", "USER.SRC1", "USER.SRC2"}) {
		t.Errorf("temporary dump left behind: %v", got)
	}

	for _, n := range []string{"USER.SRC1", "USER.SRC2"} {
		if err := client.Delete(ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	ures, err := a.Unarchive(ctx, UnarchiveRequest{
		Src:       "USER.ARCH.TRS",
		Format:    terseADRDSSU(),
		RemoteSrc: true,
	})
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !reflect.DeepEqual(ures.Targets, []string{"USER.SRC1", "USER.SRC2"}) || !ures.Changed {
		t.Errorf("targets = %v changed = %v", ures.Targets, ures.Changed)
	}
	ds, ok := cat.Get("USER.SRC1")
	if !ok || string(ds.Content) != "one" {
		t.Errorf("USER.SRC1 = %q, %v", ds.Content, ok)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"USER.ARCH.TRS", "USER.SRC1", "USER.SRC2"}) {
		t.Errorf("catalog after restore = %v", got)
	}
}

func TestMVSXmitSingleSource(t *testing.T) {
	ctx := context.Background()
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("payload")})

	if _, err := a.Archive(ctx, Request{
		Src:    []string{"USER.SEQ"},
		Dest:   "USER.SEQ.XMIT",
		Format: Format{Type: FormatXmit},
	}); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	dest, ok := cat.Get("USER.SEQ.XMIT")
	if !ok || dest.RecordFormat != "FB" {
		t.Fatalf("destination = %+v, %v", dest, ok)
	}

	res, err := a.Unarchive(ctx, UnarchiveRequest{
		Src:       "USER.SEQ.XMIT",
		Dest:      "USER.SEQ.COPY",
		Format:    Format{Type: FormatXmit},
		RemoteSrc: true,
	})
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !reflect.DeepEqual(res.Targets, []string{"USER.SEQ.COPY"}) || res.DestPath != "USER.SEQ.COPY" {
		t.Errorf("targets = %v dest_path = %s", res.Targets, res.DestPath)
	}
	if cp, ok := cat.Get("USER.SEQ.COPY"); !ok || string(cp.Content) != "payload" {
		t.Errorf("received content = %q, %v", cp.Content, ok)
	}
}

func TestMVSUnarchiveTempBecomesDest(t *testing.T) {
	ctx := context.Background()
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("payload")})
	if _, err := a.Archive(ctx, Request{Src: []string{"USER.SEQ"}, Dest: "USER.SEQ.TRS", Format: Format{Type: FormatTerse}}); err != nil {
		t.Fatal(err)
	}

	res, err := a.Unarchive(ctx, UnarchiveRequest{Src: "USER.SEQ.TRS", Format: Format{Type: FormatTerse}})
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !strings.HasPrefix(res.DestPath, "ZUSER.ZATMP.") {
		t.Fatalf("dest_path = %q, want a temporary name", res.DestPath)
	}
	if ds, ok := cat.Get(res.DestPath); !ok || string(ds.Content) != "payload" {
		t.Errorf("unpacked %s = %q, %v", res.DestPath, ds.Content, ok)
	}
	if _, ok := cat.Get("USER.SEQ.TRS"); ok {
		t.Error("uploaded archive should be deleted when remote_src is false")
	}
}

func TestMVSUnarchiveDestExists(t *testing.T) {
	ctx := context.Background()
	a, cat, _ := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.SEQ", Content: []byte("payload")},
		zostest.DataSet{Name: "USER.COPY", Content: []byte("old")},
	)
	if _, err := a.Archive(ctx, Request{Src: []string{"USER.SEQ"}, Dest: "USER.SEQ.TRS", Format: Format{Type: FormatTerse}}); err != nil {
		t.Fatal(err)
	}

	req := UnarchiveRequest{Src: "USER.SEQ.TRS", Dest: "USER.COPY", Format: Format{Type: FormatTerse}, RemoteSrc: true}
	if _, err := a.Unarchive(ctx, req); !errors.Is(err, ErrDestExists) {
		t.Fatalf("expected ErrDestExists, got %v", err)
	}
	req.Force = true
	if _, err := a.Unarchive(ctx, req); err != nil {
		t.Fatalf("forced Unarchive: %v", err)
	}
	if ds, _ := cat.Get("USER.COPY"); string(ds.Content) != "payload" {
		t.Errorf("USER.COPY = %q", ds.Content)
	}
}

func TestMVSMissingSourceIsIncomplete(t *testing.T) {
	a, _, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("x")})

	res, err := a.Archive(context.Background(), Request{
		Src:    []string{"USER.SEQ", "USER.GONE"},
		Dest:   "USER.OUT.TRS",
		Format: terseADRDSSU(),
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.DestState != StateIncomplete {
		t.Errorf("dest_state = %s, want incomplete", res.DestState)
	}
	if !reflect.DeepEqual(res.Missing, []string{"USER.GONE"}) || !reflect.DeepEqual(res.Archived, []string{"USER.SEQ"}) {
		t.Errorf("missing = %v archived = %v", res.Missing, res.Archived)
	}
}

func TestMVSDestState(t *testing.T) {
	tests := []struct {
		exists   bool
		notFound []string
		want     State
	}{
		{false, nil, StateAbsent},
		{false, []string{"USER.X"}, StateAbsent},
		{true, []string{"USER.X"}, StateIncomplete},
		{true, nil, StateArchive},
	}
	for _, tt := range tests {
		if got := MVSDestState(tt.exists, tt.notFound); got != tt.want {
			t.Errorf("MVSDestState(%v, %v) = %s, want %s", tt.exists, tt.notFound, got, tt.want)
		}
	}
}

func TestMVSComputeDestSize(t *testing.T) {
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.BIG", Bytes: 5000})

	if _, err := a.Archive(context.Background(), Request{
		Src:    []string{"USER.BIG"},
		Dest:   "USER.BIG.TRS",
		Format: Format{Type: FormatTerse},
	}); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	var args []string
	for _, c := range cat.Calls {
		if c.Name == "dtouch" && c.Args[len(c.Args)-1] == "USER.BIG.TRS" {
			args = c.Args
		}
	}
	if args == nil {
		t.Fatal("destination was never allocated")
	}
	for _, want := range []string{"5K", "FB", "1024"} {
		if !slices.Contains(args, want) {
			t.Errorf("dtouch args %v missing %q", args, want)
		}
	}
}

func TestMVSXmitAbendHint(t *testing.T) {
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("x")})
	cat.Fail("IKJEFT01", zos.Output{
		RC:     12,
		Stdout: "INMX000I 0 message and 1 data set being transmitted\nIEC031I ABEND CODE SYSTEM=D37 REASON CODE=00000004\n",
	})

	_, err := a.Archive(context.Background(), Request{
		Src:    []string{"USER.SEQ"},
		Dest:   "USER.SEQ.XMIT",
		Format: Format{Type: FormatXmit},
	})
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.RC != 12 {
		t.Errorf("rc = %d, want 12", f.RC)
	}
	if !strings.Contains(f.Msg, "abend D37 reason 4") || !strings.Contains(f.Msg, "space_primary") {
		t.Errorf("msg = %q", f.Msg)
	}
	if _, ok := cat.Get("USER.SEQ.XMIT"); ok {
		t.Error("failed destination was not deleted")
	}
}

func TestMVSRestoreFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	a, cat, client := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.SRC1", Content: []byte("one")},
		zostest.DataSet{Name: "USER.SRC2", Content: []byte("two")},
	)
	if _, err := a.Archive(ctx, Request{Src: []string{"USER.SRC*"}, Dest: "USER.ARCH.TRS", Format: terseADRDSSU()}); err != nil {
		t.Fatal(err)
	}
	if err := client.Delete(ctx, "USER.SRC2"); err != nil {
		t.Fatal(err)
	}

	_, err := a.Unarchive(ctx, UnarchiveRequest{Src: "USER.ARCH.TRS", Format: terseADRDSSU(), RemoteSrc: true})
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if f.RC != 8 || !strings.Contains(f.Msg, "not restored: USER.SRC1") {
		t.Errorf("rc = %d msg = %q", f.RC, f.Msg)
	}
	if _, ok := cat.Get("USER.SRC2"); ok {
		t.Error("partially restored USER.SRC2 was not rolled back")
	}
	if ds, ok := cat.Get("USER.SRC1"); !ok || string(ds.Content) != "one" {
		t.Error("pre-existing USER.SRC1 was touched")
	}
	if got := cat.Names(); !reflect.DeepEqual(got, []string{"USER.ARCH.TRS", "USER.SRC1"}) {
		t.Errorf("catalog = %v", got)
	}
}

func TestMVSUnarchiveList(t *testing.T) {
	ctx := context.Background()
	a, cat, _ := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.SRC1", Content: []byte("one")},
		zostest.DataSet{Name: "USER.SRC2", Content: []byte("two")},
	)
	if _, err := a.Archive(ctx, Request{Src: []string{"USER.SRC*"}, Dest: "USER.ARCH.TRS", Format: terseADRDSSU()}); err != nil {
		t.Fatal(err)
	}
	before := cat.Names()

	res, err := a.Unarchive(ctx, UnarchiveRequest{Src: "USER.ARCH.TRS", Format: terseADRDSSU(), List: true})
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !reflect.DeepEqual(res.Targets, []string{"USER.SRC1", "USER.SRC2"}) || res.Changed {
		t.Errorf("targets = %v changed = %v", res.Targets, res.Changed)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, before) {
		t.Errorf("catalog changed by list: %v -> %v", before, got)
	}
}

func TestMVSUnarchiveIncludeMissing(t *testing.T) {
	ctx := context.Background()
	a, _, client := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.SRC1", Content: []byte("one")},
		zostest.DataSet{Name: "USER.SRC2", Content: []byte("two")},
	)
	if _, err := a.Archive(ctx, Request{Src: []string{"USER.SRC*"}, Dest: "USER.ARCH.TRS", Format: terseADRDSSU()}); err != nil {
		t.Fatal(err)
	}
	if err := client.Delete(ctx, "USER.SRC1"); err != nil {
		t.Fatal(err)
	}

	res, err := a.Unarchive(ctx, UnarchiveRequest{
		Src: "USER.ARCH.TRS", Format: terseADRDSSU(), RemoteSrc: true,
		Include: []string{"user.src1", "USER.NOPE", "USER.X*"},
	})
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !reflect.DeepEqual(res.Targets, []string{"USER.SRC1"}) || !reflect.DeepEqual(res.Missing, []string{"USER.NOPE"}) {
		t.Errorf("targets = %v missing = %v", res.Targets, res.Missing)
	}
}

func TestMVSArchiveRemove(t *testing.T) {
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("x")})

	res, err := a.Archive(context.Background(), Request{
		Src:    []string{"USER.SEQ"},
		Dest:   "USER.SEQ.TRS",
		Format: Format{Type: FormatTerse},
		Remove: true,
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.State != StateAbsent {
		t.Errorf("state = %s, want absent", res.State)
	}
	if _, ok := cat.Get("USER.SEQ"); ok {
		t.Error("source still cataloged")
	}
	want := []RemovalOutcome{{Target: "USER.SEQ", Outcome: Removed}}
	if !reflect.DeepEqual(res.Removal, want) {
		t.Errorf("removal = %+v", res.Removal)
	}
}

func TestMVSEncodingSkipList(t *testing.T) {
	a, cat, _ := newMVSArchiver(t,
		zostest.DataSet{Name: "USER.A", Content: []byte("AB")},
		zostest.DataSet{Name: "USER.B", Content: []byte("AB")},
	)

	res, err := a.Archive(context.Background(), Request{
		Src:    []string{"USER.A", "USER.B"},
		Dest:   "USER.OUT.TRS",
		Format: terseADRDSSU(),
		Encoding: &Encoding{
			From:         "ISO8859-1",
			To:           "IBM-1047",
			SkipEncoding: []string{"user.b"},
		},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if !reflect.DeepEqual(res.Encoded, []string{"USER.A"}) || !reflect.DeepEqual(res.SkippedEncodingTargets, []string{"USER.B"}) {
		t.Errorf("encoded = %v skipped = %v", res.Encoded, res.SkippedEncodingTargets)
	}
	if ds, _ := cat.Get("USER.A"); string(ds.Content) != "AB" {
		t.Errorf("USER.A not reverted: % x", ds.Content)
	}
}

func TestMVSArchiveRemoveWithEncoding(t *testing.T) {
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("AB")})

	res, err := a.Archive(context.Background(), Request{
		Src:      []string{"USER.SEQ"},
		Dest:     "USER.SEQ.TRS",
		Format:   Format{Type: FormatTerse},
		Remove:   true,
		Encoding: &Encoding{From: "ISO8859-1", To: "IBM-1047"},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if res.State != StateAbsent || res.DestState != StateArchive {
		t.Errorf("state = %s dest_state = %s", res.State, res.DestState)
	}
	if !reflect.DeepEqual(res.Encoded, []string{"USER.SEQ"}) {
		t.Errorf("encoded = %v", res.Encoded)
	}
	if _, ok := cat.Get("USER.SEQ"); ok {
		t.Error("source still cataloged")
	}
	if _, ok := cat.Get("USER.SEQ.TRS"); !ok {
		t.Error("archive not cataloged")
	}
}

func TestMVSUnarchiveListPlainTerse(t *testing.T) {
	ctx := context.Background()
	a, cat, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("x")})
	if _, err := a.Archive(ctx, Request{Src: []string{"USER.SEQ"}, Dest: "USER.SEQ.TRS", Format: Format{Type: FormatTerse}}); err != nil {
		t.Fatal(err)
	}
	before := cat.Names()

	res, err := a.Unarchive(ctx, UnarchiveRequest{Src: "USER.SEQ.TRS", Dest: "USER.OUT", Format: Format{Type: FormatTerse}, List: true})
	if err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if !reflect.DeepEqual(res.Targets, []string{"USER.SEQ.TRS"}) || res.Changed {
		t.Errorf("targets = %v changed = %v", res.Targets, res.Changed)
	}
	if got := cat.Names(); !reflect.DeepEqual(got, before) {
		t.Errorf("catalog changed by list: %v -> %v", before, got)
	}
}

func TestMVSForcedRerunUnchanged(t *testing.T) {
	ctx := context.Background()
	a, _, _ := newMVSArchiver(t, zostest.DataSet{Name: "USER.SEQ", Content: []byte("x")})
	req := Request{Src: []string{"USER.SEQ"}, Dest: "USER.SEQ.TRS", Format: Format{Type: FormatTerse}}

	if _, err := a.Archive(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Archive(ctx, req); !errors.Is(err, ErrDestExists) {
		t.Fatalf("expected ErrDestExists, got %v", err)
	}
	req.Force = true
	res, err := a.Archive(ctx, req)
	if err != nil {
		t.Fatalf("forced Archive: %v", err)
	}
	if res.Changed {
		t.Error("identical repack reported changed")
	}
}

func TestMissingIncludes(t *testing.T) {
	got := missingIncludes([]string{"USER.A", "USER.B*", "USER.%", "USER.C"}, []string{"USER.A"})
	if !reflect.DeepEqual(got, []string{"USER.C"}) {
		t.Errorf("missingIncludes() = %v, want [USER.C]", got)
	}
}
