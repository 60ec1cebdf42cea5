package expand

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/BadgerOps/zarchive/internal/zos"
)

type fakeCatalog struct {
	names []string
	gds   map[string]string
}

func (f *fakeCatalog) List(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for _, n := range f.names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ResolveGDS(_ context.Context, name string) (string, error) {
	if abs, ok := f.gds[name]; ok {
		return abs, nil
	}
	return "", zos.ErrGenerationNotCataloged
}

func TestUSSExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := USS{}.Expand(context.Background(), []string{
		filepath.Join(dir, "c.log"),
		filepath.Join(dir, "*.txt"),
		filepath.Join(dir, "missing.bin"),
	})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{
		filepath.Join(dir, "c.log"),
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.txt"),
		filepath.Join(dir, "missing.bin"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

func TestMVSExpand(t *testing.T) {
	cat := &fakeCatalog{
		names: []string{"USER.ARCHIVE1.TEST", "USER.ARCHIVE2.TEST"},
		gds:   map[string]string{"USER.GDG(-1)": "USER.GDG.G0001V00"},
	}
	m := NewMVS(cat, nil)

	got, err := m.Expand(context.Background(), []string{"user.gdg(-1)", "USER.ARCHIVE*", "USER.GDG(+1)", "USER.PLAIN"})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	want := []string{"USER.GDG.G0001V00", "USER.ARCHIVE1.TEST", "USER.ARCHIVE2.TEST", "USER.GDG(+1)", "USER.PLAIN"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %v, want %v", got, want)
	}
}

type failingCatalog struct{ fakeCatalog }

func (failingCatalog) List(context.Context, string) ([]string, error) {
	return nil, errors.New("catalog unavailable")
}

func TestMVSExpandListError(t *testing.T) {
	m := NewMVS(&failingCatalog{}, nil)
	if _, err := m.Expand(context.Background(), []string{"USER.*"}); err == nil {
		t.Fatal("expected listing error to propagate")
	}
}

func TestDifference(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		exclude []string
		want    []string
	}{
		{"no excludes", []string{"b", "a", "b"}, nil, []string{"a", "b"}},
		{"excluded removed", []string{"c", "a", "b"}, []string{"b"}, []string{"a", "c"}},
		{"all excluded", []string{"a"}, []string{"a"}, []string{}},
		{"exclude not in sources", []string{"a"}, []string{"z"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Difference(tt.sources, tt.exclude)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Difference() = %v, want %v", got, tt.want)
			}
			excluded := make(map[string]bool)
			for _, e := range tt.exclude {
				excluded[e] = true
			}
			for _, g := range got {
				if excluded[g] {
					t.Errorf("result contains excluded name %q", g)
				}
			}
			if !sort.StringsAreSorted(got) {
				t.Errorf("result %v is not sorted", got)
			}
		})
	}
}
