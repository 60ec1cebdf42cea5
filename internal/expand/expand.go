// Package expand resolves source patterns into concrete USS paths or
// cataloged data set names.
package expand

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BadgerOps/zarchive/internal/zos"
)

// Catalog is the subset of the zos client the MVS expander needs.
type Catalog interface {
	List(ctx context.Context, pattern string) ([]string, error)
	ResolveGDS(ctx context.Context, name string) (string, error)
}

// Expander turns patterns into names, preserving declared order.
type Expander interface {
	Expand(ctx context.Context, patterns []string) ([]string, error)
}

// USS expands POSIX glob patterns.
type USS struct{}

// Expand replaces every pattern containing * or ? with its glob matches.
// Literal patterns pass through unchanged, whether or not they exist.
func (USS) Expand(_ context.Context, patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		if !strings.ContainsAny(p, "*?") {
			out = append(out, p)
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", p, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// MVS expands catalog wildcards and relative generation names.
type MVS struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewMVS creates an MVS expander backed by the catalog.
func NewMVS(catalog Catalog, logger *slog.Logger) *MVS {
	if logger == nil {
		logger = slog.Default()
	}
	return &MVS{catalog: catalog, logger: logger}
}

// Expand lists every pattern containing * through the catalog and resolves
// BASE(n) names to absolute generations. A generation that cannot be
// resolved is kept in relative form; its absence is reported where it is used.
func (m *MVS) Expand(ctx context.Context, patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		p = strings.ToUpper(strings.TrimSpace(p))
		names := []string{p}
		if strings.Contains(p, "*") {
			listed, err := m.catalog.List(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("listing %q: %w", p, err)
			}
			names = listed
		}
		for _, n := range names {
			out = append(out, m.resolve(ctx, n))
		}
	}
	return out, nil
}

func (m *MVS) resolve(ctx context.Context, name string) string {
	if !zos.IsRelativeGDS(name) {
		return name
	}
	abs, err := m.catalog.ResolveGDS(ctx, name)
	if err != nil {
		m.logger.Debug("generation left unresolved", "name", name, "error", err)
		return name
	}
	return abs
}

// Difference returns the sorted, de-duplicated names of sources that are not
// in exclude.
func Difference(sources, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if skip[s] || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
