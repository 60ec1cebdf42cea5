package zos

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrGenerationNotCataloged is returned when a relative generation does not
// (yet) exist, e.g. BASE(+1) before it has been allocated.
var ErrGenerationNotCataloged = errors.New("generation not cataloged")

var (
	relativeGDSRe   = regexp.MustCompile(`^(.+)\(([+-]?\d+)\)$`)
	absoluteGenerRe = regexp.MustCompile(`\.G(\d{4})V(\d{2})$`)
)

// IsRelativeGDS reports whether name has the BASE(n) relative generation form.
func IsRelativeGDS(name string) bool {
	m := relativeGDSRe.FindStringSubmatch(name)
	if m == nil {
		return false
	}
	// BASE(1) without a sign is not valid relative notation; only 0 may be unsigned.
	off := m[2]
	return off == "0" || strings.HasPrefix(off, "+") || strings.HasPrefix(off, "-")
}

// ParseRelativeGDS splits BASE(n) into base and offset.
func ParseRelativeGDS(name string) (base string, offset int, ok bool) {
	if !IsRelativeGDS(name) {
		return "", 0, false
	}
	m := relativeGDSRe.FindStringSubmatch(name)
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], n, true
}

// ResolveGDS resolves a relative generation name to its absolute
// BASE.GnnnnVnn name using the catalog. Offset 0 is the newest generation.
func (c *Client) ResolveGDS(ctx context.Context, name string) (string, error) {
	base, offset, ok := ParseRelativeGDS(name)
	if !ok {
		return "", fmt.Errorf("%q is not a relative generation name", name)
	}
	if offset > 0 {
		return "", fmt.Errorf("%s: %w", name, ErrGenerationNotCataloged)
	}

	names, err := c.List(ctx, base+".G*V*")
	if err != nil {
		return "", fmt.Errorf("listing generations of %s: %w", base, err)
	}
	gens := generations(base, names)
	idx := len(gens) - 1 + offset
	if idx < 0 || idx >= len(gens) {
		return "", fmt.Errorf("%s: %w", name, ErrGenerationNotCataloged)
	}
	return gens[idx], nil
}

// generations filters names down to absolute generations of base, oldest first.
func generations(base string, names []string) []string {
	prefix := strings.ToUpper(base) + "."
	type gen struct {
		name string
		num  int
		ver  int
	}
	var gens []gen
	for _, n := range names {
		n = strings.ToUpper(n)
		if !strings.HasPrefix(n, prefix) || strings.Count(n[len(prefix):], ".") != 0 {
			continue
		}
		m := absoluteGenerRe.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		ver, _ := strconv.Atoi(m[2])
		gens = append(gens, gen{name: n, num: num, ver: ver})
	}
	sort.Slice(gens, func(i, j int) bool {
		if gens[i].num != gens[j].num {
			return gens[i].num < gens[j].num
		}
		return gens[i].ver < gens[j].ver
	})
	out := make([]string, len(gens))
	for i, g := range gens {
		out[i] = g.name
	}
	return out
}
