package safety

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MemberKind classifies an archive entry.
type MemberKind int

const (
	KindFile MemberKind = iota
	KindDir
	KindSymlink
	KindHardlink
	KindOther
)

// Member is the format-independent view of an archive entry.
type Member struct {
	Name     string
	LinkName string
	Kind     MemberKind
}

// ViolationKind is the closed set of reasons a member is refused.
type ViolationKind string

const (
	AbsolutePath           ViolationKind = "absolute_path"
	OutsideDestination     ViolationKind = "outside_destination"
	AbsoluteLink           ViolationKind = "absolute_link"
	LinkOutsideDestination ViolationKind = "link_outside_destination"
)

// Violation is returned by Sanitize for the first unsafe member.
type Violation struct {
	Kind   ViolationKind
	Member string
	Target string
}

func (v *Violation) Error() string {
	switch v.Kind {
	case AbsolutePath:
		return fmt.Sprintf("member %q has an absolute path", v.Member)
	case OutsideDestination:
		return fmt.Sprintf("member %q would be extracted outside the destination", v.Member)
	case AbsoluteLink:
		return fmt.Sprintf("member %q links to absolute path %q", v.Member, v.Target)
	case LinkOutsideDestination:
		return fmt.Sprintf("member %q links to %q outside the destination", v.Member, v.Target)
	}
	return fmt.Sprintf("member %q is unsafe (%s)", v.Member, v.Kind)
}

const maxLinkDepth = 40

// Sanitize validates every member against root before extraction. It is a
// pure pass: nothing is created. Symlinks declared earlier in the list are
// followed as if already extracted, as are symlinks already under root.
func Sanitize(members []Member, root string) ([]Member, error) {
	realRoot, err := RealRoot(root)
	if err != nil {
		return nil, err
	}
	r := &resolver{root: realRoot, links: make(map[string]string)}

	out := make([]Member, 0, len(members))
	for _, m := range members {
		name := filepath.ToSlash(m.Name)
		if path.IsAbs(name) {
			return nil, &Violation{Kind: AbsolutePath, Member: m.Name}
		}
		dir, base := splitLast(strings.TrimRight(name, "/"))
		if base == ".." {
			return nil, &Violation{Kind: OutsideDestination, Member: m.Name}
		}
		parent, ok := r.resolve(dir, 0)
		if !ok {
			return nil, &Violation{Kind: OutsideDestination, Member: m.Name}
		}
		self := parent
		if base != "" && base != "." {
			self = joinRel(parent, base)
		}

		switch m.Kind {
		case KindSymlink, KindHardlink:
			link := filepath.ToSlash(m.LinkName)
			if path.IsAbs(link) {
				return nil, &Violation{Kind: AbsoluteLink, Member: m.Name, Target: m.LinkName}
			}
			start := parent
			if m.Kind == KindHardlink {
				// Hard link targets are relative to the archive root.
				start = ""
			}
			if _, ok := r.resolve(joinRel(start, link), 0); !ok {
				return nil, &Violation{Kind: LinkOutsideDestination, Member: m.Name, Target: m.LinkName}
			}
			if m.Kind == KindSymlink {
				r.links[self] = link
			}
		default:
			if _, ok := r.resolve(self, 0); !ok {
				return nil, &Violation{Kind: OutsideDestination, Member: m.Name}
			}
			// A regular entry replaces any link previously declared at this path.
			delete(r.links, self)
		}
		out = append(out, m)
	}
	return out, nil
}

// splitLast splits at the final slash without cleaning, so ".." segments
// are still seen by the resolver.
func splitLast(name string) (dir, base string) {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}

func joinRel(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

// resolver walks root-relative paths component by component, following
// symlinks so escapes through indirection are detected.
type resolver struct {
	root  string
	links map[string]string
}

func (r *resolver) link(rel string) (string, bool) {
	if target, ok := r.links[rel]; ok {
		return target, true
	}
	p := filepath.Join(r.root, filepath.FromSlash(rel))
	info, err := os.Lstat(p)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return "", false
	}
	target, err := os.Readlink(p)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(target), true
}

// resolve returns the real root-relative form of rel, or false when the
// path leaves root.
func (r *resolver) resolve(rel string, depth int) (string, bool) {
	if depth > maxLinkDepth {
		return "", false
	}
	var parts []string
	for _, comp := range strings.Split(rel, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			if len(parts) == 0 {
				return "", false
			}
			parts = parts[:len(parts)-1]
			continue
		}
		parts = append(parts, comp)
		target, isLink := r.link(strings.Join(parts, "/"))
		if !isLink {
			continue
		}
		var next string
		if path.IsAbs(target) {
			abs := filepath.FromSlash(path.Clean(target))
			if !within(r.root, abs) {
				return "", false
			}
			relTarget, err := filepath.Rel(r.root, abs)
			if err != nil {
				return "", false
			}
			next = filepath.ToSlash(relTarget)
		} else {
			next = joinRel(strings.Join(parts[:len(parts)-1], "/"), target)
		}
		resolved, ok := r.resolve(next, depth+1)
		if !ok {
			return "", false
		}
		parts = nil
		if resolved != "" {
			parts = strings.Split(resolved, "/")
		}
	}
	return strings.Join(parts, "/"), true
}
