package archive

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// applyPermissions sets mode, owner and group on paths. Symlinks keep their
// mode; ownership is changed on the link itself.
func applyPermissions(p Permissions, paths []string) error {
	if p.empty() {
		return nil
	}
	var mode os.FileMode
	if p.Mode != "" {
		m, err := strconv.ParseUint(p.Mode, 8, 32)
		if err != nil {
			return fmt.Errorf("mode %q is not an octal permission: %w", p.Mode, err)
		}
		mode = os.FileMode(m) & os.ModePerm
	}
	uid, err := lookupID(p.Owner, func(name string) (string, error) {
		u, err := user.Lookup(name)
		if err != nil {
			return "", err
		}
		return u.Uid, nil
	})
	if err != nil {
		return fmt.Errorf("owner %q: %w", p.Owner, err)
	}
	gid, err := lookupID(p.Group, func(name string) (string, error) {
		g, err := user.LookupGroup(name)
		if err != nil {
			return "", err
		}
		return g.Gid, nil
	})
	if err != nil {
		return fmt.Errorf("group %q: %w", p.Group, err)
	}

	for _, path := range paths {
		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if p.Mode != "" && info.Mode()&os.ModeSymlink == 0 {
			if err := os.Chmod(path, mode); err != nil {
				return err
			}
		}
		if uid != -1 || gid != -1 {
			if err := os.Lchown(path, uid, gid); err != nil {
				return err
			}
		}
	}
	return nil
}

// lookupID resolves a user or group name, or passes a numeric id through.
// An empty name yields -1, meaning unchanged.
func lookupID(name string, lookup func(string) (string, error)) (int, error) {
	if name == "" {
		return -1, nil
	}
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	s, err := lookup(name)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(s)
}
