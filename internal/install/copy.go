package install

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/xattr"

	"gomunki/internal/display"
	"gomunki/pkg/plist"
)

const quarantineAttr = "com.apple.quarantine"

// Stubbed in tests.
var (
	removeXattrFn = xattr.Remove
	chownFn       = os.Chown

	lookupUID = func(name string) (int, error) {
		u, err := user.Lookup(name)
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(u.Uid)
	}
	lookupGID = func(name string) (int, error) {
		g, err := user.LookupGroup(name)
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(g.Gid)
	}
)

// resolveDestination computes the absolute destination from an items_to_copy
// entry. When only destination_item is set and carries a directory component,
// it is split into path and filename; the filename defaults to the source
// basename.
func resolveDestination(item plist.Dict, sourceBase string) (string, error) {
	destPath := item.StringDefault("destination_path", "")
	destItem := item.StringDefault("destination_item", "")

	if destPath == "" && destItem != "" && strings.Contains(destItem, "/") {
		destPath = filepath.Dir(destItem)
		destItem = filepath.Base(destItem)
	}
	if destPath == "" {
		return "", fmt.Errorf("no destination_path for copied item %s", sourceBase)
	}

	filename := destItem
	if filename == "" {
		filename = sourceBase
	}
	return filepath.Join(destPath, filename), nil
}

// ensureAncestors creates missing intermediate directories for dir, each
// inheriting owner, group, and mode from the nearest existing ancestor. The
// mode defaults to 0755 when the ancestor cannot be read.
func ensureAncestors(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}

	ancestor := dir
	for {
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		if _, err := os.Stat(parent); err == nil {
			ancestor = parent
			break
		}
		ancestor = parent
	}

	uid, gid := 0, 0
	mode := fs.FileMode(0o755)
	if info, err := os.Stat(ancestor); err == nil {
		mode = info.Mode().Perm()
		uid, gid = statOwner(info)
	}

	// Walk down from the existing ancestor creating each missing segment.
	rel, err := filepath.Rel(ancestor, dir)
	if err != nil {
		return os.MkdirAll(dir, mode)
	}
	current := ancestor
	for _, segment := range strings.Split(rel, string(filepath.Separator)) {
		if segment == "" || segment == "." {
			continue
		}
		current = filepath.Join(current, segment)
		if _, err := os.Stat(current); err == nil {
			continue
		}
		if err := os.Mkdir(current, mode); err != nil {
			return fmt.Errorf("create %s: %w", current, err)
		}
		if err := chownFn(current, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", current, err)
		}
	}
	return nil
}

func statOwner(info os.FileInfo) (uid, gid int) {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return int(st.Uid), int(st.Gid)
	}
	return 0, 0
}

// treeSize totals regular-file bytes under root for progress reporting.
func treeSize(root string) int64 {
	var total int64
	filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, err := entry.Info(); err == nil && info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// copyTree copies src to dst recursively, preserving modes and symlinks,
// reporting percentage progress as bytes land.
func copyTree(src, dst string) error {
	total := treeSize(src)
	var done int64
	lastPct := -1

	report := func() {
		if total <= 0 {
			return
		}
		pct := int(done * 100 / total)
		if pct != lastPct {
			lastPct = pct
			display.Percent(pct)
		}
	}

	var copyNode func(src, dst string) error
	copyNode = func(src, dst string) error {
		info, err := os.Lstat(src)
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(src)
			if err != nil {
				return err
			}
			return os.Symlink(target, dst)
		case info.IsDir():
			if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
				return err
			}
			entries, err := os.ReadDir(src)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				if err := copyNode(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
					return err
				}
			}
			return nil
		default:
			in, err := os.Open(src)
			if err != nil {
				return err
			}
			defer in.Close()
			out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
			if err != nil {
				return err
			}
			n, err := io.Copy(out, in)
			done += n
			report()
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			return err
		}
	}

	display.Percent(0)
	if err := copyNode(src, dst); err != nil {
		return err
	}
	display.Percent(100)
	return nil
}

// stripQuarantine removes the quarantine attribute from root and every
// descendant. A missing attribute is not an error.
func stripQuarantine(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if rerr := removeXattrFn(path, quarantineAttr); rerr != nil && !isNoAttr(rerr) {
			return fmt.Errorf("strip quarantine from %s: %w", path, rerr)
		}
		return nil
	})
}

func isNoAttr(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == xattr.ENOATTR || errno == syscall.ENOENT
	}
	return false
}

// applyOwnership sets owner, group, and mode recursively. Defaults are
// root:admin with world-write stripped and group/other granted read (plus
// search on directories and already-executable files).
func applyOwnership(root, userName, groupName, modeStr string) error {
	if userName == "" {
		userName = "root"
	}
	if groupName == "" {
		groupName = "admin"
	}
	uid, err := lookupUID(userName)
	if err != nil {
		return fmt.Errorf("unknown user %s: %w", userName, err)
	}
	gid, err := lookupGID(groupName)
	if err != nil {
		return fmt.Errorf("unknown group %s: %w", groupName, err)
	}

	var explicit fs.FileMode
	hasExplicit := false
	if modeStr != "" {
		parsed, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return fmt.Errorf("bad mode %q: %w", modeStr, err)
		}
		explicit = fs.FileMode(parsed)
		hasExplicit = true
	}

	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			return os.Lchown(path, uid, gid)
		}
		if err := chownFn(path, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		mode := explicit
		if !hasExplicit {
			mode = defaultMode(info.Mode().Perm(), entry.IsDir())
		}
		return os.Chmod(path, mode)
	})
}

// defaultMode applies o-w,go+rX to an existing permission set.
func defaultMode(perm fs.FileMode, isDir bool) fs.FileMode {
	mode := perm &^ 0o002
	mode |= 0o044
	if isDir || mode&0o100 != 0 {
		mode |= 0o011
	}
	return mode
}

// copyFromMountpoint lands one items_to_copy entry: copy to a temporary
// sibling of the destination, strip quarantine, set ownership, then swap the
// temporary into place.
func (e *Executor) copyFromMountpoint(mountpoint string, item plist.Dict) error {
	sourceItem := item.StringDefault("source_item", "")
	if sourceItem == "" {
		return fmt.Errorf("items_to_copy entry has no source_item")
	}
	source := filepath.Join(mountpoint, sourceItem)
	if rel, err := filepath.Rel(mountpoint, source); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("source_item %s escapes the mountpoint", sourceItem)
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("source item %s: %w", sourceItem, err)
	}

	dest, err := resolveDestination(item, filepath.Base(source))
	if err != nil {
		return err
	}
	if err := ensureAncestors(filepath.Dir(dest)); err != nil {
		return err
	}

	display.MinorStatus("Copying %s to %s", filepath.Base(source), dest)
	tmp := filepath.Join(filepath.Dir(dest), ".inprogress-"+filepath.Base(dest))
	os.RemoveAll(tmp)
	if err := copyTree(source, tmp); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("copy %s: %w", source, err)
	}
	if err := stripQuarantine(tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := applyOwnership(tmp,
		item.StringDefault("user", ""),
		item.StringDefault("group", ""),
		item.StringDefault("mode", "")); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	return swapInto(tmp, dest)
}

// swapInto atomically replaces dest with tmp, parking any existing
// destination out of the way first so a failure cannot leave dest missing.
func swapInto(tmp, dest string) error {
	old := dest + ".previous"
	replaced := false
	if _, err := os.Lstat(dest); err == nil {
		os.RemoveAll(old)
		if err := os.Rename(dest, old); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("move aside %s: %w", dest, err)
		}
		replaced = true
	}
	if err := os.Rename(tmp, dest); err != nil {
		if replaced {
			os.Rename(old, dest)
		}
		os.RemoveAll(tmp)
		return fmt.Errorf("place %s: %w", dest, err)
	}
	if replaced {
		os.RemoveAll(old)
	}
	return nil
}
