// Package pathutil provides path helpers for comparing and reporting experiment directories.
package pathutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath reduces a full path to .../<parent>/<basename> for log lines and
// tool responses. For example, "/data/sweeps/sensAnal_-_x/p_0.5" becomes
// ".../sensAnal_-_x/p_0.5".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// Resolve returns the absolute, symlink-free form of path. Trailing
// components that do not exist yet are kept as given.
func Resolve(path string) (string, error) {
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains null byte")
	}
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path: %w", err)
	}
	return resolveExistingParent(abs)
}

// SameDir reports whether a and b resolve to the same directory.
func SameDir(a, b string) (bool, error) {
	ra, err := Resolve(a)
	if err != nil {
		return false, err
	}
	rb, err := Resolve(b)
	if err != nil {
		return false, err
	}
	if ra == rb {
		return true, nil
	}
	ia, errA := os.Stat(ra)
	ib, errB := os.Stat(rb)
	if errA != nil || errB != nil {
		return false, nil
	}
	return os.SameFile(ia, ib), nil
}

// IsWithin reports whether path is base or lies underneath it.
func IsWithin(path, base string) (bool, error) {
	rp, err := Resolve(path)
	if err != nil {
		return false, err
	}
	rb, err := Resolve(base)
	if err != nil {
		return false, err
	}
	return isSubpath(rp, rb), nil
}

// resolveExistingParent walks up the directory tree to find the deepest existing
// ancestor, resolves symlinks on it, then re-appends the non-existent tail.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}

	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath checks whether path is equal to or a subdirectory of base.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	// "/tmp/foo" must not match "/tmp/foobar"
	prefix := base + string(os.PathSeparator)
	return strings.HasPrefix(path, prefix)
}

// CopyFile copies the contents of src to dst, replacing dst if it exists.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ResetDir removes dir and everything in it, then creates it empty.
func ResetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// CopyMatching copies every regular file directly in dir whose name
// satisfies match into dst, replacing files of the same name. It returns
// the paths written.
func CopyMatching(dir, dst string, match func(name string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var copied []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !match(e.Name()) {
			continue
		}
		to := filepath.Join(dst, e.Name())
		if err := CopyFile(filepath.Join(dir, e.Name()), to); err != nil {
			return copied, err
		}
		copied = append(copied, to)
	}
	return copied, nil
}
