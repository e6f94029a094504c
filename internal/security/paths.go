// Package security guards output paths written outside the fsutil
// abstraction.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape indicates a path that resolves outside its output directory.
var ErrPathEscape = errors.New("security: path escapes output directory")

// WithinDir reports an error wrapping ErrPathEscape when path, after
// resolving ".." components and symlinks, lies outside dir. Neither path nor
// its parents need to exist; the deepest existing ancestor is resolved.
func WithinDir(path, dir string) error {
	canonPath, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	canonDir, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(canonDir, canonPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPathEscape, path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscape, path, dir)
	}
	return nil
}

// canonical returns the absolute path with symlinks in its deepest existing
// ancestor resolved.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	for check := abs; ; {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rest, _ := filepath.Rel(check, abs)
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(check)
		if parent == check {
			return abs, nil
		}
		check = parent
	}
}
