// Package fsutil holds the filesystem confinement used when unpacking
// provider bundles.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConfineRelPath joins root and a relative entry name and verifies the
// result stays physically underneath the resolved root, following
// symlinks. Every archive entry passes through here before anything
// touches the disk. The entry MUST be relative.
func ConfineRelPath(root, entry string) (string, error) {
	// Backslashes never appear in well-formed bundle entries; reject them
	// instead of guessing at OS-specific parsing.
	if strings.Contains(entry, `\`) {
		return "", fmt.Errorf("fsutil: path contains backslash: %s", entry)
	}

	clean := filepath.Clean(entry)
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("fsutil: path must be relative: %s", entry)
	}
	// Clean folds "a/../b" into "b"; anything still starting with ".."
	// points outside the root.
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes root: %s", entry)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("fsutil: resolve root: %w", err)
	}
	realRoot := absRoot
	if resolved, err := filepath.EvalSymlinks(absRoot); err == nil {
		realRoot = resolved
	} else if os.IsNotExist(err) {
		return "", err
	}

	return resolveAndCheck(realRoot, filepath.Join(realRoot, clean))
}

// resolveAndCheck resolves fullPath through symlinks and verifies it still
// sits under realRoot. Paths that exist but cannot be resolved are denied.
func resolveAndCheck(realRoot, fullPath string) (string, error) {
	var realPath string
	if _, err := os.Lstat(fullPath); err == nil {
		resolved, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			return "", fmt.Errorf("fsutil: resolve %s: %w", fullPath, err)
		}
		realPath = resolved
	} else {
		// The target does not exist yet, which is the normal case during
		// extraction. Resolve the parent instead so a symlinked directory
		// cannot smuggle the write outside the root.
		dir := filepath.Dir(fullPath)
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			realPath = filepath.Join(resolved, filepath.Base(fullPath))
		} else if _, statErr := os.Stat(dir); statErr == nil {
			return "", fmt.Errorf("fsutil: resolve parent of %s: %w", fullPath, err)
		} else {
			// No parent yet either; the Rel check below still applies.
			realPath = fullPath
		}
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("fsutil: containment check: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("fsutil: path escapes root: %s", realPath)
	}
	return realPath, nil
}
