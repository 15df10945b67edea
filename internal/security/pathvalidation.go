// Package security validates paths of files served to report clients.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir
// after cleaning and symlink resolution. Paths that do not exist yet are
// checked through their nearest existing parent.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath(absPath))
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// canonicalPath resolves symlinks in absPath, or in its nearest existing
// ancestor when absPath does not exist.
func canonicalPath(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for dir := filepath.Dir(absPath); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, _ := filepath.Rel(dir, absPath)
			return filepath.Join(resolved, rel)
		}
		if filepath.Dir(dir) == dir {
			return absPath
		}
	}
}

// ResolveWithin joins a client-supplied name onto dir and rejects names
// that would leave it.
func ResolveWithin(dir, name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := ValidatePathWithinDirectory(path, dir); err != nil {
		return "", err
	}
	return path, nil
}

// SanitizeFilename makes a safe filename from an arbitrary string such as a
// patient id. Characters other than ASCII letters, digits, dot, underscore
// and dash become a single underscore; the result is at most 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
