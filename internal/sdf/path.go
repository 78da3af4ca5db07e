package sdf

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Canonicalize turns a user-supplied path (absolute, or relative to the
// working directory) into the slash-separated project-relative form used
// as the manifest key. Paths escaping root fail with ErrOutsideProject.
func Canonicalize(root, input string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", input, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, input)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideProject, input)
	}
	return filepath.ToSlash(rel), nil
}
