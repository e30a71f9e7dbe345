package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned for paths that are empty or contain empty
// segments once normalised.
var ErrInvalidPath = errors.New("invalid page path")

// NormalizePath strips a single leading and a single trailing slash.
func NormalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(p, "/")
}

// SplitPath normalises p and splits it into its segments.
func SplitPath(p string) ([]string, error) {
	norm := NormalizePath(p)
	if norm == "" {
		return nil, fmt.Errorf("%w: %q is empty", ErrInvalidPath, p)
	}
	segments := strings.Split(norm, "/")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, p)
		}
	}
	return segments, nil
}

// ParentPath returns the canonical path of the parent of a normalised path,
// or false for a root-level path.
func ParentPath(norm string) (string, bool) {
	i := strings.LastIndex(norm, "/")
	if i < 0 {
		return "", false
	}
	return norm[:i], true
}

// JoinPath appends slug to a canonical parent path. An empty parent yields
// the slug itself.
func JoinPath(parent, slug string) string {
	if parent == "" {
		return slug
	}
	return parent + "/" + slug
}
