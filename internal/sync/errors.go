package sync

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedParent is returned when a desired page's parent path
	// neither exists remotely nor was created earlier in the same batch.
	ErrUnresolvedParent = errors.New("unresolved parent")

	// ErrMissingParent is returned by [ResolvePaths] when a page points at a
	// parent id absent from the listing.
	ErrMissingParent = errors.New("missing parent page")

	// ErrParentCycle is returned by [ResolvePaths] when a parent chain loops.
	ErrParentCycle = errors.New("parent cycle")

	// ErrDuplicatePath is returned when two desired keys normalise to the
	// same path.
	ErrDuplicatePath = errors.New("duplicate page path")
)

// UnresolvedParentError names the desired page whose parent is missing.
type UnresolvedParentError struct {
	Path   string // normalised path of the page being processed
	Parent string // normalised parent path that could not be found
}

func (e *UnresolvedParentError) Error() string {
	return fmt.Sprintf("page %q: %s %q", e.Path, ErrUnresolvedParent, e.Parent)
}

func (e *UnresolvedParentError) Unwrap() error { return ErrUnresolvedParent }

// MissingParentError reports a remote page whose parent id is not in the
// fetched listing.
type MissingParentError struct {
	ID       int
	ParentID int
}

func (e *MissingParentError) Error() string {
	return fmt.Sprintf("page %d: %s %d", e.ID, ErrMissingParent, e.ParentID)
}

func (e *MissingParentError) Unwrap() error { return ErrMissingParent }
