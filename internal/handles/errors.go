package handles

import (
	"errors"
	"fmt"
)

// Errors returned or raised by Tree.
var (
	// ErrUnknownParent is returned by Create when the parent handle was not
	// created in the current generation.
	ErrUnknownParent = errors.New("parent handle not in current generation")

	// ErrExhausted is returned by Create when no new handle can be minted.
	ErrExhausted = errors.New("handle space exhausted")

	// ErrRetired is the panic value when a tree is used after Advance.
	ErrRetired = errors.New("handle tree used after Advance")
)

// ParentError describes a Create call with an unusable parent handle.
type ParentError struct {
	Parent     Handle
	Key        string
	Generation uint64
}

func (e *ParentError) Error() string {
	return fmt.Sprintf("create %q under handle %d (generation %d): %v",
		e.Key, e.Parent, e.Generation, ErrUnknownParent)
}

func (e *ParentError) Unwrap() error {
	return ErrUnknownParent
}
