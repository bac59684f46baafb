package adapter

import (
	"errors"
	"fmt"
)

// Errors answered to the client as failed responses.
var (
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrAlreadyLaunched    = errors.New("debuggee already launched")
	ErrNotStopped         = errors.New("debuggee is not stopped")
	ErrUnknownThread      = errors.New("unknown thread")
	ErrCannotEvaluate     = errors.New("cannot evaluate")
)

// Error ids carried in the error response body.
const (
	errIDInternal  = 1000
	errIDReference = 1001
	errIDCommand   = 1002
)

// ReferenceError reports a frameId or variablesReference that does not
// resolve in the current generation.
type ReferenceError struct {
	Ref int
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("invalid reference %d", e.Ref)
}

func errorID(err error) int {
	var refErr *ReferenceError
	switch {
	case errors.As(err, &refErr):
		return errIDReference
	case errors.Is(err, ErrUnsupportedCommand):
		return errIDCommand
	default:
		return errIDInternal
	}
}
