package applier

import (
	"errors"
	"fmt"
)

// Errors
var (
	ErrMalformedOperation = errors.New("malformed operation")
	ErrUnknownOp          = errors.New("unknown op")
	ErrEmptyPath          = errors.New("empty path")
	ErrUnknownRoot        = errors.New("unknown root")
	ErrMissingSegment     = errors.New("missing path segment")
	ErrUnsetWithoutName   = errors.New("unset needs a property name")
	ErrUnsupportedTarget  = errors.New("target does not support op")
	ErrDeleteSelector     = errors.New("delete needs exactly one of pos, findWhere or value")
	ErrNoMatch            = errors.New("no matching element")
	ErrPosition           = errors.New("position out of range")
)

// ApplicationError is a failure scoped to one Operation.
type ApplicationError struct {
	Path []Segment
	Op   OpKind
	Err  error
}

func (e *ApplicationError) Error() string {
	if e.Op == 0 {
		return fmt.Sprintf("operation %s: %v", FormatPath(e.Path), e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, FormatPath(e.Path), e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}
