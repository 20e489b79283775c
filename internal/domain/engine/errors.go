package engine

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures so the handler can map them to distinct
// response codes instead of collapsing everything into one.
type Kind string

const (
	// KindSemantic means the input was well-formed but no meaningful
	// result exists for it, e.g. a zero-coverage portfolio.
	KindSemantic Kind = "semantic"
	// KindInternal means the scoring library itself failed.
	KindInternal Kind = "internal"
)

// Sentinel causes for semantic failures.
var (
	ErrZeroExposure = errors.New("portfolio has zero total exposure")
	ErrZeroCoverage = errors.New("no portfolio exposure could be scored from target data")
)

// Error wraps any failure raised inside the scoring library with its kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine %s failure: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func semanticErr(err error) *Error { return &Error{Kind: KindSemantic, Err: err} }
func internalErr(err error) *Error { return &Error{Kind: KindInternal, Err: err} }

// IsSemantic reports whether err is a semantic engine failure.
func IsSemantic(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindSemantic
}
