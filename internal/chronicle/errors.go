package chronicle

import (
	"errors"
	"fmt"
)

// Failure kinds. Every run failure wraps exactly one of these.
var (
	ErrInvalidQuery            = errors.New("invalid query")
	ErrSearchFailed            = errors.New("search failed")
	ErrOrganizeFailed          = errors.New("organize failed")
	ErrEnrichFailed            = errors.New("enrich failed")
	ErrInconsistentBucketCount = errors.New("inconsistent bucket count")
	ErrEnrichmentMismatch      = errors.New("enrichment mismatch")
)

// Stage names a pipeline phase.
type Stage string

const (
	StageValidate Stage = "validate"
	StageSearch   Stage = "search"
	StageOrganize Stage = "organize"
	StageEnrich   Stage = "enrich"
	StageRender   Stage = "render"
)

// StageError is the terminal failure of a run.
type StageError struct {
	Stage Stage
	Kind  error
	Msg   string
	Err   error
}

// NewStageError builds a StageError. err may be nil.
func NewStageError(stage Stage, kind error, err error, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
