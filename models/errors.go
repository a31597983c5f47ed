package models

import (
	"errors"
	"fmt"
)

// ErrEmptyTable is returned when an aggregate operation (mean, first-row
// summary) is invoked on a zero-row table.
var ErrEmptyTable = errors.New("table has no rows")

// ValidationError reports a raw record that could not be converted into a
// table row. The whole build aborts; no partial table is produced.
type ValidationError struct {
	Index int
	Field string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s not numeric for record at index %d (got %v)", e.Field, e.Index, e.Value)
}

// BackendError wraps any failure from an external backend (auth, quota,
// network, malformed response). Surfaced verbatim; never retried.
type BackendError struct {
	Service string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
