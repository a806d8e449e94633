package syncerr

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindSheetUnreachable      Kind = "sheet_unreachable"
	KindTimeout               Kind = "timeout"
	KindSchemaIncomplete      Kind = "schema_incomplete"
	KindAuthFailure           Kind = "auth_failure"
	KindNoMatchingRows        Kind = "no_matching_rows"
	KindNewDuplicateDetected  Kind = "new_duplicate_detected"
	KindMissingBoostedColumns Kind = "missing_boosted_columns"
)

// Error is the failure type returned by every reconciliation operation.
// StatusCode carries the destination's HTTP status verbatim when there was one.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Detail     string
	Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s [%s]", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether repeating the same call may succeed.
func (e *Error) IsRetryable() bool {
	if e.Kind != KindSheetUnreachable {
		return false
	}
	switch e.StatusCode {
	case 0, 429:
		return true
	default:
		return e.StatusCode >= 500
	}
}

func New(kind Kind, op, detail string) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Underlying: err}
}

// FromStatus classifies a destination failure by its HTTP status code.
func FromStatus(op string, statusCode int, err error) *Error {
	kind := KindSheetUnreachable
	if statusCode == 401 || statusCode == 403 {
		kind = KindAuthFailure
	}
	return &Error{Kind: kind, Op: op, StatusCode: statusCode, Underlying: err}
}

// Classify turns an arbitrary error from a destination call into an *Error.
// Errors that already carry a kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, op, err)
	}
	return Wrap(KindSheetUnreachable, op, err)
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// StatusCode returns the destination status code carried by err, or 0.
func StatusCode(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsBenign reports failures that mean "nothing to do" rather than a fault.
func IsBenign(err error) bool {
	return Is(err, KindNoMatchingRows)
}
