package failure

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers at the query boundary
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnknownCategory Kind = "unknown_category"
	KindInvalidQuery    Kind = "invalid_query"
	KindEmptyDataset    Kind = "empty_dataset"
	KindDatasetLoad     Kind = "dataset_load"
	KindEmptyResultSet  Kind = "empty_result_set"
	KindTimeout         Kind = "timeout"
	KindNotFound        Kind = "not_found"
)

// Sentinels for errors.Is checks against a Kind
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUnknownCategory = &Error{Kind: KindUnknownCategory}
	ErrInvalidQuery    = &Error{Kind: KindInvalidQuery}
	ErrEmptyDataset    = &Error{Kind: KindEmptyDataset}
	ErrDatasetLoad     = &Error{Kind: KindDatasetLoad}
	ErrEmptyResultSet  = &Error{Kind: KindEmptyResultSet}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrNotFound        = &Error{Kind: KindNotFound}
)

// Error is the structured error returned by every engine component
type Error struct {
	Kind   Kind
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	switch {
	case e.Field != "" && e.Value != "":
		msg = fmt.Sprintf("%s: %s=%q: %s", e.Kind, e.Field, e.Value, e.Reason)
	case e.Field != "":
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Reason)
	case e.Reason != "":
		msg = fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so sentinels compare by kind only.
// Unknown categories and invalid queries are also validation failures.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindValidation && (e.Kind == KindUnknownCategory || e.Kind == KindInvalidQuery)
}

// Validation reports a bad or out-of-range query field
func Validation(field, reason string) error {
	return &Error{Kind: KindValidation, Field: field, Reason: reason}
}

// UnknownCategory reports a categorical value absent from the trained mapping
func UnknownCategory(field, value string) error {
	return &Error{
		Kind:   KindUnknownCategory,
		Field:  field,
		Value:  value,
		Reason: "value is not a known category",
	}
}

// InvalidQuery reports a structurally unusable query
func InvalidQuery(field, reason string) error {
	return &Error{Kind: KindInvalidQuery, Field: field, Reason: reason}
}

// DatasetLoad wraps a startup loader failure
func DatasetLoad(reason string, err error) error {
	return &Error{Kind: KindDatasetLoad, Reason: reason, Err: err}
}

// EmptyDataset reports that no records were available to build from
func EmptyDataset() error {
	return &Error{Kind: KindEmptyDataset, Reason: "dataset contains no records"}
}

// EmptyResultSet reports an aggregation over zero twins
func EmptyResultSet() error {
	return &Error{Kind: KindEmptyResultSet, Reason: "no twins to summarize"}
}

// Timeout wraps a context expiry during a bounded operation
func Timeout(reason string, err error) error {
	return &Error{Kind: KindTimeout, Reason: reason, Err: err}
}

// NotFound reports a lookup of an identifier absent from the index
func NotFound(field, value string) error {
	return &Error{Kind: KindNotFound, Field: field, Value: value, Reason: "not found"}
}

// KindOf returns the Kind of err, or "" when err is not an engine error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldOf returns the offending field of err, if any
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}

// IsUserError reports whether err is recoverable by changing the query
func IsUserError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUnknownCategory, KindInvalidQuery:
		return true
	}
	return false
}
