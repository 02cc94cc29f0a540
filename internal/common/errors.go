package common

import (
	"errors"
	"fmt"
)

// ErrorKind classifies analytics failures so callers can branch on them.
type ErrorKind string

const (
	KindDataUnavailable     ErrorKind = "data_unavailable"
	KindInsufficientData    ErrorKind = "insufficient_data"
	KindOptimizationFailure ErrorKind = "optimization_failure"
	KindComputationDomain   ErrorKind = "computation_domain"
	KindInputValidation     ErrorKind = "input_validation"
)

// Sentinels for errors.Is matching against an *AnalyticsError of the same kind.
var (
	ErrDataUnavailable     = &AnalyticsError{Kind: KindDataUnavailable}
	ErrInsufficientData    = &AnalyticsError{Kind: KindInsufficientData}
	ErrOptimizationFailure = &AnalyticsError{Kind: KindOptimizationFailure}
	ErrComputationDomain   = &AnalyticsError{Kind: KindComputationDomain}
	ErrInputValidation     = &AnalyticsError{Kind: KindInputValidation}
)

// AnalyticsError is a typed failure carrying its kind and the operation that produced it.
type AnalyticsError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AnalyticsError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *AnalyticsError) Unwrap() error {
	return e.Err
}

// Is matches any AnalyticsError with the same kind.
func (e *AnalyticsError) Is(target error) bool {
	t, ok := target.(*AnalyticsError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an AnalyticsError with a formatted cause.
func NewError(kind ErrorKind, op string, format string, args ...interface{}) error {
	return &AnalyticsError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WrapError attaches a kind to an existing error. A nil err yields nil.
func WrapError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &AnalyticsError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first AnalyticsError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ae *AnalyticsError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
