package apperr

import (
	"errors"
	"fmt"
)

// Kind is the taxonomy bucket of a domain failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindStateTransition
	KindCapital
	KindFunds
	KindAccess
	KindOracleProtocol
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindStateTransition:
		return "StateTransition"
	case KindCapital:
		return "Capital"
	case KindFunds:
		return "Funds"
	case KindAccess:
		return "Access"
	case KindOracleProtocol:
		return "OracleProtocol"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the structured failure returned by every engine operation.
// Reason is stable and machine-readable; Msg is for humans.
type Error struct {
	Kind   Kind
	Reason Reason
	Msg    string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Reason, e.Msg)
}

// Is matches any *Error carrying the same reason, so callers can write
// errors.Is(err, &apperr.Error{Reason: apperr.PolicyNotExpired}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// New builds an *Error. The kind is looked up from the reason table.
func New(reason Reason, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   reason.Kind(),
		Reason: reason,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// As extracts the *Error from err, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns KindUnknown for non-domain errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns "" for non-domain errors.
func ReasonOf(err error) Reason {
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ""
}

// Retryable reports whether the caller may retry after remediation
// (topping up balance, raising allowance, resuming the treasury).
func Retryable(err error) bool {
	return KindOf(err) == KindFunds
}
