package rules

import (
	"errors"
	"fmt"
)

// ErrorKind classifies rule store and engine failures.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindDuplicateID
	KindNotFound
	KindInvalidRule
	KindConflict
	KindIndexUpdate
	KindCapacityExhausted
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindDuplicateID:
		return "duplicate id"
	case KindNotFound:
		return "not found"
	case KindInvalidRule:
		return "invalid rule"
	case KindConflict:
		return "conflict"
	case KindIndexUpdate:
		return "index update failure"
	case KindCapacityExhausted:
		return "capacity exhausted"
	default:
		return "unknown"
	}
}

// Error is a structured rule operation failure.
type Error struct {
	Kind ErrorKind
	ID   uint32 // rule ID the operation targeted, when applicable
	Msg  string
	Err  error // wrapped cause, when applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, or KindUnknown if err is not
// a rules error.
func KindOf(err error) ErrorKind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

func errDuplicateID(id uint32) error {
	return &Error{Kind: KindDuplicateID, ID: id, Msg: fmt.Sprintf("rule %d already exists", id)}
}

func errNotFound(id uint32) error {
	return &Error{Kind: KindNotFound, ID: id, Msg: fmt.Sprintf("rule %d", id)}
}

func errConflict(id, other uint32) error {
	return &Error{Kind: KindConflict, ID: id,
		Msg: fmt.Sprintf("rule %d duplicates filter and priority of rule %d", id, other)}
}

func invalidRulef(format string, args ...any) error {
	return &Error{Kind: KindInvalidRule, Msg: fmt.Sprintf(format, args...)}
}

// IndexUpdateError wraps an index mutation failure that forced a write
// rollback.
func IndexUpdateError(id uint32, err error) error {
	return &Error{Kind: KindIndexUpdate, ID: id, Err: err}
}
