package memory

import (
	"errors"
	"fmt"
)

// Kind is the closed taxonomy of store errors. Boundary code decides
// between log-and-acknowledge and return-typed-error from the kind,
// never from the dynamic error type.
type Kind int

const (
	// KindValidation is malformed input, rejected before any write.
	KindValidation Kind = iota + 1
	// KindStorage is an I/O failure or constraint violation.
	KindStorage
	// KindSearch is an invalid query parameter.
	KindSearch
	// KindProcessing is a failed summarization or backend call.
	KindProcessing
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindSearch:
		return "search"
	case KindProcessing:
		return "processing"
	}
	return "unknown"
}

// Error carries an error kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("memory: %s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("memory: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind and operation name.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef is E with fmt.Errorf-style formatting.
func Ef(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether any error in err's chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
