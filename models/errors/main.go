package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

/*
	Tagged errors used across the load pipeline so that callers
	can decide between abort, retry and report without looking
	at error messages.
*/
type Kind int

const (
	Unknown Kind = iota
	// Operation never started, nothing was written
	FatalPrecondition
	// I/O failure during stage or merge; resumable
	Transient
	// Post load validation mismatch; logged, not retried
	ConsistencyWarning
	// Value could not be encoded and was stored as is
	Codec
)

func (k Kind) String() string {
	switch k {
	case FatalPrecondition:
		return "FatalPrecondition"
	case Transient:
		return "Transient"
	case ConsistencyWarning:
		return "ConsistencyWarning"
	case Codec:
		return "Codec"
	default:
		return "Unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Cause lets pkg/errors walk through the tag
func (e *Error) Cause() error { return e.Err }

func New(kind Kind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

func Fatal(op string, format string, args ...interface{}) error {
	return New(FatalPrecondition, op, format, args...)
}

func Transientf(op string, format string, args ...interface{}) error {
	return New(Transient, op, format, args...)
}

func Consistency(op string, format string, args ...interface{}) error {
	return New(ConsistencyWarning, op, format, args...)
}

// KindOf returns the kind of the outermost tagged error in the chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsFatal(err error) bool {
	return IsKind(err, FatalPrecondition)
}

// Retryable errors are the ones a re-run with a resume flag may fix
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == Transient || k == Unknown
}

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)
