package types

import (
	"errors"
	"fmt"
)

// ErrKind is one of the taxonomy entries from spec.md §7. It is a kind, not
// a concrete error type: callers wrap a sentinel with fmt.Errorf("%w: ...")
// and inspect it with errors.Is.
type ErrKind struct {
	kind string
}

func (e *ErrKind) Error() string { return e.kind }

// Kind returns this error kind's lowercase name, e.g. "wrong-type".
func (e *ErrKind) Kind() string { return e.kind }

var (
	ErrSyntax               = &ErrKind{"syntax"}
	ErrWrongType             = &ErrKind{"wrong-type"}
	ErrOutOfRange            = &ErrKind{"out-of-range"}
	ErrInvalidInt            = &ErrKind{"invalid-int"}
	ErrInvalidFloat          = &ErrKind{"invalid-float"}
	ErrInvalidNumericResult  = &ErrKind{"invalid-numeric-result"}
	ErrKeyNotFound           = &ErrKind{"key-not-found"}
	ErrOutOfMemory           = &ErrKind{"out-of-memory"}
	ErrLoading               = &ErrKind{"loading"}
	ErrAuthRequired          = &ErrKind{"auth-required"}
	ErrAuthRejected          = &ErrKind{"auth-rejected"}
	ErrBusyGroup             = &ErrKind{"busy-group"}
	ErrWrongSlot             = &ErrKind{"wrong-slot"}
	ErrMoved                 = &ErrKind{"moved"}
	ErrClusterDown           = &ErrKind{"cluster-down"}
	ErrProtocol              = &ErrKind{"protocol-error"}
	ErrInternal              = &ErrKind{"internal"}
	ErrInterrupted           = &ErrKind{"interrupted"}
)

// WrapKind builds an error from msg that wraps kind, so that
// errors.Is(result, kind) holds.
func WrapKind(kind *ErrKind, msg string) error {
	return fmt.Errorf("%w: %s", kind, msg)
}

// KindOf walks the error chain looking for one of the sentinel ErrKinds,
// defaulting to ErrInternal when none is found.
func KindOf(err error) *ErrKind {
	for _, k := range allKinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

var allKinds = []*ErrKind{
	ErrSyntax, ErrWrongType, ErrOutOfRange, ErrInvalidInt, ErrInvalidFloat,
	ErrInvalidNumericResult, ErrKeyNotFound, ErrOutOfMemory, ErrLoading,
	ErrAuthRequired, ErrAuthRejected, ErrBusyGroup, ErrWrongSlot, ErrMoved,
	ErrClusterDown, ErrProtocol, ErrInternal, ErrInterrupted,
}
