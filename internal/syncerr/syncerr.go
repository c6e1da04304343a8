// Package syncerr is the error taxonomy of the sync engine. Components
// translate store errors into these kinds so nothing above them sees a raw
// driver error.
package syncerr

import (
	"errors"
	"fmt"

	"github.com/MrJamesThe3rd/till/internal/docstore"
)

type Kind int

const (
	KindUnavailable Kind = iota
	// KindConfiguration is fatal: the caller must not proceed.
	KindConfiguration
	KindAccessDenied
	// KindIndexMissing covers failed-precondition responses such as a
	// missing composite index. Operators have to act on it.
	KindIndexMissing
	KindTransientWrite
	// KindPartialBatch means a chunked operation stopped partway. How much
	// was committed is unknown; retrying the whole operation is safe.
	KindPartialBatch
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAccessDenied:
		return "access_denied"
	case KindIndexMissing:
		return "index_missing"
	case KindTransientWrite:
		return "transient_write"
	case KindPartialBatch:
		return "partial_batch"
	}

	return "unavailable"
}

var (
	ErrMissingTenant = errors.New("tenant id is required")
	ErrBusy          = errors.New("another bulk operation is in progress")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration wraps ErrMissingTenant for op.
func Configuration(op string) *Error {
	return New(KindConfiguration, op, ErrMissingTenant)
}

// Translate classifies err for op. Errors already carrying a kind keep it.
// write selects KindTransientWrite instead of KindUnavailable for
// unclassified failures.
func Translate(op string, err error, write bool) error {
	if err == nil {
		return nil
	}

	var se *Error
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, docstore.ErrPermissionDenied):
		return New(KindAccessDenied, op, err)
	case errors.Is(err, docstore.ErrFailedPrecondition):
		return New(KindIndexMissing, op, err)
	case write:
		return New(KindTransientWrite, op, err)
	}

	return New(KindUnavailable, op, err)
}

// KindOf reports the kind of err, KindUnavailable when it has none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	return KindUnavailable
}

func Is(err error, kind Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}
