// Package dberrors defines the single flat error enumeration every public
// storage_engine operation reports through, instead of ad-hoc fmt.Errorf
// strings.
package dberrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the closed set of error categories the engine can report.
type Kind byte

const (
	Success Kind = iota
	Failed
	AlreadyExist
	NotExist
	TableAlreadyExist
	TableNotExist
	IndexAlreadyExist
	IndexNotFound
	ColumnNameNotExist
	KeyNotFound
	Quit
	OutOfSpace
	InvalidPage
	NoAvailableFrame
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Failed:
		return "failed"
	case AlreadyExist:
		return "already exists"
	case NotExist:
		return "does not exist"
	case TableAlreadyExist:
		return "table already exists"
	case TableNotExist:
		return "table does not exist"
	case IndexAlreadyExist:
		return "index already exists"
	case IndexNotFound:
		return "index not found"
	case ColumnNameNotExist:
		return "column does not exist"
	case KeyNotFound:
		return "key not found"
	case Quit:
		return "quit"
	case OutOfSpace:
		return "out of space"
	case InvalidPage:
		return "invalid page"
	case NoAvailableFrame:
		return "no available frame"
	default:
		return "unknown error"
	}
}

// Error wraps a Kind with a human-readable message and an optional cause,
// so catalog/disk internals can chain context (via github.com/pkg/errors)
// while callers keep comparing against the flat Kind with errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, dberrors.TableNotExist) work by comparing Kind,
// treating a bare Kind value on the right-hand side as a sentinel.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	if !ok {
		if te, ok := target.(*Error); ok {
			return e.Kind == te.Kind
		}
		return false
	}
	return e.Kind == k
}

// KindOf returns the category of any error: the Kind of the first *Error in
// its chain, Success for nil, and Failed for any other error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return Success
	}
	return Failed
}

// Error lets a bare Kind itself satisfy the error interface, so sentinel
// comparisons (errors.Is(err, dberrors.NotExist)) work without allocating
// an *Error when the caller has no extra context to attach.
func (k Kind) Error() string { return k.String() }
