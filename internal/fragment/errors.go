package fragment

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store implementations when no fragment exists
// for the given owner and id.
var ErrNotFound = errors.New("fragment not found")

// Kind classifies failures so callers can branch without inspecting
// message text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is malformed input at the boundary: missing owner,
	// non-ingestible type, absent body.
	KindValidation
	// KindNotFound means the fragment does not exist for this owner.
	KindNotFound
	// KindUnsupportedConversion is a policy refusal: unknown extension or
	// a pair outside the conversion matrix.
	KindUnsupportedConversion
	// KindConversion is a conversion that was attempted and failed.
	KindConversion
	// KindStore is a failure of the Store.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnsupportedConversion:
		return "unsupported_conversion"
	case KindConversion:
		return "conversion"
	case KindStore:
		return "store"
	}
	return "unknown"
}

// Reason distinguishes the two flavors of unsupported conversion.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonUnknownExtension: the requested extension maps to no type.
	ReasonUnknownExtension
	// ReasonNoRoute: the target type is known but unreachable from the
	// fragment's type.
	ReasonNoRoute
	// ReasonUnsupportedType: a declared Content-Type is not ingestible.
	ReasonUnsupportedType
)

// Error is the error type returned by every operation in this package.
type Error struct {
	Kind   Kind
	Reason Reason
	Op     string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindUnknown if err did not come from
// this package.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// ReasonOf returns the Reason attached to err, if any.
func ReasonOf(err error) Reason {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ReasonNone
}

func validationError(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Op: op, Err: fmt.Errorf(format, args...)}
}

func notFound(op, id string) error {
	return &Error{Kind: KindNotFound, Op: op, ID: id, Err: ErrNotFound}
}

func storeError(op, id string, err error) error {
	return &Error{Kind: KindStore, Op: op, ID: id, Err: err}
}
