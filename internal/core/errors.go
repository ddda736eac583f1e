package core

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateName    = errors.New("duplicate name")
	ErrNotFound         = errors.New("not found")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidNickname  = errors.New("invalid nickname")
	ErrInvalidName      = errors.New("invalid name")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrProductInUse     = errors.New("product is referenced by debt lines")
	ErrAmountOverflow   = errors.New("ledger sum out of range")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// SchemaError reports a schema object that could not be created.
// Startup must not continue past it.
type SchemaError struct {
	Object string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema object %s: %v", e.Object, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err is an input or reference problem the
// caller can fix and retry, as opposed to a schema or store failure.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidNickname),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrProductInUse):
		return true
	}
	return false
}
