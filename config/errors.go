package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownParam is returned by Set and Get for an unrecognized name.
var ErrUnknownParam = errors.New("unknown configuration parameter")

// ErrOutOfRange reports a parameter outside its documented bounds.
type ErrOutOfRange struct {
	Param string
	Value any
	Range string
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("%s = %v is out of range %s", e.Param, e.Value, e.Range)
}

// ErrIncompatible reports parameters that are individually valid but
// conflict with each other or with persisted exclusion metadata.
type ErrIncompatible struct {
	Param    string
	Expected any
	Actual   any
	Hint     string
	Err      error
}

func (e *ErrIncompatible) Error() string {
	msg := fmt.Sprintf("incompatible %s: expected %v, got %v", e.Param, e.Expected, e.Actual)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ErrIncompatible) Unwrap() error { return e.Err }

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	return errors.As(err, target)
}
