package codec

import (
	"errors"
	"fmt"
)

// ErrMalformed is returned when packed bytes do not describe a valid sequence.
var ErrMalformed = errors.New("malformed encoded sequence")

// ErrInvalidCharacter indicates an input symbol outside the type's alphabet.
type ErrInvalidCharacter struct {
	Char     byte
	Position int
	Type     Type
}

func (e *ErrInvalidCharacter) Error() string {
	return fmt.Sprintf("invalid character %q at position %d for %s (allowed: %s, case-insensitive)",
		e.Char, e.Position, e.Type, e.Type.Alphabet())
}

// ErrUnknownType indicates an unsupported type tag.
type ErrUnknownType struct {
	Type Type
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown sequence type: %d", uint8(e.Type))
}

// ErrSequenceTooLong indicates a sequence whose bit length overflows the
// 32-bit length prefix.
type ErrSequenceTooLong struct {
	Bases int
	Type  Type
}

func (e *ErrSequenceTooLong) Error() string {
	return fmt.Sprintf("sequence of %d bases exceeds maximum %s bit length %d", e.Bases, e.Type, uint64(MaxBitLength))
}
