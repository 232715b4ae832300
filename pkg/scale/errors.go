package scale

import (
	"errors"
	"fmt"
)

// Decode failures.
var (
	ErrTruncatedInput      = errors.New("scale: truncated input")
	ErrTrailingBytes       = errors.New("scale: trailing bytes")
	ErrInvalidDiscriminant = errors.New("scale: invalid discriminant")
	ErrLengthMismatch      = errors.New("scale: declared length exceeds input")
	ErrNonCanonical        = errors.New("scale: non-canonical compact encoding")
	ErrInvalidUTF8         = errors.New("scale: invalid utf-8 string")
)

// DecodeError reports where in the input a decode failed.
type DecodeError struct {
	// Op names the value being decoded (e.g. "bool", "compact", "Utxo").
	Op string
	// Offset is the byte offset at which the failing read started.
	Offset int
	// Err is one of the package sentinels.
	Err error
	// Detail is optional extra context.
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s at offset %d: %s", e.Err, e.Op, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%v: %s at offset %d", e.Err, e.Op, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets a length mismatch also match ErrTruncatedInput: a sequence whose
// declared length cannot be satisfied is truncated input.
func (e *DecodeError) Is(target error) bool {
	return target == ErrTruncatedInput && e.Err == ErrLengthMismatch
}

// Offset returns the byte offset carried by err, or -1.
func Offset(err error) int {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Offset
	}
	return -1
}
