package math

import "errors"

var (
	// ErrArithmeticOverflow is returned when a checked operation leaves the
	// representable range, including subtraction below zero.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")
)
