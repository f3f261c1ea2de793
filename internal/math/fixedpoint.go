package math

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional decimal digits carried by a Number.
const Precision = 15

var (
	oneScaled = uint256.NewInt(1_000_000_000_000_000) // 10^Precision
	bpsScale  = uint256.NewInt(10_000)
	maxU64    = uint256.NewInt(^uint64(0))
)

// Number is an unsigned fixed-point decimal with Precision fractional digits,
// stored as a 256-bit integer scaled by 10^Precision.
//
// The zero value is 0. Number is a value type; copies are independent.
type Number struct {
	v uint256.Int
}

// Zero returns 0.
func Zero() Number { return Number{} }

// One returns 1.
func One() Number {
	var n Number
	n.v.Set(oneScaled)
	return n
}

// FromUint64 returns the integer n.
func FromUint64(n uint64) Number {
	var out Number
	out.v.Mul(uint256.NewInt(n), oneScaled)
	return out
}

// FromBps returns bps / 10_000.
func FromBps(bps uint64) Number {
	var out Number
	out.v.Mul(uint256.NewInt(bps), oneScaled)
	out.v.Div(&out.v, bpsScale)
	return out
}

// FromDecimal returns value * 10^exponent. Raw token amounts use the token's
// (negative) decimal exponent; oracle prices use the feed exponent.
// Digits beyond Precision are truncated.
func FromDecimal(value uint64, exponent int32) Number {
	var out Number
	out.v.Mul(uint256.NewInt(value), oneScaled)
	switch {
	case exponent > 0:
		out.v.Mul(&out.v, pow10(uint64(exponent)))
	case exponent < 0:
		out.v.Div(&out.v, pow10(uint64(-exponent)))
	}
	return out
}

// ParseNumber parses a non-negative decimal string such as "1.05".
func ParseNumber(s string) (Number, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Number{}, fmt.Errorf("parse number %q: %w", s, err)
	}
	return FromDecimalValue(d)
}

// FromDecimalValue converts a shopspring decimal, truncating digits beyond
// Precision.
func FromDecimalValue(d decimal.Decimal) (Number, error) {
	if d.IsNegative() {
		return Number{}, fmt.Errorf("number %s is negative: %w", d.String(), ErrArithmeticOverflow)
	}
	scaled := d.Shift(Precision).BigInt()
	v, overflow := uint256.FromBig(scaled)
	if overflow {
		return Number{}, fmt.Errorf("number %s: %w", d.String(), ErrArithmeticOverflow)
	}
	return Number{v: *v}, nil
}

// Add returns n + o.
func (n Number) Add(o Number) (Number, error) {
	var out Number
	if _, overflow := out.v.AddOverflow(&n.v, &o.v); overflow {
		return Number{}, ErrArithmeticOverflow
	}
	return out, nil
}

// Sub returns n - o. A negative result is an ErrArithmeticOverflow.
func (n Number) Sub(o Number) (Number, error) {
	var out Number
	if _, underflow := out.v.SubOverflow(&n.v, &o.v); underflow {
		return Number{}, ErrArithmeticOverflow
	}
	return out, nil
}

// SaturatingSub returns n - o, or 0 when o > n.
func (n Number) SaturatingSub(o Number) Number {
	if n.v.Lt(&o.v) {
		return Number{}
	}
	var out Number
	out.v.Sub(&n.v, &o.v)
	return out
}

// Mul returns n * o, truncated to Precision.
func (n Number) Mul(o Number) (Number, error) {
	var out Number
	if _, overflow := out.v.MulDivOverflow(&n.v, &o.v, oneScaled); overflow {
		return Number{}, ErrArithmeticOverflow
	}
	return out, nil
}

// Div returns n / o, truncated to Precision.
func (n Number) Div(o Number) (Number, error) {
	if o.v.IsZero() {
		return Number{}, ErrDivisionByZero
	}
	var out Number
	if _, overflow := out.v.MulDivOverflow(&n.v, oneScaled, &o.v); overflow {
		return Number{}, ErrArithmeticOverflow
	}
	return out, nil
}

// Cmp compares n and o and returns -1, 0 or +1.
func (n Number) Cmp(o Number) int { return n.v.Cmp(&o.v) }

func (n Number) Lt(o Number) bool  { return n.v.Lt(&o.v) }
func (n Number) Lte(o Number) bool { return !n.v.Gt(&o.v) }
func (n Number) Gt(o Number) bool  { return n.v.Gt(&o.v) }
func (n Number) Gte(o Number) bool { return !n.v.Lt(&o.v) }
func (n Number) Eq(o Number) bool  { return n.v.Eq(&o.v) }

// IsZero reports whether n == 0.
func (n Number) IsZero() bool { return n.v.IsZero() }

// Min returns the smaller of a and b.
func Min(a, b Number) Number {
	if a.Lt(b) {
		return a
	}
	return b
}

// AsU64 converts n back to a raw integer amount at the given decimal
// exponent (the inverse of FromDecimal), rounding as requested.
func (n Number) AsU64(exponent int32, rounding RoundingMode) (uint64, error) {
	num := new(uint256.Int).Set(&n.v)
	den := new(uint256.Int).Set(oneScaled)
	switch {
	case exponent < 0:
		if _, overflow := num.MulOverflow(num, pow10(uint64(-exponent))); overflow {
			return 0, ErrArithmeticOverflow
		}
	case exponent > 0:
		den.Mul(den, pow10(uint64(exponent)))
	}

	q, err := divideRounded(num, den, rounding)
	if err != nil {
		return 0, err
	}
	if q.Gt(maxU64) {
		return 0, ErrArithmeticOverflow
	}
	return q.Uint64(), nil
}

// Decimal renders n as a shopspring decimal.
func (n Number) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(n.v.ToBig(), -Precision)
}

func (n Number) String() string {
	return n.Decimal().String()
}

// MarshalText encodes n as a decimal string.
func (n Number) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText decodes a decimal string.
func (n *Number) UnmarshalText(text []byte) error {
	parsed, err := ParseNumber(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Bytes32 returns the big-endian scaled representation, used for state
// hashing.
func (n Number) Bytes32() [32]byte {
	return n.v.Bytes32()
}

// divideRounded performs numerator / denominator with the given rounding.
func divideRounded(numerator, denominator *uint256.Int, mode RoundingMode) (*uint256.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient := new(uint256.Int)
	remainder := new(uint256.Int)
	quotient.DivMod(numerator, denominator, remainder)

	if mode == RoundUp && !remainder.IsZero() {
		if _, overflow := quotient.AddOverflow(quotient, uint256.NewInt(1)); overflow {
			return nil, ErrArithmeticOverflow
		}
	}
	return quotient, nil
}

func pow10(exp uint64) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(exp))
}
