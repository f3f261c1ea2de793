package math_test

import (
	"errors"
	"testing"

	fpmath "LendLedger/internal/math"
)

func mustParse(t *testing.T, s string) fpmath.Number {
	t.Helper()
	n, err := fpmath.ParseNumber(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return n
}

// ============================================================================
// Construction
// ============================================================================

func TestFromBps(t *testing.T) {
	tests := []struct {
		bps  uint64
		want string
	}{
		{0, "0"},
		{1, "0.0001"},
		{50, "0.005"},
		{10_000, "1"},
		{12_500, "1.25"},
	}
	for _, tt := range tests {
		got := fpmath.FromBps(tt.bps)
		if got.String() != tt.want {
			t.Errorf("FromBps(%d): got %s, want %s", tt.bps, got, tt.want)
		}
	}
}

func TestFromDecimal(t *testing.T) {
	tests := []struct {
		value    uint64
		exponent int32
		want     string
	}{
		{1_000_000, -6, "1"},
		{1_500_000, -6, "1.5"},
		{42, 0, "42"},
		{3, 2, "300"},
		{123_456_789, -8, "1.23456789"},
	}
	for _, tt := range tests {
		got := fpmath.FromDecimal(tt.value, tt.exponent)
		if got.String() != tt.want {
			t.Errorf("FromDecimal(%d, %d): got %s, want %s", tt.value, tt.exponent, got, tt.want)
		}
	}
}

func TestParseNumber_RejectsNegative(t *testing.T) {
	if _, err := fpmath.ParseNumber("-1"); err == nil {
		t.Fatal("expected error for negative number")
	}
}

// ============================================================================
// Arithmetic
// ============================================================================

func TestArithmetic(t *testing.T) {
	a := mustParse(t, "1.5")
	b := mustParse(t, "0.25")

	sum, err := a.Add(b)
	if err != nil || sum.String() != "1.75" {
		t.Errorf("add: got %s (%v), want 1.75", sum, err)
	}

	diff, err := a.Sub(b)
	if err != nil || diff.String() != "1.25" {
		t.Errorf("sub: got %s (%v), want 1.25", diff, err)
	}

	prod, err := a.Mul(b)
	if err != nil || prod.String() != "0.375" {
		t.Errorf("mul: got %s (%v), want 0.375", prod, err)
	}

	quot, err := a.Div(b)
	if err != nil || quot.String() != "6" {
		t.Errorf("div: got %s (%v), want 6", quot, err)
	}
}

func TestSub_Underflow(t *testing.T) {
	_, err := fpmath.One().Sub(fpmath.FromUint64(2))
	if !errors.Is(err, fpmath.ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestSaturatingSub(t *testing.T) {
	got := fpmath.One().SaturatingSub(fpmath.FromUint64(2))
	if !got.IsZero() {
		t.Errorf("got %s, want 0", got)
	}
}

func TestDiv_ByZero(t *testing.T) {
	_, err := fpmath.One().Div(fpmath.Zero())
	if !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("got %v, want ErrDivisionByZero", err)
	}
}

func TestMul_Overflow(t *testing.T) {
	huge := fpmath.FromDecimal(^uint64(0), 40)
	_, err := huge.Mul(huge)
	if !errors.Is(err, fpmath.ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestCalc_StickyError(t *testing.T) {
	_, err := fpmath.Compute(fpmath.One()).
		Div(fpmath.Zero()).
		Add(fpmath.One()).
		Result()
	if !errors.Is(err, fpmath.ErrDivisionByZero) {
		t.Fatalf("got %v, want ErrDivisionByZero", err)
	}
}

// ============================================================================
// Conversion back to raw amounts
// ============================================================================

func TestAsU64_Rounding(t *testing.T) {
	n := mustParse(t, "1.0000005") // 1_000_000.5 raw units at 6 decimals

	down, err := n.AsU64(-6, fpmath.RoundDown)
	if err != nil {
		t.Fatalf("down: %v", err)
	}
	if down != 1_000_000 {
		t.Errorf("down: got %d, want 1_000_000", down)
	}

	up, err := n.AsU64(-6, fpmath.RoundUp)
	if err != nil {
		t.Fatalf("up: %v", err)
	}
	if up != 1_000_001 {
		t.Errorf("up: got %d, want 1_000_001", up)
	}
}

func TestAsU64_ExactValueIgnoresRounding(t *testing.T) {
	n := fpmath.FromUint64(1050)
	for _, mode := range []fpmath.RoundingMode{fpmath.RoundDown, fpmath.RoundUp} {
		got, err := n.AsU64(0, mode)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		if got != 1050 {
			t.Errorf("%s: got %d, want 1050", mode, got)
		}
	}
}

func TestAsU64_Overflow(t *testing.T) {
	n := fpmath.FromDecimal(^uint64(0), 1)
	if _, err := n.AsU64(0, fpmath.RoundDown); !errors.Is(err, fpmath.ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestTextRoundTrip(t *testing.T) {
	n := mustParse(t, "12.345")
	text, err := n.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back fpmath.Number
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Eq(n) {
		t.Errorf("got %s, want %s", back, n)
	}
}

// ============================================================================
// Compounding
// ============================================================================

func TestCompoundRate(t *testing.T) {
	rate := mustParse(t, "0.1")

	got, err := fpmath.CompoundRate(rate, 2)
	if err != nil {
		t.Fatalf("compound: %v", err)
	}
	if got.String() != "1.21" {
		t.Errorf("got %s, want 1.21", got)
	}

	zero, err := fpmath.CompoundRate(rate, 0)
	if err != nil {
		t.Fatalf("compound zero: %v", err)
	}
	if !zero.Eq(fpmath.One()) {
		t.Errorf("zero slots: got %s, want 1", zero)
	}
}

func TestCompoundRate_NeverBelowOne(t *testing.T) {
	tiny := fpmath.FromDecimal(1, -15)
	for _, slots := range []uint64{1, 7, 1_000, 78_840_000} {
		got, err := fpmath.CompoundRate(tiny, slots)
		if err != nil {
			t.Fatalf("slots=%d: %v", slots, err)
		}
		if got.Lt(fpmath.One()) {
			t.Errorf("slots=%d: got %s < 1", slots, got)
		}
	}
}

func TestInterpolateLinear(t *testing.T) {
	got, err := fpmath.InterpolateLinear(
		mustParse(t, "0.5"),
		fpmath.Zero(), fpmath.One(),
		mustParse(t, "0.1"), mustParse(t, "0.3"),
	)
	if err != nil {
		t.Fatalf("interpolate: %v", err)
	}
	if got.String() != "0.2" {
		t.Errorf("got %s, want 0.2", got)
	}
}
