package state

import (
	"encoding/json"
	"fmt"

	fpmath "LendLedger/internal/math"
)

// AmountUnits tags which quantity an Amount is expressed in.
type AmountUnits int

const (
	UnitsTokens AmountUnits = iota
	UnitsDepositNotes
	UnitsLoanNotes
)

func (u AmountUnits) String() string {
	switch u {
	case UnitsTokens:
		return "tokens"
	case UnitsDepositNotes:
		return "deposit_notes"
	case UnitsLoanNotes:
		return "loan_notes"
	default:
		return "unknown"
	}
}

func ParseAmountUnits(s string) (AmountUnits, error) {
	switch s {
	case "tokens":
		return UnitsTokens, nil
	case "deposit_notes":
		return UnitsDepositNotes, nil
	case "loan_notes":
		return UnitsLoanNotes, nil
	default:
		return 0, fmt.Errorf("amount units %q: %w", s, ErrInvalidAmountUnits)
	}
}

func (u AmountUnits) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *AmountUnits) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmountUnits(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Amount is a caller-supplied quantity with its unit tag.
type Amount struct {
	Units AmountUnits `json:"units"`
	Value uint64      `json:"value"`
}

func Tokens(v uint64) Amount       { return Amount{Units: UnitsTokens, Value: v} }
func DepositNotes(v uint64) Amount { return Amount{Units: UnitsDepositNotes, Value: v} }
func LoanNotes(v uint64) Amount    { return Amount{Units: UnitsLoanNotes, Value: v} }

// AsTokens normalizes a deposit-side amount to tokens.
func (a Amount) AsTokens(info ReserveInfo, rounding fpmath.RoundingMode) (uint64, error) {
	switch a.Units {
	case UnitsTokens:
		return a.Value, nil
	case UnitsDepositNotes:
		return info.DepositNotesToTokens(a.Value, rounding)
	default:
		return 0, fmt.Errorf("%s as tokens: %w", a.Units, ErrInvalidAmountUnits)
	}
}

// AsDepositNotes normalizes a deposit-side amount to deposit notes.
func (a Amount) AsDepositNotes(info ReserveInfo, rounding fpmath.RoundingMode) (uint64, error) {
	switch a.Units {
	case UnitsTokens:
		return info.DepositNotesFromTokens(a.Value, rounding)
	case UnitsDepositNotes:
		return a.Value, nil
	default:
		return 0, fmt.Errorf("%s as deposit notes: %w", a.Units, ErrInvalidAmountUnits)
	}
}

// AsLoanTokens normalizes a debt-side amount to tokens.
func (a Amount) AsLoanTokens(info ReserveInfo, rounding fpmath.RoundingMode) (uint64, error) {
	switch a.Units {
	case UnitsTokens:
		return a.Value, nil
	case UnitsLoanNotes:
		return info.LoanNotesToTokens(a.Value, rounding)
	default:
		return 0, fmt.Errorf("%s as loan tokens: %w", a.Units, ErrInvalidAmountUnits)
	}
}

// AsLoanNotes normalizes a debt-side amount to loan notes.
func (a Amount) AsLoanNotes(info ReserveInfo, rounding fpmath.RoundingMode) (uint64, error) {
	switch a.Units {
	case UnitsTokens:
		return info.LoanNotesFromTokens(a.Value, rounding)
	case UnitsLoanNotes:
		return a.Value, nil
	default:
		return 0, fmt.Errorf("%s as loan notes: %w", a.Units, ErrInvalidAmountUnits)
	}
}
