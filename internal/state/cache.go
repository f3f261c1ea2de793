package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"
)

// ReserveInfo is an immutable view of a reserve as of Slot.
type ReserveInfo struct {
	Index                   uint16        `json:"index"`
	Slot                    uint64        `json:"slot"`
	Price                   fpmath.Number `json:"price"`
	DepositNoteExchangeRate fpmath.Number `json:"deposit_note_exchange_rate"`
	LoanNoteExchangeRate    fpmath.Number `json:"loan_note_exchange_rate"`
	Exponent                int32         `json:"exponent"`
	MinCollateralRatio      fpmath.Number `json:"min_collateral_ratio"`
}

// Amount converts a raw token or note quantity to whole units.
func (ri ReserveInfo) Amount(raw uint64) fpmath.Number {
	return fpmath.FromDecimal(raw, ri.Exponent)
}

// Value is the quote-currency value of a raw token quantity.
func (ri ReserveInfo) Value(tokens uint64) (fpmath.Number, error) {
	return ri.Amount(tokens).Mul(ri.Price)
}

func (ri ReserveInfo) collateralValue(depositNotes uint64) (fpmath.Number, error) {
	return fpmath.Compute(ri.Amount(depositNotes)).
		Mul(ri.DepositNoteExchangeRate).
		Mul(ri.Price).
		Result()
}

func (ri ReserveInfo) loanValue(loanNotes uint64) (fpmath.Number, error) {
	return fpmath.Compute(ri.Amount(loanNotes)).
		Mul(ri.LoanNoteExchangeRate).
		Mul(ri.Price).
		Result()
}

func (ri ReserveInfo) DepositNotesFromTokens(tokens uint64, rounding fpmath.RoundingMode) (uint64, error) {
	return convert(tokens, ri.DepositNoteExchangeRate, true, rounding)
}

func (ri ReserveInfo) DepositNotesToTokens(notes uint64, rounding fpmath.RoundingMode) (uint64, error) {
	return convert(notes, ri.DepositNoteExchangeRate, false, rounding)
}

func (ri ReserveInfo) LoanNotesFromTokens(tokens uint64, rounding fpmath.RoundingMode) (uint64, error) {
	return convert(tokens, ri.LoanNoteExchangeRate, true, rounding)
}

func (ri ReserveInfo) LoanNotesToTokens(notes uint64, rounding fpmath.RoundingMode) (uint64, error) {
	return convert(notes, ri.LoanNoteExchangeRate, false, rounding)
}

func convert(amount uint64, rate fpmath.Number, divide bool, rounding fpmath.RoundingMode) (uint64, error) {
	var (
		out fpmath.Number
		err error
	)
	if divide {
		out, err = fpmath.FromUint64(amount).Div(rate)
	} else {
		out, err = fpmath.FromUint64(amount).Mul(rate)
	}
	if err != nil {
		return 0, err
	}
	return out.AsU64(0, rounding)
}

// ReserveLookup resolves a reserve by its index within a market.
type ReserveLookup interface {
	ReserveAt(index uint16) (*Reserve, error)
}

// ReserveInfoCache memoizes ReserveInfo per reserve for one evaluation, so
// every read of a reserve within an operation sees the same rates.
type ReserveInfoCache struct {
	reserves ReserveLookup
	entries  map[uint16]ReserveInfo
}

func NewReserveInfoCache(reserves ReserveLookup) *ReserveInfoCache {
	return &ReserveInfoCache{
		reserves: reserves,
		entries:  make(map[uint16]ReserveInfo),
	}
}

// GetCached returns the reserve's view at slot. Repeated calls for the same
// (index, slot) return the same value; the reserve is never mutated.
func (c *ReserveInfoCache) GetCached(index uint16, slot uint64) (ReserveInfo, error) {
	if info, ok := c.entries[index]; ok && info.Slot == slot {
		return info, nil
	}
	reserve, err := c.reserves.ReserveAt(index)
	if err != nil {
		return ReserveInfo{}, err
	}
	info, err := reserve.Project(slot)
	if err != nil {
		return ReserveInfo{}, err
	}
	c.entries[index] = info
	return info, nil
}

// GetPriced is GetCached for valuations that need an oracle price.
func (c *ReserveInfoCache) GetPriced(index uint16, slot uint64) (ReserveInfo, error) {
	info, err := c.GetCached(index, slot)
	if err != nil {
		return ReserveInfo{}, err
	}
	if info.Price.IsZero() {
		return ReserveInfo{}, fmt.Errorf("reserve %d: %w", index, ErrPriceUnavailable)
	}
	return info, nil
}
