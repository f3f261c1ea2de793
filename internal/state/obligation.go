package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
)

// MaxObligationPositions bounds each of an obligation's position sets.
const MaxObligationPositions = 16

// CollateralPosition is a deposit-note balance pledged to an obligation.
type CollateralPosition struct {
	Custody      uuid.UUID `json:"custody"`
	ReserveIndex uint16    `json:"reserve_index"`
	DepositNotes uint64    `json:"deposit_notes"`
}

// LoanPosition is a loan-note balance owed by an obligation.
type LoanPosition struct {
	Custody      uuid.UUID `json:"custody"`
	ReserveIndex uint16    `json:"reserve_index"`
	LoanNotes    uint64    `json:"loan_notes"`
}

// Valuation holds the aggregate values computed by CacheCalculations. It is
// only meaningful for Slot and while Stale is false.
type Valuation struct {
	CollateralValue         fpmath.Number `json:"collateral_value"`
	LoanValue               fpmath.Number `json:"loan_value"`
	RequiredCollateralValue fpmath.Number `json:"required_collateral_value"`
	Slot                    uint64        `json:"slot"`
	Stale                   bool          `json:"stale"`
}

// Obligation aggregates a borrower's collateral and loans within a market.
type Obligation struct {
	ID         uuid.UUID            `json:"id"`
	Market     uuid.UUID            `json:"market"`
	Owner      uuid.UUID            `json:"owner"`
	Collateral []CollateralPosition `json:"collateral"`
	Loans      []LoanPosition       `json:"loans"`
	Cached     Valuation            `json:"cached"`
}

func NewObligation(market, owner uuid.UUID) *Obligation {
	return &Obligation{
		ID:     ObligationID(market, owner),
		Market: market,
		Owner:  owner,
		Cached: Valuation{Stale: true},
	}
}

// Clone returns a deep copy.
func (o *Obligation) Clone() *Obligation {
	c := *o
	c.Collateral = append([]CollateralPosition(nil), o.Collateral...)
	c.Loans = append([]LoanPosition(nil), o.Loans...)
	return &c
}

// HasCollateralCustody reports whether custody is one of this obligation's
// collateral accounts.
func (o *Obligation) HasCollateralCustody(custody uuid.UUID) bool {
	return o.collateralIndex(custody) >= 0
}

// HasLoanCustody reports whether custody is one of this obligation's loan
// accounts.
func (o *Obligation) HasLoanCustody(custody uuid.UUID) bool {
	return o.loanIndex(custody) >= 0
}

// HasDebt reports whether any loan position owes notes.
func (o *Obligation) HasDebt() bool {
	for i := range o.Loans {
		if o.Loans[i].LoanNotes != 0 {
			return true
		}
	}
	return false
}

// IsEmpty reports whether both position sets are empty.
func (o *Obligation) IsEmpty() bool {
	return len(o.Collateral) == 0 && len(o.Loans) == 0
}

func (o *Obligation) RegisterCollateral(custody uuid.UUID, reserveIndex uint16) error {
	if o.HasCollateralCustody(custody) {
		return fmt.Errorf("collateral %s: %w", custody, ErrDuplicatePosition)
	}
	if len(o.Collateral) >= MaxObligationPositions {
		return fmt.Errorf("collateral: %w", ErrPositionsFull)
	}
	o.Collateral = append(o.Collateral, CollateralPosition{Custody: custody, ReserveIndex: reserveIndex})
	o.Cached.Stale = true
	return nil
}

func (o *Obligation) RegisterLoan(custody uuid.UUID, reserveIndex uint16) error {
	if o.HasLoanCustody(custody) {
		return fmt.Errorf("loan %s: %w", custody, ErrDuplicatePosition)
	}
	if len(o.Loans) >= MaxObligationPositions {
		return fmt.Errorf("loans: %w", ErrPositionsFull)
	}
	o.Loans = append(o.Loans, LoanPosition{Custody: custody, ReserveIndex: reserveIndex})
	o.Cached.Stale = true
	return nil
}

// UnregisterCollateral removes an empty collateral position.
func (o *Obligation) UnregisterCollateral(custody uuid.UUID) error {
	i := o.collateralIndex(custody)
	if i < 0 {
		return fmt.Errorf("collateral %s: %w", custody, ErrPositionNotFound)
	}
	if o.Collateral[i].DepositNotes != 0 {
		return fmt.Errorf("collateral %s holds %d notes: %w", custody, o.Collateral[i].DepositNotes, ErrPositionNotEmpty)
	}
	o.Collateral = append(o.Collateral[:i], o.Collateral[i+1:]...)
	o.Cached.Stale = true
	return nil
}

// UnregisterLoan removes a fully repaid loan position.
func (o *Obligation) UnregisterLoan(custody uuid.UUID) error {
	i := o.loanIndex(custody)
	if i < 0 {
		return fmt.Errorf("loan %s: %w", custody, ErrPositionNotFound)
	}
	if o.Loans[i].LoanNotes != 0 {
		return fmt.Errorf("loan %s owes %d notes: %w", custody, o.Loans[i].LoanNotes, ErrPositionNotEmpty)
	}
	o.Loans = append(o.Loans[:i], o.Loans[i+1:]...)
	o.Cached.Stale = true
	return nil
}

func (o *Obligation) DepositCollateral(custody uuid.UUID, notes uint64) error {
	i := o.collateralIndex(custody)
	if i < 0 {
		return fmt.Errorf("collateral %s: %w", custody, ErrPositionNotFound)
	}
	next := o.Collateral[i].DepositNotes + notes
	if next < notes {
		return fmt.Errorf("collateral %s: %w", custody, ErrArithmeticOverflow)
	}
	o.Collateral[i].DepositNotes = next
	o.Cached.Stale = true
	return nil
}

func (o *Obligation) WithdrawCollateral(custody uuid.UUID, notes uint64) error {
	i := o.collateralIndex(custody)
	if i < 0 {
		return fmt.Errorf("collateral %s: %w", custody, ErrPositionNotFound)
	}
	if notes > o.Collateral[i].DepositNotes {
		return fmt.Errorf("withdraw %d of %d collateral notes: %w", notes, o.Collateral[i].DepositNotes, ErrArithmeticOverflow)
	}
	o.Collateral[i].DepositNotes -= notes
	o.Cached.Stale = true
	return nil
}

// Borrow records newly minted loan notes.
func (o *Obligation) Borrow(custody uuid.UUID, notes uint64) error {
	i := o.loanIndex(custody)
	if i < 0 {
		return fmt.Errorf("loan %s: %w", custody, ErrPositionNotFound)
	}
	next := o.Loans[i].LoanNotes + notes
	if next < notes {
		return fmt.Errorf("loan %s: %w", custody, ErrArithmeticOverflow)
	}
	o.Loans[i].LoanNotes = next
	o.Cached.Stale = true
	return nil
}

// Repay records burned loan notes.
func (o *Obligation) Repay(custody uuid.UUID, notes uint64) error {
	i := o.loanIndex(custody)
	if i < 0 {
		return fmt.Errorf("loan %s: %w", custody, ErrPositionNotFound)
	}
	if notes > o.Loans[i].LoanNotes {
		return fmt.Errorf("repay %d of %d loan notes: %w", notes, o.Loans[i].LoanNotes, ErrArithmeticOverflow)
	}
	o.Loans[i].LoanNotes -= notes
	o.Cached.Stale = true
	return nil
}

// CollateralNotes returns the notes held by a collateral position.
func (o *Obligation) CollateralNotes(custody uuid.UUID) (uint64, error) {
	i := o.collateralIndex(custody)
	if i < 0 {
		return 0, fmt.Errorf("collateral %s: %w", custody, ErrPositionNotFound)
	}
	return o.Collateral[i].DepositNotes, nil
}

// LoanNotes returns the notes owed by a loan position.
func (o *Obligation) LoanNotes(custody uuid.UUID) (uint64, error) {
	i := o.loanIndex(custody)
	if i < 0 {
		return 0, fmt.Errorf("loan %s: %w", custody, ErrPositionNotFound)
	}
	return o.Loans[i].LoanNotes, nil
}

// CacheCalculations recomputes the aggregate values at slot.
func (o *Obligation) CacheCalculations(cache *ReserveInfoCache, slot uint64) error {
	var v Valuation
	v.Slot = slot

	for _, pos := range o.Collateral {
		if pos.DepositNotes == 0 {
			continue
		}
		info, err := cache.GetPriced(pos.ReserveIndex, slot)
		if err != nil {
			return err
		}
		value, err := info.collateralValue(pos.DepositNotes)
		if err != nil {
			return fmt.Errorf("collateral %s value: %w", pos.Custody, err)
		}
		if v.CollateralValue, err = v.CollateralValue.Add(value); err != nil {
			return fmt.Errorf("collateral value: %w", err)
		}
	}

	for _, pos := range o.Loans {
		if pos.LoanNotes == 0 {
			continue
		}
		info, err := cache.GetPriced(pos.ReserveIndex, slot)
		if err != nil {
			return err
		}
		value, err := info.loanValue(pos.LoanNotes)
		if err != nil {
			return fmt.Errorf("loan %s value: %w", pos.Custody, err)
		}
		required, err := value.Mul(info.MinCollateralRatio)
		if err != nil {
			return fmt.Errorf("loan %s required collateral: %w", pos.Custody, err)
		}
		if v.LoanValue, err = v.LoanValue.Add(value); err != nil {
			return fmt.Errorf("loan value: %w", err)
		}
		if v.RequiredCollateralValue, err = v.RequiredCollateralValue.Add(required); err != nil {
			return fmt.Errorf("required collateral value: %w", err)
		}
	}

	o.Cached = v
	return nil
}

// ensureCached re-runs CacheCalculations unless the cached values are fresh
// for slot.
func (o *Obligation) ensureCached(cache *ReserveInfoCache, slot uint64) error {
	if !o.Cached.Stale && o.Cached.Slot == slot {
		return nil
	}
	return o.CacheCalculations(cache, slot)
}

// IsHealthy reports whether collateral covers the minimum-ratio-weighted
// loan value. An obligation without debt is always healthy.
func (o *Obligation) IsHealthy(cache *ReserveInfoCache, slot uint64) (bool, error) {
	if !o.HasDebt() {
		return true, nil
	}
	if err := o.ensureCached(cache, slot); err != nil {
		return false, err
	}
	return o.Cached.healthy(), nil
}

func (v Valuation) healthy() bool {
	return v.LoanValue.IsZero() || v.CollateralValue.Gte(v.RequiredCollateralValue)
}

// HealthStatus classifies an obligation for liquidation purposes.
type HealthStatus int

const (
	HealthStatusHealthy HealthStatus = iota
	// Below the minimum ratio but collateral still exceeds debt.
	HealthStatusLiquidatable
	// Debt exceeds collateral; swap liquidation is disallowed.
	HealthStatusUnderwater
)

func (hs HealthStatus) String() string {
	switch hs {
	case HealthStatusHealthy:
		return "Healthy"
	case HealthStatusLiquidatable:
		return "Liquidatable"
	case HealthStatusUnderwater:
		return "Underwater"
	default:
		return "Unknown"
	}
}

// Health returns the status at slot, re-caching when needed.
func (o *Obligation) Health(cache *ReserveInfoCache, slot uint64) (HealthStatus, error) {
	if err := o.ensureCached(cache, slot); err != nil {
		return HealthStatusHealthy, err
	}
	v := o.Cached
	switch {
	case v.healthy():
		return HealthStatusHealthy, nil
	case v.LoanValue.Gt(v.CollateralValue):
		return HealthStatusUnderwater, nil
	default:
		return HealthStatusLiquidatable, nil
	}
}

// LargestCollateral returns the collateral position with the highest value
// at slot. ok is false when no position holds notes.
func (o *Obligation) LargestCollateral(cache *ReserveInfoCache, slot uint64) (pos CollateralPosition, value fpmath.Number, ok bool, err error) {
	for _, p := range o.Collateral {
		if p.DepositNotes == 0 {
			continue
		}
		info, err := cache.GetPriced(p.ReserveIndex, slot)
		if err != nil {
			return CollateralPosition{}, fpmath.Number{}, false, err
		}
		v, err := info.collateralValue(p.DepositNotes)
		if err != nil {
			return CollateralPosition{}, fpmath.Number{}, false, err
		}
		if !ok || v.Gt(value) {
			pos, value, ok = p, v, true
		}
	}
	return pos, value, ok, nil
}

// LargestLoan returns the loan position with the highest value at slot.
func (o *Obligation) LargestLoan(cache *ReserveInfoCache, slot uint64) (pos LoanPosition, value fpmath.Number, ok bool, err error) {
	for _, p := range o.Loans {
		if p.LoanNotes == 0 {
			continue
		}
		info, err := cache.GetPriced(p.ReserveIndex, slot)
		if err != nil {
			return LoanPosition{}, fpmath.Number{}, false, err
		}
		v, err := info.loanValue(p.LoanNotes)
		if err != nil {
			return LoanPosition{}, fpmath.Number{}, false, err
		}
		if !ok || v.Gt(value) {
			pos, value, ok = p, v, true
		}
	}
	return pos, value, ok, nil
}

func (o *Obligation) collateralIndex(custody uuid.UUID) int {
	for i := range o.Collateral {
		if o.Collateral[i].Custody == custody {
			return i
		}
	}
	return -1
}

func (o *Obligation) loanIndex(custody uuid.UUID) int {
	for i := range o.Loans {
		if o.Loans[i].Custody == custody {
			return i
		}
	}
	return -1
}
