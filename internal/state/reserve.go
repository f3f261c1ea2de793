package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
)

// ReserveState is the mutable bookkeeping of a reserve. Token quantities are
// raw (native) token units.
type ReserveState struct {
	AccruedUntil    uint64        `json:"accrued_until"`
	OutstandingDebt fpmath.Number `json:"outstanding_debt"`
	UncollectedFees fpmath.Number `json:"uncollected_fees"`

	// Tokens currently held by the vault, i.e. available liquidity.
	TotalDeposits     uint64 `json:"total_deposits"`
	TotalDepositNotes uint64 `json:"total_deposit_notes"`
	TotalLoanNotes    uint64 `json:"total_loan_notes"`
}

// OraclePrice is the quote-currency value of one whole token.
type OraclePrice struct {
	Value fpmath.Number `json:"value"`
	Slot  uint64        `json:"slot"`
}

// DexMarket identifies the exchange market used to sell this reserve's
// token against the market quote token.
type DexMarket struct {
	MarketID    uuid.UUID `json:"market_id"`
	CoinLotSize uint64    `json:"coin_lot_size"`
}

// Reserve owns one pooled asset within a market.
type Reserve struct {
	ID              uuid.UUID     `json:"id"`
	Index           uint16        `json:"index"`
	Market          uuid.UUID     `json:"market"`
	Vault           uuid.UUID     `json:"vault"`
	TokenMint       uuid.UUID     `json:"token_mint"`
	DepositNoteMint uuid.UUID     `json:"deposit_note_mint"`
	LoanNoteMint    uuid.UUID     `json:"loan_note_mint"`
	Exponent        int32         `json:"exponent"`
	Config          ReserveConfig `json:"config"`
	State           ReserveState  `json:"state"`
	Price           OraclePrice   `json:"price"`
	Dex             DexMarket     `json:"dex"`
}

// MinTokenExponent is the finest token scale a Number holds exactly: one raw
// unit at this exponent is the smallest fixed-point step.
const MinTokenExponent = -fpmath.Precision

// ValidateTokenExponent accepts token decimal exponents in
// [MinTokenExponent, 0].
func ValidateTokenExponent(exponent int32) error {
	if exponent > 0 || exponent < MinTokenExponent {
		return fmt.Errorf("token exponent %d outside [%d, 0]: %w", exponent, MinTokenExponent, ErrInvalidParameter)
	}
	return nil
}

// NewReserve creates an empty reserve accrued up to slot. Vault and note mint
// ids are derived from the reserve id.
func NewReserve(market uuid.UUID, index uint16, tokenMint uuid.UUID, exponent int32, cfg ReserveConfig, slot uint64) (*Reserve, error) {
	if err := ValidateReserveConfig(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateTokenExponent(exponent); err != nil {
		return nil, err
	}
	id := ReserveID(market, tokenMint)
	return &Reserve{
		ID:              id,
		Index:           index,
		Market:          market,
		Vault:           VaultID(id),
		TokenMint:       tokenMint,
		DepositNoteMint: DepositNoteMintID(id),
		LoanNoteMint:    LoanNoteMintID(id),
		Exponent:        exponent,
		Config:          cfg,
		State:           ReserveState{AccruedUntil: slot},
	}, nil
}

// Clone returns an independent copy.
func (r *Reserve) Clone() *Reserve {
	c := *r
	return &c
}

// Accrue applies interest up to slot. Repeated calls for the same slot are
// no-ops, as are slots at or before the last accrual.
func (r *Reserve) Accrue(slot uint64) error {
	st, err := r.projectState(slot)
	if err != nil {
		return err
	}
	r.State = st
	return nil
}

// Project returns the reserve's view as of slot without mutating it.
func (r *Reserve) Project(slot uint64) (ReserveInfo, error) {
	st, err := r.projectState(slot)
	if err != nil {
		return ReserveInfo{}, err
	}
	return r.infoFor(st, slot)
}

func (r *Reserve) infoFor(st ReserveState, slot uint64) (ReserveInfo, error) {
	depositRate, err := depositNoteExchangeRate(&st)
	if err != nil {
		return ReserveInfo{}, fmt.Errorf("reserve %d deposit note rate: %w", r.Index, err)
	}
	loanRate, err := loanNoteExchangeRate(&st)
	if err != nil {
		return ReserveInfo{}, fmt.Errorf("reserve %d loan note rate: %w", r.Index, err)
	}
	return ReserveInfo{
		Index:                   r.Index,
		Slot:                    slot,
		Price:                   r.Price.Value,
		DepositNoteExchangeRate: depositRate,
		LoanNoteExchangeRate:    loanRate,
		Exponent:                r.Exponent,
		MinCollateralRatio:      fpmath.FromBps(uint64(r.Config.MinCollateralRatio)),
	}, nil
}

// projectState computes the state that accruing to slot would produce.
func (r *Reserve) projectState(slot uint64) (ReserveState, error) {
	st := r.State
	if slot <= st.AccruedUntil {
		return st, nil
	}
	elapsed := slot - st.AccruedUntil
	st.AccruedUntil = slot
	if st.OutstandingDebt.IsZero() {
		return st, nil
	}

	utilization, err := utilizationRate(&st)
	if err != nil {
		return ReserveState{}, err
	}
	apr, err := r.Config.BorrowRate(utilization)
	if err != nil {
		return ReserveState{}, err
	}
	perSlot, err := apr.Div(fpmath.FromUint64(fpmath.SlotsPerYear))
	if err != nil {
		return ReserveState{}, err
	}
	factor, err := fpmath.CompoundRate(perSlot, elapsed)
	if err != nil {
		return ReserveState{}, fmt.Errorf("compound %d slots: %w", elapsed, err)
	}

	interest, err := fpmath.Compute(factor).
		Sub(fpmath.One()).
		Mul(st.OutstandingDebt).
		Result()
	if err != nil {
		return ReserveState{}, fmt.Errorf("accrue interest: %w", err)
	}
	fees, err := interest.Mul(fpmath.FromBps(uint64(r.Config.ManageFeeRate)))
	if err != nil {
		return ReserveState{}, fmt.Errorf("accrue fees: %w", err)
	}
	if st.OutstandingDebt, err = st.OutstandingDebt.Add(interest); err != nil {
		return ReserveState{}, fmt.Errorf("accrue debt: %w", err)
	}
	if st.UncollectedFees, err = st.UncollectedFees.Add(fees); err != nil {
		return ReserveState{}, fmt.Errorf("accrue fees: %w", err)
	}
	return st, nil
}

// utilizationRate is debt / (debt + vault liquidity).
func utilizationRate(st *ReserveState) (fpmath.Number, error) {
	total, err := st.OutstandingDebt.Add(fpmath.FromUint64(st.TotalDeposits))
	if err != nil {
		return fpmath.Number{}, err
	}
	if total.IsZero() {
		return fpmath.Zero(), nil
	}
	return st.OutstandingDebt.Div(total)
}

// depositNoteExchangeRate is tokens backing deposit notes per note, 1 when no
// notes are outstanding.
func depositNoteExchangeRate(st *ReserveState) (fpmath.Number, error) {
	if st.TotalDepositNotes == 0 {
		return fpmath.One(), nil
	}
	return fpmath.Compute(fpmath.FromUint64(st.TotalDeposits)).
		Add(st.OutstandingDebt).
		Sub(st.UncollectedFees).
		Div(fpmath.FromUint64(st.TotalDepositNotes)).
		Result()
}

// loanNoteExchangeRate is debt tokens per loan note, 1 when no notes are
// outstanding.
func loanNoteExchangeRate(st *ReserveState) (fpmath.Number, error) {
	if st.TotalLoanNotes == 0 {
		return fpmath.One(), nil
	}
	return st.OutstandingDebt.Div(fpmath.FromUint64(st.TotalLoanNotes))
}

// Utilization returns the current (unaccrued) utilization.
func (r *Reserve) Utilization() (fpmath.Number, error) {
	return utilizationRate(&r.State)
}

// BorrowFee is the origination fee for a loan of requested tokens, rounded up.
func (r *Reserve) BorrowFee(requested uint64) (uint64, error) {
	fee, err := fpmath.FromUint64(requested).Mul(fpmath.FromBps(uint64(r.Config.LoanOriginationFee)))
	if err != nil {
		return 0, err
	}
	return fee.AsU64(0, fpmath.RoundUp)
}

// Borrow lends tokens out of the vault. Debt grows by tokens+fees and the fee
// is recorded as uncollected revenue. Returns the debt added.
func (r *Reserve) Borrow(slot, tokens, notes, fees uint64) (uint64, error) {
	st, err := r.projectState(slot)
	if err != nil {
		return 0, err
	}
	if tokens > st.TotalDeposits {
		return 0, fmt.Errorf("borrow %d tokens with %d available: %w", tokens, st.TotalDeposits, ErrInsufficientLiquidity)
	}
	total := tokens + fees
	if total < tokens {
		return 0, fmt.Errorf("borrow amount: %w", ErrArithmeticOverflow)
	}
	if st.TotalLoanNotes+notes < st.TotalLoanNotes {
		return 0, fmt.Errorf("loan notes: %w", ErrArithmeticOverflow)
	}
	if st.OutstandingDebt, err = st.OutstandingDebt.Add(fpmath.FromUint64(total)); err != nil {
		return 0, fmt.Errorf("outstanding debt: %w", err)
	}
	if st.UncollectedFees, err = st.UncollectedFees.Add(fpmath.FromUint64(fees)); err != nil {
		return 0, fmt.Errorf("uncollected fees: %w", err)
	}
	st.TotalLoanNotes += notes
	st.TotalDeposits -= tokens
	r.State = st
	return total, nil
}

// Repay returns tokens to the vault and retires notes. Debt saturates at
// zero so rounding slop can never make it negative.
func (r *Reserve) Repay(slot, tokens, notes uint64) error {
	st, err := r.projectState(slot)
	if err != nil {
		return err
	}
	if notes > st.TotalLoanNotes {
		return fmt.Errorf("repay %d loan notes of %d outstanding: %w", notes, st.TotalLoanNotes, ErrArithmeticOverflow)
	}
	if st.TotalDeposits+tokens < st.TotalDeposits {
		return fmt.Errorf("vault deposits: %w", ErrArithmeticOverflow)
	}
	st.OutstandingDebt = st.OutstandingDebt.SaturatingSub(fpmath.FromUint64(tokens))
	st.TotalLoanNotes -= notes
	st.TotalDeposits += tokens
	r.State = st
	return nil
}

// Deposit records tokens entering the vault against newly minted notes.
func (r *Reserve) Deposit(tokens, notes uint64) error {
	st := r.State
	if st.TotalDeposits+tokens < st.TotalDeposits || st.TotalDepositNotes+notes < st.TotalDepositNotes {
		return fmt.Errorf("deposit %d tokens / %d notes: %w", tokens, notes, ErrArithmeticOverflow)
	}
	st.TotalDeposits += tokens
	st.TotalDepositNotes += notes
	r.State = st
	return nil
}

// Withdraw records tokens leaving the vault against burned notes.
func (r *Reserve) Withdraw(tokens, notes uint64) error {
	st := r.State
	if tokens > st.TotalDeposits {
		return fmt.Errorf("withdraw %d tokens with %d available: %w", tokens, st.TotalDeposits, ErrInsufficientLiquidity)
	}
	if notes > st.TotalDepositNotes {
		return fmt.Errorf("burn %d deposit notes of %d outstanding: %w", notes, st.TotalDepositNotes, ErrArithmeticOverflow)
	}
	st.TotalDeposits -= tokens
	st.TotalDepositNotes -= notes
	r.State = st
	return nil
}

// AddUncollectedFees records tokens paid into the vault as protocol revenue.
// The deposit note rate is unchanged.
func (r *Reserve) AddUncollectedFees(slot, tokens uint64) error {
	st, err := r.projectState(slot)
	if err != nil {
		return err
	}
	if st.TotalDeposits+tokens < st.TotalDeposits {
		return fmt.Errorf("vault deposits: %w", ErrArithmeticOverflow)
	}
	if st.UncollectedFees, err = st.UncollectedFees.Add(fpmath.FromUint64(tokens)); err != nil {
		return fmt.Errorf("uncollected fees: %w", err)
	}
	st.TotalDeposits += tokens
	r.State = st
	return nil
}

// SetPrice records a new oracle price observed at slot.
func (r *Reserve) SetPrice(price fpmath.Number, slot uint64) error {
	if price.IsZero() {
		return fmt.Errorf("reserve %d price must be > 0: %w", r.Index, ErrInvalidParameter)
	}
	r.Price = OraclePrice{Value: price, Slot: slot}
	return nil
}

// UpdateConfig accrues to slot under the old configuration, then replaces it.
func (r *Reserve) UpdateConfig(slot uint64, cfg ReserveConfig) error {
	if err := ValidateReserveConfig(&cfg); err != nil {
		return fmt.Errorf("reserve %d config: %w", r.Index, err)
	}
	if err := r.Accrue(slot); err != nil {
		return err
	}
	r.Config = cfg
	return nil
}
