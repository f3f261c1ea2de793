package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"
)

// SwapPlan sizes one partial liquidation, in quote-currency value.
type SwapPlan struct {
	// Value of collateral to sell to restore the minimum ratio.
	SellableValue fpmath.Number `json:"sellable_value"`
	// Value of debt the sale should repay after premium and slippage.
	LoanRepayValue fpmath.Number `json:"loan_repay_value"`
}

// Settlement is the accounting outcome of an executed liquidation swap.
type Settlement struct {
	CollateralTokensSold uint64        `json:"collateral_tokens_sold"`
	CollateralNotesSold  uint64        `json:"collateral_notes_sold"`
	Proceeds             uint64        `json:"proceeds"`
	RepaidValue          fpmath.Number `json:"repaid_value"`
	RepaidTokens         uint64        `json:"repaid_tokens"`
	RepaidNotes          uint64        `json:"repaid_notes"`
	FeeProceeds          uint64        `json:"fee_proceeds"`
}

// LiquidationPlanner sizes, verifies and settles a swap-based liquidation of
// one loan position against one collateral position. The minimum collateral
// ratio comes from the loan reserve; premium, slippage and the trade cap come
// from the collateral reserve.
type LiquidationPlanner struct {
	minCollateralRatio fpmath.Number
	premium            fpmath.Number
	slippage           fpmath.Number
	dexTradeMax        uint64

	loan       ReserveInfo
	collateral ReserveInfo
}

// NewLiquidationPlanner binds the planner to reserve views taken from the
// evaluation's cache.
func NewLiquidationPlanner(loanCfg, collateralCfg ReserveConfig, loan, collateral ReserveInfo) *LiquidationPlanner {
	return &LiquidationPlanner{
		minCollateralRatio: fpmath.FromBps(uint64(loanCfg.MinCollateralRatio)),
		premium:            fpmath.FromBps(uint64(collateralCfg.LiquidationPremium)),
		slippage:           fpmath.FromBps(uint64(collateralCfg.LiquidationSlippage)),
		dexTradeMax:        collateralCfg.LiquidationDexTradeMax,
		loan:               loan,
		collateral:         collateral,
	}
}

// CheckEligibility rejects obligations that are over-collateralized at the
// loan reserve's minimum ratio, and obligations whose debt exceeds their
// collateral.
func (p *LiquidationPlanner) CheckEligibility(v Valuation) error {
	ltv, err := v.LoanValue.Div(v.CollateralValue)
	if err != nil {
		return fmt.Errorf("loan to value: %w", err)
	}
	cRatioLTV, err := p.minCollateralRatio.Mul(ltv)
	if err != nil {
		return fmt.Errorf("c-ratio ltv: %w", err)
	}
	if cRatioLTV.Lte(fpmath.One()) {
		return ErrObligationHealthy
	}
	if cRatioLTV.Gt(p.minCollateralRatio) {
		return fmt.Errorf("obligation is underwater: %w", ErrDisallowed)
	}
	return nil
}

// Plan checks eligibility and sizes the sale that brings the obligation back
// to the minimum collateral ratio.
func (p *LiquidationPlanner) Plan(v Valuation) (SwapPlan, error) {
	if err := p.CheckEligibility(v); err != nil {
		return SwapPlan{}, err
	}

	feePlusSlippage, err := p.premium.Add(p.slippage)
	if err != nil {
		return SwapPlan{}, err
	}
	margin := p.minCollateralRatio.SaturatingSub(fpmath.One())
	if feePlusSlippage.Gte(margin) {
		return SwapPlan{}, ErrInvalidLiquidationConfig
	}

	denominator := margin.SaturatingSub(feePlusSlippage)
	loanRepayValue, err := fpmath.Compute(p.minCollateralRatio).
		Mul(v.LoanValue).
		Sub(v.CollateralValue).
		Div(denominator).
		Result()
	if err != nil {
		return SwapPlan{}, fmt.Errorf("loan repay value: %w", err)
	}
	sellableValue, err := fpmath.Compute(fpmath.One()).
		Add(feePlusSlippage).
		Mul(loanRepayValue).
		Result()
	if err != nil {
		return SwapPlan{}, fmt.Errorf("sellable value: %w", err)
	}
	return SwapPlan{SellableValue: sellableValue, LoanRepayValue: loanRepayValue}, nil
}

// TokensToSell bounds the sale by the plan, the collateral actually held,
// the reserve's per-call trade cap and an optional caller hint (0 = none).
func (p *LiquidationPlanner) TokensToSell(plan SwapPlan, heldNotes, hint uint64) (uint64, error) {
	planned, err := plan.SellableValue.Div(p.collateral.Price)
	if err != nil {
		return 0, fmt.Errorf("planned collateral tokens: %w", err)
	}
	tokens, err := planned.AsU64(p.collateral.Exponent, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("planned collateral tokens: %w", err)
	}
	held, err := p.collateral.DepositNotesToTokens(heldNotes, fpmath.RoundDown)
	if err != nil {
		return 0, fmt.Errorf("held collateral tokens: %w", err)
	}
	tokens = min(tokens, held)
	if p.dexTradeMax != 0 {
		tokens = min(tokens, p.dexTradeMax)
	}
	if hint != 0 {
		tokens = min(tokens, hint)
	}
	return tokens, nil
}

// VerifyProceeds requires the debt tokens received to be worth at least the
// collateral sold less the configured slippage. Equality is accepted.
func (p *LiquidationPlanner) VerifyProceeds(sold, proceeds uint64) error {
	proceedsValue, err := p.loan.Value(proceeds)
	if err != nil {
		return fmt.Errorf("proceeds value: %w", err)
	}
	minValue, err := fpmath.Compute(fpmath.One()).
		Sub(p.slippage).
		Mul(p.collateral.Amount(sold)).
		Mul(p.collateral.Price).
		Result()
	if err != nil {
		return fmt.Errorf("minimum proceeds value: %w", err)
	}
	if proceedsValue.Lt(minValue) {
		return fmt.Errorf("proceeds %s below minimum %s: %w", proceedsValue, minValue, ErrLiquidationSwapSlipped)
	}
	return nil
}

// Settle scales the planned repayment by the fraction of the plan actually
// sold. Repayment never exceeds the proceeds or the notes owed; proceeds
// beyond the repayment become protocol fees.
func (p *LiquidationPlanner) Settle(plan SwapPlan, sold, proceeds, heldCollateralNotes, heldLoanNotes uint64) (Settlement, error) {
	s := Settlement{CollateralTokensSold: sold, Proceeds: proceeds}

	expected, err := plan.SellableValue.Div(p.collateral.Price)
	if err != nil {
		return Settlement{}, fmt.Errorf("expected collateral tokens: %w", err)
	}
	s.RepaidValue, err = fpmath.Compute(p.collateral.Amount(sold)).
		Mul(plan.LoanRepayValue).
		Div(expected).
		Result()
	if err != nil {
		return Settlement{}, fmt.Errorf("repaid value: %w", err)
	}
	repaidTokens, err := s.RepaidValue.Div(p.loan.Price)
	if err != nil {
		return Settlement{}, fmt.Errorf("repaid tokens: %w", err)
	}
	if s.RepaidTokens, err = repaidTokens.AsU64(p.loan.Exponent, fpmath.RoundDown); err != nil {
		return Settlement{}, fmt.Errorf("repaid tokens: %w", err)
	}
	s.RepaidTokens = min(s.RepaidTokens, proceeds)

	if s.RepaidNotes, err = p.loan.LoanNotesFromTokens(s.RepaidTokens, fpmath.RoundDown); err != nil {
		return Settlement{}, fmt.Errorf("repaid notes: %w", err)
	}
	if s.RepaidNotes > heldLoanNotes {
		s.RepaidNotes = heldLoanNotes
		owed, err := p.loan.LoanNotesToTokens(heldLoanNotes, fpmath.RoundUp)
		if err != nil {
			return Settlement{}, fmt.Errorf("owed tokens: %w", err)
		}
		s.RepaidTokens = min(owed, proceeds)
	}

	if s.CollateralNotesSold, err = p.collateral.DepositNotesFromTokens(sold, fpmath.RoundUp); err != nil {
		return Settlement{}, fmt.Errorf("collateral notes sold: %w", err)
	}
	s.CollateralNotesSold = min(s.CollateralNotesSold, heldCollateralNotes)

	s.FeeProceeds = proceeds - s.RepaidTokens
	return s, nil
}
