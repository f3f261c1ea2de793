package state_test

import (
	"errors"
	"testing"

	"LendLedger/internal/state"
)

func newPlanner(t *testing.T, f *fixture) (*state.LiquidationPlanner, state.Valuation) {
	t.Helper()
	cache := f.cache()
	if err := f.obligation.CacheCalculations(cache, 0); err != nil {
		t.Fatalf("cache calculations: %v", err)
	}
	collInfo, err := cache.GetPriced(0, 0)
	if err != nil {
		t.Fatalf("collateral info: %v", err)
	}
	loanInfo, err := cache.GetPriced(1, 0)
	if err != nil {
		t.Fatalf("loan info: %v", err)
	}
	p := state.NewLiquidationPlanner(f.reserves[1].Config, f.reserves[0].Config, loanInfo, collInfo)
	return p, f.obligation.Cached
}

// ============================================================================
// Eligibility and sizing
// ============================================================================

func TestPlan_RejectsHealthyObligation(t *testing.T) {
	f := newFixture(t, 12_000, 150, 100)
	p, v := newPlanner(t, f)

	if _, err := p.Plan(v); !errors.Is(err, state.ErrObligationHealthy) {
		t.Fatalf("got %v, want ErrObligationHealthy", err)
	}
}

func TestPlan_RejectsAtExactMinimumRatio(t *testing.T) {
	// 1.2 * 125 == 150, so c-ratio LTV is exactly 1.
	f := newFixture(t, 12_000, 150, 125)
	p, v := newPlanner(t, f)

	if err := p.CheckEligibility(v); !errors.Is(err, state.ErrObligationHealthy) {
		t.Fatalf("got %v, want ErrObligationHealthy", err)
	}
}

func TestPlan_RejectsUnderwaterObligation(t *testing.T) {
	f := newFixture(t, 12_000, 100, 130)
	p, v := newPlanner(t, f)

	if _, err := p.Plan(v); !errors.Is(err, state.ErrDisallowed) {
		t.Fatalf("got %v, want ErrDisallowed", err)
	}
}

func TestPlan_SizesPartialLiquidation(t *testing.T) {
	f := newFixture(t, 12_000, 150, 130)
	p, v := newPlanner(t, f)

	plan, err := p.Plan(v)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	// (1.2*130 - 150) / (1.2 - 0.04 - 1) = 37.5; 37.5 * 1.04 = 39
	if plan.LoanRepayValue.String() != "37.5" {
		t.Errorf("loan repay value: got %s, want 37.5", plan.LoanRepayValue)
	}
	if plan.SellableValue.String() != "39" {
		t.Errorf("sellable value: got %s, want 39", plan.SellableValue)
	}
	if !plan.SellableValue.Lt(v.CollateralValue) {
		t.Errorf("sellable %s not below collateral %s", plan.SellableValue, v.CollateralValue)
	}
	if !plan.LoanRepayValue.Lt(v.LoanValue) {
		t.Errorf("repay %s not below loan %s", plan.LoanRepayValue, v.LoanValue)
	}
}

func TestTokensToSell_Bounds(t *testing.T) {
	f := newFixture(t, 12_000, 150, 130)
	p, v := newPlanner(t, f)
	plan, err := p.Plan(v)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	tests := []struct {
		name      string
		heldNotes uint64
		hint      uint64
		want      uint64
	}{
		{"plan bound", 150, 0, 39},
		{"held bound", 20, 0, 20},
		{"hint bound", 150, 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.TokensToSell(plan, tt.heldNotes, tt.hint)
			if err != nil {
				t.Fatalf("tokens to sell: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	capped := f.reserves[0].Config
	capped.LiquidationDexTradeMax = 5
	cp := state.NewLiquidationPlanner(f.reserves[1].Config, capped, mustProject(t, f.reserves[1], 0), mustProject(t, f.reserves[0], 0))
	got, err := cp.TokensToSell(plan, 150, 0)
	if err != nil {
		t.Fatalf("tokens to sell: %v", err)
	}
	if got != 5 {
		t.Errorf("trade cap: got %d, want 5", got)
	}
}

// ============================================================================
// Proceeds and settlement
// ============================================================================

func TestVerifyProceeds_SlippageBoundary(t *testing.T) {
	f := newFixture(t, 12_000, 150, 130)
	p, _ := newPlanner(t, f)

	// 3% slippage on 100 tokens at price 1: minimum proceeds are exactly 97.
	if err := p.VerifyProceeds(100, 97); err != nil {
		t.Errorf("exact minimum rejected: %v", err)
	}
	if err := p.VerifyProceeds(100, 96); !errors.Is(err, state.ErrLiquidationSwapSlipped) {
		t.Errorf("got %v, want ErrLiquidationSwapSlipped", err)
	}
}

func TestSettle_FullPlan(t *testing.T) {
	f := newFixture(t, 12_000, 150, 130)
	p, v := newPlanner(t, f)
	plan, err := p.Plan(v)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	s, err := p.Settle(plan, 39, 38, 150, 130)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.RepaidTokens != 37 || s.RepaidNotes != 37 {
		t.Errorf("repaid: got %d tokens / %d notes, want 37 / 37", s.RepaidTokens, s.RepaidNotes)
	}
	if s.CollateralNotesSold != 39 {
		t.Errorf("collateral notes sold: got %d, want 39", s.CollateralNotesSold)
	}
	if s.FeeProceeds != 1 {
		t.Errorf("fee proceeds: got %d, want 1", s.FeeProceeds)
	}
}

func TestSettle_PartialSaleScalesRepayment(t *testing.T) {
	f := newFixture(t, 12_000, 150, 130)
	p, v := newPlanner(t, f)
	plan, err := p.Plan(v)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	// Selling a third of the plan repays a third of 37.5.
	s, err := p.Settle(plan, 13, 13, 150, 130)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.RepaidValue.String() != "12.5" {
		t.Errorf("repaid value: got %s, want 12.5", s.RepaidValue)
	}
	if s.RepaidTokens != 12 || s.FeeProceeds != 1 {
		t.Errorf("got repaid=%d fee=%d, want 12 / 1", s.RepaidTokens, s.FeeProceeds)
	}
}

func TestSettle_RepaymentCappedByDebt(t *testing.T) {
	f := newFixture(t, 12_000, 150, 130)
	p, v := newPlanner(t, f)
	plan, err := p.Plan(v)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	s, err := p.Settle(plan, 39, 38, 150, 10)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if s.RepaidNotes != 10 || s.RepaidTokens != 10 {
		t.Errorf("got %d notes / %d tokens, want 10 / 10", s.RepaidNotes, s.RepaidTokens)
	}
	if s.FeeProceeds != 28 {
		t.Errorf("fee proceeds: got %d, want 28", s.FeeProceeds)
	}
}
