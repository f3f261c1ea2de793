package core

import (
	"errors"
	"fmt"
	"math"

	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// handleLiquidate sells part of an unhealthy obligation's collateral on the
// reserve's exchange market and applies the proceeds to its loan. The sale
// is sized to restore the loan reserve's minimum collateral ratio.
func (c *DeterministicCore) handleLiquidate(t *txn, e *event.Liquidate) error {
	if e.LoanReserve == e.CollateralReserve {
		return fmt.Errorf("loan and collateral reserve are the same: %w", state.ErrInvalidParameter)
	}
	loanReserve, err := t.reserve(e.LoanReserve)
	if err != nil {
		return err
	}
	collReserve, err := t.reserve(e.CollateralReserve)
	if err != nil {
		return err
	}
	ob, err := t.obligation(e.Borrower)
	if err != nil {
		return err
	}
	loanCustody, err := registeredLoan(ob, loanReserve)
	if err != nil {
		return err
	}
	collCustody, err := registeredCollateral(ob, collReserve)
	if err != nil {
		return err
	}

	cache := state.NewReserveInfoCache(t)
	if err := ob.CacheCalculations(cache, t.slot); err != nil {
		return err
	}
	// Health uses the ratio blended over every loan; the planner only sees
	// the chosen loan reserve's ratio.
	healthy, err := ob.IsHealthy(cache, t.slot)
	if err != nil {
		return err
	}
	if healthy {
		return state.ErrObligationHealthy
	}
	loanInfo, err := cache.GetPriced(loanReserve.Index, t.slot)
	if err != nil {
		return err
	}
	collInfo, err := cache.GetPriced(collReserve.Index, t.slot)
	if err != nil {
		return err
	}

	planner := state.NewLiquidationPlanner(loanReserve.Config, collReserve.Config, loanInfo, collInfo)
	plan, err := planner.Plan(ob.Cached)
	if err != nil {
		if errors.Is(err, state.ErrInvalidLiquidationConfig) {
			c.logger.Error().
				Str("loan_reserve", loanReserve.ID.String()).
				Str("collateral_reserve", collReserve.ID.String()).
				Msg("liquidation premium plus slippage exceeds collateral margin")
		}
		return err
	}

	if collReserve.Dex.MarketID == uuid.Nil || collReserve.Dex.CoinLotSize == 0 {
		return fmt.Errorf("reserve %s has no exchange market: %w", collReserve.ID, state.ErrNotSupported)
	}
	market, err := c.exchange.Market(collReserve.Dex.MarketID)
	if err != nil {
		return fmt.Errorf("exchange market %s: %v: %w", collReserve.Dex.MarketID, err, state.ErrNotSupported)
	}
	if market.QuoteMint != loanReserve.TokenMint {
		return fmt.Errorf("exchange market %s does not quote in %s: %w", market.ID, loanReserve.TokenMint, state.ErrNotSupported)
	}

	var hint uint64
	if e.Amount.Value != 0 {
		if hint, err = e.Amount.AsTokens(collInfo, fpmath.RoundDown); err != nil {
			return err
		}
	}
	heldCollateral, err := ob.CollateralNotes(collCustody)
	if err != nil {
		return err
	}
	heldLoan, err := ob.LoanNotes(loanCustody)
	if err != nil {
		return err
	}

	tokens, err := planner.TokensToSell(plan, heldCollateral, hint)
	if err != nil {
		return err
	}
	tokens = min(tokens, collReserve.State.TotalDeposits)
	lots := tokens / collReserve.Dex.CoinLotSize
	if lots == 0 {
		return fmt.Errorf("%d tokens is less than one lot of %d: %w", tokens, collReserve.Dex.CoinLotSize, state.ErrCollateralValueTooSmall)
	}

	fill, err := c.placeOrder(t, exchange.Order{
		Market:     market.ID,
		Side:       exchange.SideAsk,
		LimitPrice: 1,
		MaxCoinQty: lots,
		MaxPcQty:   math.MaxUint64,
	})
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	if fill.CoinAmount == 0 || fill.PcAmount == 0 {
		return fmt.Errorf("order on %s did not fill: %w", market.ID, state.ErrLiquidationSwapSlipped)
	}
	if err := planner.VerifyProceeds(fill.CoinAmount, fill.PcAmount); err != nil {
		return err
	}

	s, err := planner.Settle(plan, fill.CoinAmount, fill.PcAmount, heldCollateral, heldLoan)
	if err != nil {
		return err
	}

	// Collateral side: vault tokens go to the exchange, pledged notes burn.
	if err := t.journals.Transfer(ledger.JournalTypeLiquidationSale,
		ledger.VaultKey(collReserve.Vault, collReserve.TokenMint),
		ledger.ExchangeKey(market.ID, collReserve.TokenMint), s.CollateralTokensSold); err != nil {
		return err
	}
	if err := t.journals.Burn(ledger.JournalTypeDepositNoteBurn,
		ledger.CollateralKey(collCustody, collReserve.DepositNoteMint), s.CollateralNotesSold); err != nil {
		return err
	}
	if err := collReserve.Withdraw(s.CollateralTokensSold, s.CollateralNotesSold); err != nil {
		return err
	}
	if err := ob.WithdrawCollateral(collCustody, s.CollateralNotesSold); err != nil {
		return err
	}

	// Loan side: proceeds enter the vault, repaid notes burn, the rest is fees.
	if err := t.journals.Transfer(ledger.JournalTypeLiquidationProceeds,
		ledger.ExchangeKey(market.ID, loanReserve.TokenMint),
		ledger.VaultKey(loanReserve.Vault, loanReserve.TokenMint), s.Proceeds); err != nil {
		return err
	}
	if err := t.journals.Burn(ledger.JournalTypeLoanNoteBurn,
		ledger.LoanKey(loanCustody, loanReserve.LoanNoteMint), s.RepaidNotes); err != nil {
		return err
	}
	if err := loanReserve.Repay(t.slot, s.RepaidTokens, s.RepaidNotes); err != nil {
		return err
	}
	if err := ob.Repay(loanCustody, s.RepaidNotes); err != nil {
		return err
	}
	if err := loanReserve.AddUncollectedFees(t.slot, s.FeeProceeds); err != nil {
		return err
	}

	t.emit(event.LiquidateEvent{
		Liquidator:           e.Signer,
		Borrower:             e.Borrower,
		LoanReserve:          loanReserve.ID,
		CollateralReserve:    collReserve.ID,
		CollateralTokensSold: s.CollateralTokensSold,
		CollateralNotesSold:  s.CollateralNotesSold,
		Proceeds:             s.Proceeds,
		RepaidTokens:         s.RepaidTokens,
		RepaidNotes:          s.RepaidNotes,
		FeeProceeds:          s.FeeProceeds,
		RepaidValue:          s.RepaidValue,
	})
	return nil
}
