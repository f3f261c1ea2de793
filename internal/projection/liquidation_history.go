package projection

import (
	"LendLedger/internal/event"

	"github.com/google/uuid"
)

// LiquidationHistoryEntry is one liquidation as recorded in
// projections.liquidation_history.
type LiquidationHistoryEntry struct {
	Sequence             int64
	MarketID             uuid.UUID
	Slot                 uint64
	Borrower             uuid.UUID
	Liquidator           uuid.UUID
	LoanReserve          uuid.UUID
	CollateralReserve    uuid.UUID
	CollateralTokensSold uint64
	Proceeds             uint64
	RepaidTokens         uint64
	FeeProceeds          uint64
	RepaidValue          string
}

// liquidationEntries extracts the liquidations among a command's outbound
// events.
func liquidationEntries(seq int64, market uuid.UUID, slot uint64, events []event.Outbound) []LiquidationHistoryEntry {
	var out []LiquidationHistoryEntry
	for _, ev := range events {
		var liq *event.LiquidateEvent
		switch e := ev.(type) {
		case event.LiquidateEvent:
			liq = &e
		case *event.LiquidateEvent:
			liq = e
		default:
			continue
		}
		out = append(out, LiquidationHistoryEntry{
			Sequence:             seq,
			MarketID:             market,
			Slot:                 slot,
			Borrower:             liq.Borrower,
			Liquidator:           liq.Liquidator,
			LoanReserve:          liq.LoanReserve,
			CollateralReserve:    liq.CollateralReserve,
			CollateralTokensSold: liq.CollateralTokensSold,
			Proceeds:             liq.Proceeds,
			RepaidTokens:         liq.RepaidTokens,
			FeeProceeds:          liq.FeeProceeds,
			RepaidValue:          liq.RepaidValue.String(),
		})
	}
	return out
}
