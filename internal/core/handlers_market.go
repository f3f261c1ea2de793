package core

import (
	"fmt"

	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

func (c *DeterministicCore) handleInitMarket(t *txn, e *event.InitMarket) error {
	if t.base != nil {
		return fmt.Errorf("market %s: %w", e.Market, state.ErrAlreadyExists)
	}
	if e.Market == uuid.Nil {
		return fmt.Errorf("market id is required: %w", state.ErrInvalidParameter)
	}
	m, err := state.NewMarket(e.Market, e.Signer, e.QuoteMint, e.QuoteCurrency)
	if err != nil {
		return err
	}
	t.market = m
	return nil
}

func (c *DeterministicCore) handleInitReserve(t *txn, e *event.InitReserve) error {
	if err := t.market.VerifyOwner(e.Signer); err != nil {
		return err
	}
	if err := state.ValidateReserveConfig(&e.Config); err != nil {
		return err
	}

	lotSize := e.CoinLotSize
	if e.DexMarket != uuid.Nil {
		info, err := c.exchange.Market(e.DexMarket)
		if err != nil {
			return fmt.Errorf("dex market %s: %v: %w", e.DexMarket, err, state.ErrInvalidParameter)
		}
		if info.BaseMint != e.TokenMint || info.QuoteMint != t.market.QuoteMint {
			return fmt.Errorf("dex market %s does not trade %s against the quote mint: %w",
				e.DexMarket, e.TokenMint, state.ErrInvalidParameter)
		}
		if lotSize == 0 {
			lotSize = info.CoinLotSize
		}
		if lotSize != info.CoinLotSize {
			return fmt.Errorf("coin lot size %d, dex market has %d: %w", lotSize, info.CoinLotSize, state.ErrInvalidParameter)
		}
	}

	m := t.mutableMarket()
	index, err := m.NextReserveIndex()
	if err != nil {
		return err
	}
	r, err := state.NewReserve(m.ID, index, e.TokenMint, e.Exponent, e.Config, t.slot)
	if err != nil {
		return err
	}
	r.Dex = state.DexMarket{MarketID: e.DexMarket, CoinLotSize: lotSize}
	if err := m.RegisterReserve(r); err != nil {
		return err
	}
	t.addReserve(r)
	return nil
}

func (c *DeterministicCore) handleUpdateReserveConfig(t *txn, e *event.UpdateReserveConfig) error {
	if err := t.market.VerifyOwner(e.Signer); err != nil {
		return err
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	return r.UpdateConfig(t.slot, e.Config)
}

func (c *DeterministicCore) handleSetMarketFlags(t *txn, e *event.SetMarketFlags) error {
	if err := t.market.VerifyOwner(e.Signer); err != nil {
		return err
	}
	flags, err := state.ParseMarketFlags(e.Flags)
	if err != nil {
		return err
	}
	t.mutableMarket().Flags = flags
	return nil
}

func (c *DeterministicCore) handleSetMarketOwner(t *txn, e *event.SetMarketOwner) error {
	if err := t.market.VerifyOwner(e.Signer); err != nil {
		return err
	}
	if e.NewOwner == uuid.Nil {
		return fmt.Errorf("new owner is required: %w", state.ErrInvalidParameter)
	}
	t.mutableMarket().Owner = e.NewOwner
	return nil
}

// handleRefreshReserve accrues interest; touching the reserve is enough.
func (c *DeterministicCore) handleRefreshReserve(t *txn, e *event.RefreshReserve) error {
	if e.Price != 0 {
		if err := t.market.VerifyOwner(e.Signer); err != nil {
			return err
		}
	}
	r, err := t.reserve(e.Reserve)
	if err != nil {
		return err
	}
	if e.Price == 0 {
		return nil
	}
	return r.SetPrice(fpmath.FromDecimal(e.Price, e.PriceExponent), t.slot)
}
