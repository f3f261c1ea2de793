// Package exchange is the order-book collaborator used by liquidations. The
// core places one immediate-or-cancel order per liquidation and books the
// settled fill through the vault ledger.
package exchange

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrMarketNotFound = errors.New("exchange market not found")
	ErrInvalidOrder   = errors.New("invalid order")
)

// Side of an order. Asks sell the base (coin) token for the quote (pc) token.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideAsk {
		return "ask"
	}
	return "bid"
}

// Order mirrors a new-order instruction. LimitPrice is in quote units per
// coin lot; MaxCoinQty is in coin lots; MaxPcQty is in raw quote units.
type Order struct {
	Market     uuid.UUID `json:"market"`
	Side       Side      `json:"side"`
	LimitPrice uint64    `json:"limit_price"`
	MaxCoinQty uint64    `json:"max_coin_qty"`
	MaxPcQty   uint64    `json:"max_pc_qty"`
}

// Fill is the settled result of an order in raw token units.
type Fill struct {
	CoinLots   uint64 `json:"coin_lots"`
	CoinAmount uint64 `json:"coin_amount"`
	PcAmount   uint64 `json:"pc_amount"`
}

// MarketInfo describes a market's tokens and lot size.
type MarketInfo struct {
	ID          uuid.UUID `json:"id"`
	BaseMint    uuid.UUID `json:"base_mint"`
	QuoteMint   uuid.UUID `json:"quote_mint"`
	CoinLotSize uint64    `json:"coin_lot_size"`
}

// Exchange places orders that fill and settle immediately. Implementations
// must be deterministic for a given sequence of calls.
type Exchange interface {
	Market(id uuid.UUID) (MarketInfo, error)
	PlaceOrder(order Order) (Fill, error)
}
