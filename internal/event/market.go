package event

import (
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// InitMarket creates a market owned by the signer.
type InitMarket struct {
	Header
	QuoteMint     uuid.UUID `json:"quote_mint"`
	QuoteCurrency string    `json:"quote_currency"`
}

func (*InitMarket) CommandType() CommandType { return CommandTypeInitMarket }

// InitReserve registers a new reserve for TokenMint at the next index.
type InitReserve struct {
	Header
	TokenMint   uuid.UUID           `json:"token_mint"`
	Exponent    int32               `json:"exponent"`
	Config      state.ReserveConfig `json:"config"`
	DexMarket   uuid.UUID           `json:"dex_market"`
	CoinLotSize uint64              `json:"coin_lot_size"`
}

func (*InitReserve) CommandType() CommandType { return CommandTypeInitReserve }

type UpdateReserveConfig struct {
	Header
	Reserve uuid.UUID           `json:"reserve"`
	Config  state.ReserveConfig `json:"config"`
}

func (*UpdateReserveConfig) CommandType() CommandType { return CommandTypeUpdateReserveConfig }

type SetMarketFlags struct {
	Header
	Flags uint64 `json:"flags"`
}

func (*SetMarketFlags) CommandType() CommandType { return CommandTypeSetMarketFlags }

type SetMarketOwner struct {
	Header
	NewOwner uuid.UUID `json:"new_owner"`
}

func (*SetMarketOwner) CommandType() CommandType { return CommandTypeSetMarketOwner }

// RefreshReserve accrues a reserve to the command slot. A non-zero Price
// (Price * 10^PriceExponent quote per token) also records an oracle update
// and requires the market owner's signature.
type RefreshReserve struct {
	Header
	Reserve       uuid.UUID `json:"reserve"`
	Price         uint64    `json:"price"`
	PriceExponent int32     `json:"price_exponent"`
}

func (*RefreshReserve) CommandType() CommandType { return CommandTypeRefreshReserve }
