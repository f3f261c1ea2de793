package state

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxReserves bounds the number of reserves in one market.
const MaxReserves = 32

// MarketFlags halt classes of user operations.
type MarketFlags uint64

const (
	FlagHaltBorrows MarketFlags = 1 << iota
	FlagHaltRepays
	FlagHaltDeposits

	allMarketFlags = FlagHaltBorrows | FlagHaltRepays | FlagHaltDeposits
)

// ParseMarketFlags rejects unknown bits.
func ParseMarketFlags(bits uint64) (MarketFlags, error) {
	if bits&^uint64(allMarketFlags) != 0 {
		return 0, fmt.Errorf("unknown market flag bits %#x: %w", bits&^uint64(allMarketFlags), ErrInvalidParameter)
	}
	return MarketFlags(bits), nil
}

func (f MarketFlags) String() string {
	if f == 0 {
		return "None"
	}
	var parts []string
	if f&FlagHaltBorrows != 0 {
		parts = append(parts, "HaltBorrows")
	}
	if f&FlagHaltRepays != 0 {
		parts = append(parts, "HaltRepays")
	}
	if f&FlagHaltDeposits != 0 {
		parts = append(parts, "HaltDeposits")
	}
	return strings.Join(parts, "|")
}

// Market groups reserves that share a quote currency and an owner. Reserves
// are referenced by id; the core owns the reserve records themselves.
type Market struct {
	ID            uuid.UUID   `json:"id"`
	Owner         uuid.UUID   `json:"owner"`
	QuoteMint     uuid.UUID   `json:"quote_mint"`
	QuoteCurrency string      `json:"quote_currency"`
	Flags         MarketFlags `json:"flags"`
	Reserves      []uuid.UUID `json:"reserves"` // position == reserve index
}

func NewMarket(id, owner, quoteMint uuid.UUID, quoteCurrency string) (*Market, error) {
	if owner == uuid.Nil || quoteMint == uuid.Nil {
		return nil, fmt.Errorf("market owner and quote mint are required: %w", ErrInvalidParameter)
	}
	if quoteCurrency == "" {
		return nil, fmt.Errorf("quote currency is required: %w", ErrInvalidParameter)
	}
	return &Market{
		ID:            id,
		Owner:         owner,
		QuoteMint:     quoteMint,
		QuoteCurrency: quoteCurrency,
	}, nil
}

// Clone returns a deep copy.
func (m *Market) Clone() *Market {
	c := *m
	c.Reserves = append([]uuid.UUID(nil), m.Reserves...)
	return &c
}

// NextReserveIndex is the index the next registered reserve will take.
func (m *Market) NextReserveIndex() (uint16, error) {
	if len(m.Reserves) >= MaxReserves {
		return 0, fmt.Errorf("market %s has %d reserves: %w", m.ID, MaxReserves, ErrInvalidParameter)
	}
	return uint16(len(m.Reserves)), nil
}

// RegisterReserve appends a reserve id; its index must be NextReserveIndex.
func (m *Market) RegisterReserve(r *Reserve) error {
	next, err := m.NextReserveIndex()
	if err != nil {
		return err
	}
	if r.Index != next {
		return fmt.Errorf("reserve index %d, expected %d: %w", r.Index, next, ErrInvalidParameter)
	}
	for _, id := range m.Reserves {
		if id == r.ID {
			return fmt.Errorf("reserve %s: %w", r.ID, ErrAlreadyExists)
		}
	}
	m.Reserves = append(m.Reserves, r.ID)
	return nil
}

// ReserveIDAt resolves an index to a reserve id.
func (m *Market) ReserveIDAt(index uint16) (uuid.UUID, error) {
	if int(index) >= len(m.Reserves) {
		return uuid.Nil, fmt.Errorf("market %s reserve index %d: %w", m.ID, index, ErrReserveNotFound)
	}
	return m.Reserves[index], nil
}

// VerifyOwner checks that signer owns the market.
func (m *Market) VerifyOwner(signer uuid.UUID) error {
	if signer != m.Owner {
		return fmt.Errorf("market %s owner: %w", m.ID, ErrUnauthorized)
	}
	return nil
}

func (m *Market) VerifyAbilityBorrow() error {
	return m.verifyNotHalted(FlagHaltBorrows)
}

func (m *Market) VerifyAbilityRepay() error {
	return m.verifyNotHalted(FlagHaltRepays)
}

func (m *Market) VerifyAbilityDeposit() error {
	return m.verifyNotHalted(FlagHaltDeposits)
}

func (m *Market) verifyNotHalted(flag MarketFlags) error {
	if m.Flags&flag != 0 {
		return fmt.Errorf("%s: %w", flag, ErrMarketHalted)
	}
	return nil
}
