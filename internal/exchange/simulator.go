package exchange

import (
	"fmt"
	"math"
	"sort"
	"sync"

	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
)

// SimMarket configures one simulated market. Price is quote tokens per base
// token in whole units; the fill price moves against the taker by
// SlippageBps. DepthLots caps the coin lots a single order can take
// (0 = unlimited).
type SimMarket struct {
	MarketInfo
	BaseExponent  int32         `json:"base_exponent"`
	QuoteExponent int32         `json:"quote_exponent"`
	Price         fpmath.Number `json:"price"`
	SlippageBps   uint16        `json:"slippage_bps"`
	DepthLots     uint64        `json:"depth_lots"`
}

// Simulator is an in-process Exchange with a constant-price book per market.
type Simulator struct {
	mu      sync.RWMutex
	markets map[uuid.UUID]SimMarket
}

func NewSimulator() *Simulator {
	return &Simulator{markets: make(map[uuid.UUID]SimMarket)}
}

// AddMarket registers or replaces a market.
func (s *Simulator) AddMarket(m SimMarket) error {
	if m.CoinLotSize == 0 {
		return fmt.Errorf("market %s: zero coin lot size: %w", m.ID, ErrInvalidOrder)
	}
	if m.SlippageBps >= 10_000 {
		return fmt.Errorf("market %s: slippage %d bps: %w", m.ID, m.SlippageBps, ErrInvalidOrder)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m
	return nil
}

// SetPrice moves a market's reference price.
func (s *Simulator) SetPrice(id uuid.UUID, price fpmath.Number) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrMarketNotFound)
	}
	m.Price = price
	s.markets[id] = m
	return nil
}

// SetSlippage changes how far fills move against the taker.
func (s *Simulator) SetSlippage(id uuid.UUID, bps uint16) error {
	if bps >= 10_000 {
		return fmt.Errorf("slippage %d bps: %w", bps, ErrInvalidOrder)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrMarketNotFound)
	}
	m.SlippageBps = bps
	s.markets[id] = m
	return nil
}

// Markets lists configured markets ordered by id.
func (s *Simulator) Markets() []SimMarket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SimMarket, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *Simulator) Market(id uuid.UUID) (MarketInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return MarketInfo{}, fmt.Errorf("%s: %w", id, ErrMarketNotFound)
	}
	return m.MarketInfo, nil
}

// PlaceOrder fills as much of the order as the limit and depth allow. An
// order whose limit cannot be met fills nothing.
func (s *Simulator) PlaceOrder(o Order) (Fill, error) {
	s.mu.RLock()
	m, ok := s.markets[o.Market]
	s.mu.RUnlock()
	if !ok {
		return Fill{}, fmt.Errorf("%s: %w", o.Market, ErrMarketNotFound)
	}
	if o.LimitPrice == 0 || o.MaxCoinQty == 0 || o.MaxPcQty == 0 {
		return Fill{}, fmt.Errorf("zero limit or quantity: %w", ErrInvalidOrder)
	}

	switch o.Side {
	case SideAsk:
		return m.fillAsk(o)
	case SideBid:
		return m.fillBid(o)
	default:
		return Fill{}, fmt.Errorf("side %d: %w", o.Side, ErrInvalidOrder)
	}
}

func (m SimMarket) fillAsk(o Order) (Fill, error) {
	lots := m.capLots(o.MaxCoinQty)
	perLot, err := m.quoteForLots(1, fpmath.RoundDown, false)
	if err != nil {
		return Fill{}, err
	}
	if perLot < o.LimitPrice {
		return Fill{}, nil
	}
	pc, err := m.quoteForLots(lots, fpmath.RoundDown, false)
	if err != nil {
		return Fill{}, err
	}
	if pc > o.MaxPcQty {
		return Fill{}, nil
	}
	return Fill{CoinLots: lots, CoinAmount: lots * m.CoinLotSize, PcAmount: pc}, nil
}

func (m SimMarket) fillBid(o Order) (Fill, error) {
	perLot, err := m.quoteForLots(1, fpmath.RoundUp, true)
	if err != nil {
		return Fill{}, err
	}
	if perLot == 0 || perLot > o.LimitPrice {
		return Fill{}, nil
	}
	lots := m.capLots(min(o.MaxCoinQty, o.MaxPcQty/perLot))
	for lots > 0 {
		pc, err := m.quoteForLots(lots, fpmath.RoundUp, true)
		if err != nil {
			return Fill{}, err
		}
		if pc <= o.MaxPcQty {
			return Fill{CoinLots: lots, CoinAmount: lots * m.CoinLotSize, PcAmount: pc}, nil
		}
		lots--
	}
	return Fill{}, nil
}

func (m SimMarket) capLots(lots uint64) uint64 {
	if limit := math.MaxUint64 / m.CoinLotSize; lots > limit {
		lots = limit
	}
	if m.DepthLots != 0 && lots > m.DepthLots {
		lots = m.DepthLots
	}
	return lots
}

// quoteForLots prices lots at the reference price moved against the taker.
func (m SimMarket) quoteForLots(lots uint64, rounding fpmath.RoundingMode, buying bool) (uint64, error) {
	slip := fpmath.FromBps(uint64(m.SlippageBps))
	factor := fpmath.One().SaturatingSub(slip)
	if buying {
		var err error
		if factor, err = fpmath.One().Add(slip); err != nil {
			return 0, err
		}
	}
	quote, err := fpmath.Compute(fpmath.FromDecimal(lots*m.CoinLotSize, m.BaseExponent)).
		Mul(m.Price).
		Mul(factor).
		Result()
	if err != nil {
		return 0, fmt.Errorf("quote for %d lots: %w", lots, err)
	}
	return quote.AsU64(m.QuoteExponent, rounding)
}
