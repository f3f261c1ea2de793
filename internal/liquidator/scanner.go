package liquidator

import (
	"errors"
	"fmt"

	"LendLedger/internal/event"
	fpmath "LendLedger/internal/math"
	"LendLedger/internal/observability"
	"LendLedger/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Source is the committed state the scanner reads. The deterministic core
// satisfies it; calls must happen on the core's goroutine.
type Source interface {
	Markets() []uuid.UUID
	Reserves(market uuid.UUID) ([]*state.Reserve, error)
	Obligations(market uuid.UUID) ([]*state.Obligation, error)
	LastSlot(market uuid.UUID) uint64
}

// Candidate is an obligation below its minimum collateral ratio, paired with
// its largest loan and the largest collateral that can be sold for it.
type Candidate struct {
	Market            uuid.UUID
	Borrower          uuid.UUID
	Slot              uint64
	LoanReserve       uuid.UUID
	CollateralReserve uuid.UUID
	LoanValue         fpmath.Number
	CollateralValue   fpmath.Number
}

// Scanner finds liquidatable obligations and turns them into liquidate
// commands signed by the liquidator account.
type Scanner struct {
	source  Source
	signer  uuid.UUID
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewScanner(source Source, signer uuid.UUID, metrics *observability.Metrics) *Scanner {
	return &Scanner{
		source:  source,
		signer:  signer,
		metrics: metrics,
		logger:  observability.NewLogger("liquidator"),
	}
}

// SetLogger replaces the component logger.
func (s *Scanner) SetLogger(l zerolog.Logger) {
	s.logger = l
}

type reserveSlice []*state.Reserve

func (rs reserveSlice) ReserveAt(index uint16) (*state.Reserve, error) {
	if int(index) >= len(rs) || rs[index] == nil {
		return nil, fmt.Errorf("reserve index %d: %w", index, state.ErrReserveNotFound)
	}
	return rs[index], nil
}

// Scan evaluates every obligation at its market's latest slot. Obligations
// whose debt exceeds their collateral are reported by the metrics but not
// returned: the swap path refuses them.
func (s *Scanner) Scan() ([]Candidate, error) {
	if s.metrics != nil {
		s.metrics.LiquidationScans.Inc()
	}
	var out []Candidate
	for _, market := range s.source.Markets() {
		cands, err := s.scanMarket(market)
		if err != nil {
			return out, fmt.Errorf("market %s: %w", market, err)
		}
		out = append(out, cands...)
	}
	return out, nil
}

func (s *Scanner) scanMarket(market uuid.UUID) ([]Candidate, error) {
	reserves, err := s.source.Reserves(market)
	if err != nil {
		return nil, err
	}
	obligations, err := s.source.Obligations(market)
	if err != nil {
		return nil, err
	}
	slot := s.source.LastSlot(market)
	cache := state.NewReserveInfoCache(reserveSlice(reserves))

	var out []Candidate
	for _, ob := range obligations {
		if !ob.HasDebt() {
			continue
		}
		status, err := ob.Health(cache, slot)
		if errors.Is(err, state.ErrPriceUnavailable) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("obligation %s: %w", ob.ID, err)
		}
		if status == state.HealthStatusHealthy {
			continue
		}
		s.countCandidate(market, status)
		if status == state.HealthStatusUnderwater {
			s.logger.Warn().
				Str("market_id", market.String()).
				Str("borrower", ob.Owner.String()).
				Str("loan_value", ob.Cached.LoanValue.String()).
				Str("collateral_value", ob.Cached.CollateralValue.String()).
				Msg("obligation underwater")
			continue
		}

		cand, ok, err := s.pick(ob, reserves, cache, slot)
		if err != nil {
			return out, fmt.Errorf("obligation %s: %w", ob.ID, err)
		}
		if ok {
			out = append(out, cand)
		}
	}
	return out, nil
}

// pick pairs the largest loan with the largest collateral in another
// reserve that trades on an exchange market.
func (s *Scanner) pick(ob *state.Obligation, reserves []*state.Reserve, cache *state.ReserveInfoCache, slot uint64) (Candidate, bool, error) {
	loan, loanValue, ok, err := ob.LargestLoan(cache, slot)
	if err != nil || !ok {
		return Candidate{}, false, err
	}

	var (
		best      state.CollateralPosition
		bestValue fpmath.Number
		found     bool
	)
	for _, pos := range ob.Collateral {
		if pos.DepositNotes == 0 || pos.ReserveIndex == loan.ReserveIndex {
			continue
		}
		r := reserves[pos.ReserveIndex]
		if r.Dex.MarketID == uuid.Nil {
			continue
		}
		info, err := cache.GetPriced(pos.ReserveIndex, slot)
		if err != nil {
			return Candidate{}, false, err
		}
		tokens, err := info.DepositNotesToTokens(pos.DepositNotes, fpmath.RoundDown)
		if err != nil {
			return Candidate{}, false, err
		}
		value, err := info.Value(tokens)
		if err != nil {
			return Candidate{}, false, err
		}
		if !found || value.Gt(bestValue) {
			best, bestValue, found = pos, value, true
		}
	}
	if !found {
		return Candidate{}, false, nil
	}

	return Candidate{
		Market:            ob.Market,
		Borrower:          ob.Owner,
		Slot:              slot,
		LoanReserve:       reserves[loan.ReserveIndex].ID,
		CollateralReserve: reserves[best.ReserveIndex].ID,
		LoanValue:         loanValue,
		CollateralValue:   bestValue,
	}, true, nil
}

// Command builds the liquidate command for a candidate. The command id is
// derived from the candidate and slot so a rescan at the same slot is
// deduplicated by the core.
func (s *Scanner) Command(c Candidate) *event.Liquidate {
	id := state.DeriveID(state.KindLiquidation, c.Market, c.Borrower, c.LoanReserve, c.CollateralReserve, slotID(c.Slot))
	return &event.Liquidate{
		Header: event.Header{
			CommandID: id,
			Market:    c.Market,
			Signer:    s.signer,
			Slot:      c.Slot,
		},
		Borrower:          c.Borrower,
		LoanReserve:       c.LoanReserve,
		CollateralReserve: c.CollateralReserve,
	}
}

func slotID(slot uint64) uuid.UUID {
	var id uuid.UUID
	for i := 0; i < 8; i++ {
		id[15-i] = byte(slot >> (8 * i))
	}
	return id
}

// Submit is how liquidate commands reach the core.
type Submit func(cmd event.Command) error

// RunOnce scans and submits a command per candidate, returning how many
// were submitted without error.
func (s *Scanner) RunOnce(submit Submit) (int, error) {
	cands, err := s.Scan()
	if err != nil {
		s.logger.Error().Err(err).Msg("liquidation scan failed")
	}
	submitted := 0
	for _, c := range cands {
		err := submit(s.Command(c))
		outcome := "submitted"
		if err != nil {
			outcome = state.ErrorCode(err).Name
			s.logger.Info().
				Str("market_id", c.Market.String()).
				Str("borrower", c.Borrower.String()).
				Err(err).
				Msg("liquidation not applied")
		} else {
			submitted++
		}
		if s.metrics != nil {
			s.metrics.LiquidationSubmitted.WithLabelValues(c.Market.String(), outcome).Inc()
		}
	}
	return submitted, err
}

func (s *Scanner) countCandidate(market uuid.UUID, status state.HealthStatus) {
	if s.metrics != nil {
		s.metrics.LiquidationCandidate.WithLabelValues(market.String(), status.String()).Inc()
	}
}
