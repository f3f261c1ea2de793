package core

import (
	"fmt"

	"LendLedger/internal/event"
	"LendLedger/internal/exchange"
	"LendLedger/internal/ledger"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// DepositAccount is an initialized deposit-note account.
type DepositAccount struct {
	ID      uuid.UUID `json:"id"`
	Owner   uuid.UUID `json:"owner"`
	Reserve uuid.UUID `json:"reserve"`
}

// marketState is the committed state of one market.
type marketState struct {
	market          *state.Market
	reserves        []*state.Reserve // by index
	obligations     map[uuid.UUID]*state.Obligation
	depositAccounts map[uuid.UUID]DepositAccount
}

func newMarketState(m *state.Market) *marketState {
	return &marketState{
		market:          m,
		obligations:     make(map[uuid.UUID]*state.Obligation),
		depositAccounts: make(map[uuid.UUID]DepositAccount),
	}
}

// txn stages every mutation of one command. Reserves and obligations are
// cloned on first touch, reserves are accrued to the command slot when
// cloned, and nothing reaches committed state until commit.
type txn struct {
	cmd  event.Command
	slot uint64

	base   *marketState // nil until the market exists
	market *state.Market

	reserves         map[uint16]*state.Reserve
	addedReserves    []*state.Reserve
	obligations      map[uuid.UUID]*state.Obligation
	closedObligation map[uuid.UUID]bool
	depositAccounts  map[uuid.UUID]*DepositAccount // nil value = closed

	journals *ledger.JournalGenerator
	events   []event.Outbound
	fills    []exchange.Fill
}

func newTxn(cmd event.Command, base *marketState, tracker *ledger.BalanceTracker) *txn {
	t := &txn{
		cmd:              cmd,
		slot:             cmd.Head().Slot,
		base:             base,
		reserves:         make(map[uint16]*state.Reserve),
		obligations:      make(map[uuid.UUID]*state.Obligation),
		closedObligation: make(map[uuid.UUID]bool),
		depositAccounts:  make(map[uuid.UUID]*DepositAccount),
		journals:         ledger.NewJournalGenerator(tracker),
	}
	if base != nil {
		t.market = base.market
	}
	return t
}

// mutableMarket returns the staged market, cloning it on first write.
func (t *txn) mutableMarket() *state.Market {
	if t.base != nil && t.market == t.base.market {
		t.market = t.market.Clone()
	}
	return t.market
}

func (t *txn) reserveCount() int {
	n := len(t.addedReserves)
	if t.base != nil {
		n += len(t.base.reserves)
	}
	return n
}

// ReserveAt implements state.ReserveLookup over staged state.
func (t *txn) ReserveAt(index uint16) (*state.Reserve, error) {
	if r, ok := t.reserves[index]; ok {
		return r, nil
	}
	if t.base == nil || int(index) >= len(t.base.reserves) {
		for _, r := range t.addedReserves {
			if r.Index == index {
				return r, nil
			}
		}
		return nil, fmt.Errorf("reserve index %d: %w", index, state.ErrReserveNotFound)
	}
	r := t.base.reserves[index].Clone()
	if err := r.Accrue(t.slot); err != nil {
		return nil, fmt.Errorf("accrue reserve %d: %w", index, err)
	}
	t.reserves[index] = r
	return r, nil
}

// reserve resolves a reserve id within the staged market.
func (t *txn) reserve(id uuid.UUID) (*state.Reserve, error) {
	if t.market != nil {
		for i, rid := range t.market.Reserves {
			if rid == id {
				return t.ReserveAt(uint16(i))
			}
		}
	}
	return nil, fmt.Errorf("reserve %s: %w", id, state.ErrReserveNotFound)
}

func (t *txn) addReserve(r *state.Reserve) {
	t.addedReserves = append(t.addedReserves, r)
	t.reserves[r.Index] = r
}

// obligation returns the staged obligation of owner.
func (t *txn) obligation(owner uuid.UUID) (*state.Obligation, error) {
	id := state.ObligationID(t.market.ID, owner)
	if ob, ok := t.obligations[id]; ok {
		return ob, nil
	}
	if t.closedObligation[id] || t.base == nil {
		return nil, fmt.Errorf("obligation of %s: %w", owner, state.ErrObligationNotFound)
	}
	ob, ok := t.base.obligations[id]
	if !ok {
		return nil, fmt.Errorf("obligation of %s: %w", owner, state.ErrObligationNotFound)
	}
	ob = ob.Clone()
	t.obligations[id] = ob
	return ob, nil
}

func (t *txn) hasObligation(owner uuid.UUID) bool {
	_, err := t.obligation(owner)
	return err == nil
}

func (t *txn) addObligation(ob *state.Obligation) {
	delete(t.closedObligation, ob.ID)
	t.obligations[ob.ID] = ob
}

func (t *txn) closeObligation(ob *state.Obligation) {
	delete(t.obligations, ob.ID)
	t.closedObligation[ob.ID] = true
}

func (t *txn) depositAccount(reserve, owner uuid.UUID) (DepositAccount, error) {
	id := state.DepositAccountID(reserve, owner)
	if acct, ok := t.depositAccounts[id]; ok {
		if acct == nil {
			return DepositAccount{}, fmt.Errorf("deposit account %s: %w", id, state.ErrAccountNotFound)
		}
		return *acct, nil
	}
	if t.base != nil {
		if acct, ok := t.base.depositAccounts[id]; ok {
			return acct, nil
		}
	}
	return DepositAccount{}, fmt.Errorf("deposit account %s: %w", id, state.ErrAccountNotFound)
}

func (t *txn) emit(o event.Outbound) {
	t.events = append(t.events, o)
}

// touchedReserves returns staged reserves ordered by index.
func (t *txn) touchedReserves() []*state.Reserve {
	out := make([]*state.Reserve, 0, len(t.reserves))
	for i := 0; i < t.reserveCount(); i++ {
		if r, ok := t.reserves[uint16(i)]; ok {
			out = append(out, r)
		}
	}
	return out
}
