package core

import (
	"fmt"
	"sort"

	"LendLedger/internal/ledger"
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// SnapshotState is the full in-memory state of the core at a sequence.
type SnapshotState struct {
	Sequence        int64             `json:"sequence"`
	StateHash       [32]byte          `json:"state_hash"`
	Markets         []MarketSnapshot  `json:"markets"`
	Balances        []BalanceEntry    `json:"balances"`
	SlotState       map[string]uint64 `json:"slot_state"`       // partition -> last applied slot
	IdempotencyKeys []string          `json:"idempotency_keys"` // oldest first, for LRU warming
}

// MarketSnapshot is one market with everything it owns.
type MarketSnapshot struct {
	Market          *state.Market       `json:"market"`
	Reserves        []*state.Reserve    `json:"reserves"`
	Obligations     []*state.Obligation `json:"obligations"`
	DepositAccounts []DepositAccount    `json:"deposit_accounts"`
}

// BalanceEntry is one non-zero vault-ledger balance.
type BalanceEntry struct {
	Account ledger.AccountKey `json:"account"`
	Balance int64             `json:"balance"`
}

// CreateSnapshotState captures the committed state. Records are shared, not
// copied: the core replaces records on commit rather than mutating them.
func (c *DeterministicCore) CreateSnapshotState() *SnapshotState {
	snap := &SnapshotState{
		Sequence:        c.sequence,
		StateHash:       c.chain.tip,
		SlotState:       c.slotValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.Keys(),
	}

	for _, id := range sortedIDs(c.markets) {
		ms := c.markets[id]
		m := MarketSnapshot{
			Market:   ms.market,
			Reserves: append([]*state.Reserve(nil), ms.reserves...),
		}
		for _, obID := range sortedIDs(ms.obligations) {
			m.Obligations = append(m.Obligations, ms.obligations[obID])
		}
		for _, acctID := range sortedIDs(ms.depositAccounts) {
			m.DepositAccounts = append(m.DepositAccounts, ms.depositAccounts[acctID])
		}
		snap.Markets = append(snap.Markets, m)
	}

	balances := c.balanceTracker.Snapshot()
	for _, key := range c.balanceTracker.SortedKeys() {
		if bal := balances[key]; bal != 0 {
			snap.Balances = append(snap.Balances, BalanceEntry{Account: key, Balance: bal})
		}
	}
	return snap
}

// RestoreFromSnapshot replaces the core's state. It is only valid on a core
// that has not processed anything yet. The restored ledger must satisfy the
// same invariants a commit checks.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	if c.sequence != 0 || len(c.markets) != 0 {
		return fmt.Errorf("restore into a core at sequence %d", c.sequence)
	}

	markets := make(map[uuid.UUID]*marketState, len(snap.Markets))
	for _, m := range snap.Markets {
		if m.Market == nil {
			return fmt.Errorf("snapshot market without record")
		}
		ms := newMarketState(m.Market)
		ms.reserves = append(ms.reserves, m.Reserves...)
		for i, r := range ms.reserves {
			if r == nil || int(r.Index) != i {
				return fmt.Errorf("market %s: reserve slot %d out of order", m.Market.ID, i)
			}
		}
		for _, ob := range m.Obligations {
			ms.obligations[ob.ID] = ob
		}
		for _, acct := range m.DepositAccounts {
			ms.depositAccounts[acct.ID] = acct
		}
		markets[m.Market.ID] = ms
	}

	balances := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for _, b := range snap.Balances {
		balances[b.Account] = b.Balance
	}
	c.balanceTracker.Restore(balances)
	if err := c.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("snapshot ledger: %w", err)
	}

	for _, ms := range markets {
		for _, r := range ms.reserves {
			if err := c.validator.ValidateBalance(ledger.VaultKey(r.Vault, r.TokenMint), r.State.TotalDeposits); err != nil {
				return fmt.Errorf("snapshot reserve %s: %w", r.ID, err)
			}
		}
	}

	c.markets = markets
	c.sequence = snap.Sequence
	c.chain.reset(snap.StateHash)

	partitions := make([]string, 0, len(snap.SlotState))
	for p := range snap.SlotState {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	for _, p := range partitions {
		c.slotValidator.RestorePartition(p, snap.SlotState[p])
	}
	c.idempotency.WarmFromKeys(snap.IdempotencyKeys)
	return nil
}
