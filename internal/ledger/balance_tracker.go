package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// CurrentBalance returns the spendable balance of a non-external account.
func (bt *BalanceTracker) CurrentBalance(key AccountKey) uint64 {
	if b := bt.balances[key]; b > 0 {
		return uint64(b)
	}
	return 0
}

// Supply returns the circulating supply of mint.
func (bt *BalanceTracker) Supply(mint uuid.UUID) uint64 {
	if b := bt.balances[IssuanceKey(mint)]; b < 0 {
		return uint64(-b)
	}
	return 0
}

// ValidateSufficient checks an account can give up amount.
func (bt *BalanceTracker) ValidateSufficient(key AccountKey, required uint64) error {
	if key.IsExternal() {
		return nil
	}
	if have := bt.CurrentBalance(key); have < required {
		return fmt.Errorf("account %s: have=%d, need=%d: %w", key.AccountPath(), have, required, ErrInsufficientFunds)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per mint (should be 0 for
// every mint in a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[uuid.UUID]int64 {
	totals := make(map[uuid.UUID]int64)

	for key, balance := range bt.balances {
		totals[key.MintID()] += balance
	}

	return totals
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances with a snapshot.
func (bt *BalanceTracker) Restore(snapshot map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(snapshot))
	for k, v := range snapshot {
		if v != 0 {
			bt.balances[k] = v
		}
	}
}

// SortedKeys returns every account with a non-zero balance in a stable
// order, for hashing and serialization.
func (bt *BalanceTracker) SortedKeys() []AccountKey {
	keys := make([]AccountKey, 0, len(bt.balances))
	for k, v := range bt.balances {
		if v != 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

func keyLess(a, b AccountKey) bool {
	if a.Scope != b.Scope {
		return a.Scope < b.Scope
	}
	if c := bytes.Compare(a.EntityID[:], b.EntityID[:]); c != 0 {
		return c < 0
	}
	if a.SubType != b.SubType {
		return a.SubType < b.SubType
	}
	return bytes.Compare(a.Mint[:], b.Mint[:]) < 0
}
