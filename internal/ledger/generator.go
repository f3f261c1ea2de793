package ledger

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
)

var batchNamespace = uuid.MustParse("0b8f2d64-3c1e-5a97-b6d0-4e2a91c7f358")

// JournalGenerator stages the vault instructions of one command against a
// BalanceTracker without touching it. Staged balances are visible through
// Balance so later instructions of the same command see earlier ones.
type JournalGenerator struct {
	tracker *BalanceTracker
	pending map[AccountKey]int64
	entries []Journal
}

func NewJournalGenerator(tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		tracker: tracker,
		pending: make(map[AccountKey]int64),
	}
}

// Balance returns the staged balance of key.
func (jg *JournalGenerator) Balance(key AccountKey) int64 {
	return jg.tracker.GetBalance(key) + jg.pending[key]
}

// CurrentBalance returns the staged spendable balance of key.
func (jg *JournalGenerator) CurrentBalance(key AccountKey) uint64 {
	if b := jg.Balance(key); b > 0 {
		return uint64(b)
	}
	return 0
}

// Transfer moves amount from one account to another of the same mint.
// Zero amounts stage nothing.
func (jg *JournalGenerator) Transfer(jt JournalType, from, to AccountKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from.Mint != to.Mint {
		return fmt.Errorf("%s -> %s: %w", from.AccountPath(), to.AccountPath(), ErrMintMismatch)
	}
	if amount > math.MaxInt64 {
		return fmt.Errorf("transfer of %d: %w", amount, ErrAmountOutOfRange)
	}
	if !from.IsExternal() {
		if have := jg.CurrentBalance(from); have < amount {
			return fmt.Errorf("account %s: have=%d, need=%d: %w", from.AccountPath(), have, amount, ErrInsufficientFunds)
		}
	}

	jg.pending[from] -= int64(amount)
	jg.pending[to] += int64(amount)
	jg.entries = append(jg.entries, Journal{
		DebitAccount:  to,
		CreditAccount: from,
		Mint:          to.MintID(),
		Amount:        int64(amount),
		JournalType:   jt,
	})
	return nil
}

// Mint issues amount of the account's mint into to.
func (jg *JournalGenerator) Mint(jt JournalType, to AccountKey, amount uint64) error {
	return jg.Transfer(jt, IssuanceKey(to.MintID()), to, amount)
}

// Burn destroys amount of the account's mint held by from.
func (jg *JournalGenerator) Burn(jt JournalType, from AccountKey, amount uint64) error {
	return jg.Transfer(jt, from, IssuanceKey(from.MintID()), amount)
}

// Len returns the number of staged instructions.
func (jg *JournalGenerator) Len() int {
	return len(jg.entries)
}

// Seal stamps the staged instructions with ids derived from the command
// identity and returns them as a batch. It returns nil when nothing was
// staged.
func (jg *JournalGenerator) Seal(eventRef string, sequence int64, slot uint64) *Batch {
	if len(jg.entries) == 0 {
		return nil
	}

	batchID := uuid.NewSHA1(batchNamespace, []byte(eventRef+"/"+strconv.FormatInt(sequence, 10)))
	batch := &Batch{
		BatchID:  batchID,
		EventRef: eventRef,
		Sequence: sequence,
		Slot:     slot,
		Journals: make([]Journal, len(jg.entries)),
	}
	for i, j := range jg.entries {
		j.JournalID = uuid.NewSHA1(batchID, []byte(strconv.Itoa(i)))
		j.BatchID = batchID
		j.EventRef = eventRef
		j.Sequence = sequence
		j.Slot = slot
		batch.Journals[i] = j
	}
	return batch
}

// Reset discards everything staged.
func (jg *JournalGenerator) Reset() {
	jg.pending = make(map[AccountKey]int64)
	jg.entries = jg.entries[:0]
}
