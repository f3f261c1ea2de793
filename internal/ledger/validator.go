package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is well-formed and balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies every mint is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for mint, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for %s is non-zero: %d", mint, total)
		}
	}

	return nil
}

// ValidateAccountsNonNegative verifies no user or system account is overdrawn
func (v *InvariantValidator) ValidateAccountsNonNegative() error {
	for key := range v.tracker.balances {
		if key.IsExternal() {
			continue
		}
		if err := v.tracker.ValidateNonNegative(key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateBalance verifies an account holds exactly want, e.g. a reserve
// vault against the reserve's recorded deposits.
func (v *InvariantValidator) ValidateBalance(key AccountKey, want uint64) error {
	if got := v.tracker.GetBalance(key); got < 0 || uint64(got) != want {
		return fmt.Errorf("account %s holds %d, want %d", key.AccountPath(), got, want)
	}
	return nil
}

// ValidateSupply verifies the circulating supply of a note mint against the
// reserve's note total.
func (v *InvariantValidator) ValidateSupply(mint uuid.UUID, want uint64) error {
	if got := v.tracker.Supply(mint); got != want {
		return fmt.Errorf("supply of %s is %d, want %d", mint, got, want)
	}
	return nil
}
