package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeFundWallet JournalType = iota
	JournalTypeDeposit
	JournalTypeWithdraw
	JournalTypeDepositNoteMint
	JournalTypeDepositNoteBurn
	JournalTypeCollateralPledge
	JournalTypeCollateralRelease
	JournalTypeBorrow
	JournalTypeLoanNoteMint
	JournalTypeRepay
	JournalTypeLoanNoteBurn
	JournalTypeLiquidationSale
	JournalTypeLiquidationProceeds
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeFundWallet:
		return "fund_wallet"
	case JournalTypeDeposit:
		return "deposit"
	case JournalTypeWithdraw:
		return "withdraw"
	case JournalTypeDepositNoteMint:
		return "deposit_note_mint"
	case JournalTypeDepositNoteBurn:
		return "deposit_note_burn"
	case JournalTypeCollateralPledge:
		return "collateral_pledge"
	case JournalTypeCollateralRelease:
		return "collateral_release"
	case JournalTypeBorrow:
		return "borrow"
	case JournalTypeLoanNoteMint:
		return "loan_note_mint"
	case JournalTypeRepay:
		return "repay"
	case JournalTypeLoanNoteBurn:
		return "loan_note_burn"
	case JournalTypeLiquidationSale:
		return "liquidation_sale"
	case JournalTypeLiquidationProceeds:
		return "liquidation_proceeds"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries of one command
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global command sequence
	DebitAccount  AccountKey  // Account receiving tokens (balance increases)
	CreditAccount AccountKey  // Account giving tokens (balance decreases)
	Mint          uuid.UUID   // Mint being moved
	Amount        int64       // Raw token units (ALWAYS positive)
	JournalType   JournalType // Entry type
	Slot          uint64      // Slot of the source command
}

// Batch is the ordered set of vault instructions produced by one command.
type Batch struct {
	BatchID  uuid.UUID
	EventRef string
	Sequence int64
	Slot     uint64
	Journals []Journal
}

// Validate ensures the batch is well-formed. Each entry moves one positive
// amount of one mint between two accounts holding that mint, so every entry
// is balanced on its own.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.Mint != j.Mint || j.CreditAccount.Mint != j.Mint {
			return fmt.Errorf("journal %s moves %s between accounts of another mint", j.JournalID, j.Mint)
		}
	}

	return nil
}
