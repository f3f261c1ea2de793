package query

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ReserveResponse is a reserve's projected bookkeeping.
type ReserveResponse struct {
	ReserveID         uuid.UUID       `json:"reserve_id"`
	MarketID          uuid.UUID       `json:"market_id"`
	Index             int             `json:"index"`
	TokenMint         uuid.UUID       `json:"token_mint"`
	TotalDeposits     int64           `json:"total_deposits"`
	TotalDepositNotes int64           `json:"total_deposit_notes"`
	TotalLoanNotes    int64           `json:"total_loan_notes"`
	OutstandingDebt   string          `json:"outstanding_debt"`
	UncollectedFees   string          `json:"uncollected_fees"`
	Utilization       string          `json:"utilization"`
	Price             string          `json:"price"`
	AccruedUntil      int64           `json:"accrued_until"`
	Config            json.RawMessage `json:"config"`
	LastSequence      int64           `json:"last_sequence"`
	AsOfSequence      int64           `json:"as_of_sequence"`
}

// ObligationResponse is a borrower's projected obligation. Collateral and
// loans are the position lists as stored.
type ObligationResponse struct {
	ObligationID uuid.UUID       `json:"obligation_id"`
	MarketID     uuid.UUID       `json:"market_id"`
	Owner        uuid.UUID       `json:"owner"`
	Collateral   json.RawMessage `json:"collateral"`
	Loans        json.RawMessage `json:"loans"`
	LastSequence int64           `json:"last_sequence"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// LiquidationHistoryResponse is one past liquidation of a borrower.
type LiquidationHistoryResponse struct {
	Sequence             int64     `json:"sequence"`
	MarketID             uuid.UUID `json:"market_id"`
	Borrower             uuid.UUID `json:"borrower"`
	Liquidator           uuid.UUID `json:"liquidator"`
	LoanReserve          uuid.UUID `json:"loan_reserve"`
	CollateralReserve    uuid.UUID `json:"collateral_reserve"`
	CollateralTokensSold int64     `json:"collateral_tokens_sold"`
	Proceeds             int64     `json:"proceeds"`
	RepaidTokens         int64     `json:"repaid_tokens"`
	FeeProceeds          int64     `json:"fee_proceeds"`
	RepaidValue          string    `json:"repaid_value"`
	Slot                 int64     `json:"slot"`
	AsOfSequence         int64     `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Mint          string `json:"mint"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Slot          int64  `json:"slot"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool             `json:"is_healthy"`
	HashChainBreaks []int64          `json:"hash_chain_breaks,omitempty"`
	UnbalancedMints []UnbalancedMint `json:"unbalanced_mints,omitempty"`
	AsOfSequence    int64            `json:"as_of_sequence"`
}

// UnbalancedMint is a mint whose projected balances do not sum to zero.
type UnbalancedMint struct {
	Mint      uuid.UUID `json:"mint"`
	Imbalance int64     `json:"imbalance"`
}
