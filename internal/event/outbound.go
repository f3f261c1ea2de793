package event

import (
	fpmath "LendLedger/internal/math"

	"github.com/google/uuid"
)

// Outbound is a domain event published after a command commits.
type Outbound interface {
	Name() string
}

type DepositEvent struct {
	Depositor uuid.UUID `json:"depositor"`
	Reserve   uuid.UUID `json:"reserve"`
	Tokens    uint64    `json:"tokens"`
	Notes     uint64    `json:"notes"`
}

func (DepositEvent) Name() string { return "deposit" }

type WithdrawEvent struct {
	Depositor uuid.UUID `json:"depositor"`
	Reserve   uuid.UUID `json:"reserve"`
	Tokens    uint64    `json:"tokens"`
	Notes     uint64    `json:"notes"`
}

func (WithdrawEvent) Name() string { return "withdraw" }

type DepositCollateralEvent struct {
	Depositor uuid.UUID `json:"depositor"`
	Reserve   uuid.UUID `json:"reserve"`
	Notes     uint64    `json:"notes"`
}

func (DepositCollateralEvent) Name() string { return "deposit_collateral" }

type WithdrawCollateralEvent struct {
	Depositor uuid.UUID `json:"depositor"`
	Reserve   uuid.UUID `json:"reserve"`
	Notes     uint64    `json:"notes"`
}

func (WithdrawCollateralEvent) Name() string { return "withdraw_collateral" }

type BorrowEvent struct {
	Borrower uuid.UUID `json:"borrower"`
	Reserve  uuid.UUID `json:"reserve"`
	Tokens   uint64    `json:"tokens"`
	Fees     uint64    `json:"fees"`
	Debt     uint64    `json:"debt"` // loan notes minted
}

func (BorrowEvent) Name() string { return "borrow" }

type RepayEvent struct {
	Payer    uuid.UUID `json:"payer"`
	Borrower uuid.UUID `json:"borrower"`
	Reserve  uuid.UUID `json:"reserve"`
	Tokens   uint64    `json:"tokens"`
	Notes    uint64    `json:"notes"`
}

func (RepayEvent) Name() string { return "repay" }

type LiquidateEvent struct {
	Liquidator           uuid.UUID     `json:"liquidator"`
	Borrower             uuid.UUID     `json:"borrower"`
	LoanReserve          uuid.UUID     `json:"loan_reserve"`
	CollateralReserve    uuid.UUID     `json:"collateral_reserve"`
	CollateralTokensSold uint64        `json:"collateral_tokens_sold"`
	CollateralNotesSold  uint64        `json:"collateral_notes_sold"`
	Proceeds             uint64        `json:"proceeds"`
	RepaidTokens         uint64        `json:"repaid_tokens"`
	RepaidNotes          uint64        `json:"repaid_notes"`
	FeeProceeds          uint64        `json:"fee_proceeds"`
	RepaidValue          fpmath.Number `json:"repaid_value"`
}

func (LiquidateEvent) Name() string { return "liquidate" }
