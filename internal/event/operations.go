package event

import (
	"LendLedger/internal/state"

	"github.com/google/uuid"
)

// Deposit moves tokens from the signer's wallet into the reserve vault and
// mints deposit notes.
type Deposit struct {
	Header
	Reserve uuid.UUID    `json:"reserve"`
	Amount  state.Amount `json:"amount"`
}

func (*Deposit) CommandType() CommandType { return CommandTypeDeposit }

type Withdraw struct {
	Header
	Reserve uuid.UUID    `json:"reserve"`
	Amount  state.Amount `json:"amount"`
}

func (*Withdraw) CommandType() CommandType { return CommandTypeWithdraw }

type DepositCollateral struct {
	Header
	Reserve uuid.UUID    `json:"reserve"`
	Amount  state.Amount `json:"amount"`
}

func (*DepositCollateral) CommandType() CommandType { return CommandTypeDepositCollateral }

type WithdrawCollateral struct {
	Header
	Reserve uuid.UUID    `json:"reserve"`
	Amount  state.Amount `json:"amount"`
}

func (*WithdrawCollateral) CommandType() CommandType { return CommandTypeWithdrawCollateral }

type Borrow struct {
	Header
	Reserve uuid.UUID    `json:"reserve"`
	Amount  state.Amount `json:"amount"`
}

func (*Borrow) CommandType() CommandType { return CommandTypeBorrow }

// Repay pays down Borrower's loan from the signer's wallet. A nil Borrower
// repays the signer's own loan.
type Repay struct {
	Header
	Reserve  uuid.UUID    `json:"reserve"`
	Borrower uuid.UUID    `json:"borrower"`
	Amount   state.Amount `json:"amount"`
}

func (*Repay) CommandType() CommandType { return CommandTypeRepay }

// Liquidate sells Borrower's collateral on the exchange to repay their loan.
// Amount, in tokens, optionally caps the collateral sold (0 = no cap).
type Liquidate struct {
	Header
	Borrower          uuid.UUID    `json:"borrower"`
	LoanReserve       uuid.UUID    `json:"loan_reserve"`
	CollateralReserve uuid.UUID    `json:"collateral_reserve"`
	Amount            state.Amount `json:"amount"`
}

func (*Liquidate) CommandType() CommandType { return CommandTypeLiquidate }
