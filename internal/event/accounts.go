package event

import "github.com/google/uuid"

// InitObligation opens the signer's obligation in the market.
type InitObligation struct {
	Header
}

func (*InitObligation) CommandType() CommandType { return CommandTypeInitObligation }

// InitDepositAccount opens the signer's deposit-note account for Reserve.
type InitDepositAccount struct {
	Header
	Reserve uuid.UUID `json:"reserve"`
}

func (*InitDepositAccount) CommandType() CommandType { return CommandTypeInitDepositAccount }

// InitCollateralAccount registers a collateral position for Reserve on the
// signer's obligation.
type InitCollateralAccount struct {
	Header
	Reserve uuid.UUID `json:"reserve"`
}

func (*InitCollateralAccount) CommandType() CommandType { return CommandTypeInitCollateralAccount }

// InitLoanAccount registers a loan position for Reserve on the signer's
// obligation.
type InitLoanAccount struct {
	Header
	Reserve uuid.UUID `json:"reserve"`
}

func (*InitLoanAccount) CommandType() CommandType { return CommandTypeInitLoanAccount }

type CloseDepositAccount struct {
	Header
	Reserve uuid.UUID `json:"reserve"`
}

func (*CloseDepositAccount) CommandType() CommandType { return CommandTypeCloseDepositAccount }

type CloseCollateralAccount struct {
	Header
	Reserve uuid.UUID `json:"reserve"`
}

func (*CloseCollateralAccount) CommandType() CommandType { return CommandTypeCloseCollateralAccount }

type CloseLoanAccount struct {
	Header
	Reserve uuid.UUID `json:"reserve"`
}

func (*CloseLoanAccount) CommandType() CommandType { return CommandTypeCloseLoanAccount }

type CloseObligation struct {
	Header
}

func (*CloseObligation) CommandType() CommandType { return CommandTypeCloseObligation }

// FundWallet credits Amount of an external Mint to Owner's wallet. Only the
// market owner may sign it.
type FundWallet struct {
	Header
	Owner  uuid.UUID `json:"owner"`
	Mint   uuid.UUID `json:"mint"`
	Amount uint64    `json:"amount"`
}

func (*FundWallet) CommandType() CommandType { return CommandTypeFundWallet }
