package ledger

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMintMismatch      = errors.New("account does not hold mint")
	ErrAmountOutOfRange  = errors.New("amount out of range")
)
