package event

import (
	"encoding/json"
	"fmt"

	"LendLedger/internal/exchange"

	"github.com/google/uuid"
)

// CommandType discriminator for command payloads
type CommandType int32

const (
	CommandTypeUnknown CommandType = iota
	CommandTypeInitMarket
	CommandTypeInitReserve
	CommandTypeUpdateReserveConfig
	CommandTypeSetMarketFlags
	CommandTypeSetMarketOwner
	CommandTypeRefreshReserve
	CommandTypeInitObligation
	CommandTypeInitDepositAccount
	CommandTypeInitCollateralAccount
	CommandTypeInitLoanAccount
	CommandTypeCloseDepositAccount
	CommandTypeCloseCollateralAccount
	CommandTypeCloseLoanAccount
	CommandTypeCloseObligation
	CommandTypeFundWallet
	CommandTypeDeposit
	CommandTypeWithdraw
	CommandTypeDepositCollateral
	CommandTypeWithdrawCollateral
	CommandTypeBorrow
	CommandTypeRepay
	CommandTypeLiquidate
)

var commandNames = map[CommandType]string{
	CommandTypeInitMarket:             "init_market",
	CommandTypeInitReserve:            "init_reserve",
	CommandTypeUpdateReserveConfig:    "update_reserve_config",
	CommandTypeSetMarketFlags:         "set_market_flags",
	CommandTypeSetMarketOwner:         "set_market_owner",
	CommandTypeRefreshReserve:         "refresh_reserve",
	CommandTypeInitObligation:         "init_obligation",
	CommandTypeInitDepositAccount:     "init_deposit_account",
	CommandTypeInitCollateralAccount:  "init_collateral_account",
	CommandTypeInitLoanAccount:        "init_loan_account",
	CommandTypeCloseDepositAccount:    "close_deposit_account",
	CommandTypeCloseCollateralAccount: "close_collateral_account",
	CommandTypeCloseLoanAccount:       "close_loan_account",
	CommandTypeCloseObligation:        "close_obligation",
	CommandTypeFundWallet:             "fund_wallet",
	CommandTypeDeposit:                "deposit",
	CommandTypeWithdraw:               "withdraw",
	CommandTypeDepositCollateral:      "deposit_collateral",
	CommandTypeWithdrawCollateral:     "withdraw_collateral",
	CommandTypeBorrow:                 "borrow",
	CommandTypeRepay:                  "repay",
	CommandTypeLiquidate:              "liquidate",
}

func (ct CommandType) String() string {
	if name, ok := commandNames[ct]; ok {
		return name
	}
	return "unknown"
}

// ParseCommandType maps a wire name such as "deposit" to its type.
func ParseCommandType(name string) (CommandType, error) {
	for ct, n := range commandNames {
		if n == name {
			return ct, nil
		}
	}
	return CommandTypeUnknown, fmt.Errorf("unknown command type %q", name)
}

// CommandTypes lists every known type in declaration order.
func CommandTypes() []CommandType {
	out := make([]CommandType, 0, len(commandNames))
	for ct := CommandTypeInitMarket; ct <= CommandTypeLiquidate; ct++ {
		out = append(out, ct)
	}
	return out
}

// Header carries the fields every command shares.
type Header struct {
	// Stable idempotency key from upstream
	CommandID uuid.UUID `json:"command_id"`

	// Market the command applies to
	Market uuid.UUID `json:"market"`

	// Account that signed the command
	Signer uuid.UUID `json:"signer"`

	// Versioned clock input (NOT wall-clock); accrual runs up to this slot
	Slot uint64 `json:"slot"`
}

func (h Header) Head() Header { return h }

// IdempotencyKey returns the stable dedup key
func (h Header) IdempotencyKey() string { return h.CommandID.String() }

// Command is the interface all command payloads implement
type Command interface {
	Head() Header
	IdempotencyKey() string
	CommandType() CommandType
}

// NewCommand returns an empty command of type ct for decoding.
func NewCommand(ct CommandType) (Command, error) {
	switch ct {
	case CommandTypeInitMarket:
		return &InitMarket{}, nil
	case CommandTypeInitReserve:
		return &InitReserve{}, nil
	case CommandTypeUpdateReserveConfig:
		return &UpdateReserveConfig{}, nil
	case CommandTypeSetMarketFlags:
		return &SetMarketFlags{}, nil
	case CommandTypeSetMarketOwner:
		return &SetMarketOwner{}, nil
	case CommandTypeRefreshReserve:
		return &RefreshReserve{}, nil
	case CommandTypeInitObligation:
		return &InitObligation{}, nil
	case CommandTypeInitDepositAccount:
		return &InitDepositAccount{}, nil
	case CommandTypeInitCollateralAccount:
		return &InitCollateralAccount{}, nil
	case CommandTypeInitLoanAccount:
		return &InitLoanAccount{}, nil
	case CommandTypeCloseDepositAccount:
		return &CloseDepositAccount{}, nil
	case CommandTypeCloseCollateralAccount:
		return &CloseCollateralAccount{}, nil
	case CommandTypeCloseLoanAccount:
		return &CloseLoanAccount{}, nil
	case CommandTypeCloseObligation:
		return &CloseObligation{}, nil
	case CommandTypeFundWallet:
		return &FundWallet{}, nil
	case CommandTypeDeposit:
		return &Deposit{}, nil
	case CommandTypeWithdraw:
		return &Withdraw{}, nil
	case CommandTypeDepositCollateral:
		return &DepositCollateral{}, nil
	case CommandTypeWithdrawCollateral:
		return &WithdrawCollateral{}, nil
	case CommandTypeBorrow:
		return &Borrow{}, nil
	case CommandTypeRepay:
		return &Repay{}, nil
	case CommandTypeLiquidate:
		return &Liquidate{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %d", ct)
	}
}

// DecodeCommand decodes a JSON payload of the named type.
func DecodeCommand(ct CommandType, payload []byte) (Command, error) {
	cmd, err := NewCommand(ct)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ct, err)
	}
	return cmd, nil
}

// EventEnvelope wraps every applied command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	CommandType CommandType

	MarketID uuid.UUID
	Signer   uuid.UUID

	// Versioned input slot (NOT wall-clock)
	Slot uint64

	// JSON-encoded command
	Payload []byte

	// Exchange fills the command consumed, in order; replay feeds them back
	// instead of trading again
	Fills []exchange.Fill

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}
