package state

import (
	"errors"

	"LendLedger/internal/ledger"
	fpmath "LendLedger/internal/math"
)

// Error kinds surfaced by market operations. Callers match them with
// errors.Is; handlers wrap them with context via fmt.Errorf("...: %w").
var (
	ErrInvalidAmountUnits        = errors.New("invalid amount units")
	ErrInsufficientCollateral    = errors.New("insufficient collateral")
	ErrObligationHealthy         = errors.New("cannot liquidate a healthy position")
	ErrObligationUnhealthy       = errors.New("obligation would become unhealthy")
	ErrDisallowed                = errors.New("operation disallowed")
	ErrNotSupported              = errors.New("operation not supported")
	ErrLiquidationSwapSlipped    = errors.New("liquidation swap slipped")
	ErrObligationAccountMismatch = errors.New("account does not belong to obligation")

	ErrInvalidParameter         = errors.New("invalid parameter")
	ErrMarketHalted             = errors.New("market halted")
	ErrInsufficientLiquidity    = errors.New("insufficient reserve liquidity")
	ErrPositionNotFound         = errors.New("position not found")
	ErrPositionsFull            = errors.New("obligation position set is full")
	ErrDuplicatePosition        = errors.New("position already registered")
	ErrPositionNotEmpty         = errors.New("position not empty")
	ErrObligationNotEmpty       = errors.New("obligation not empty")
	ErrCollateralValueTooSmall  = errors.New("collateral value too small")
	ErrPriceUnavailable         = errors.New("reserve price unavailable")
	ErrReserveNotFound          = errors.New("reserve not found")
	ErrMarketNotFound           = errors.New("market not found")
	ErrObligationNotFound       = errors.New("obligation not found")
	ErrAccountNotFound          = errors.New("account not found")
	ErrAlreadyExists            = errors.New("already exists")
	ErrUnauthorized             = errors.New("signer not authorized")
	ErrInvalidLiquidationConfig = errors.New("liquidation premium plus slippage exceeds collateral margin")

	// Re-exported so callers only need this package for matching.
	ErrArithmeticOverflow = fpmath.ErrArithmeticOverflow
	ErrDivisionByZero     = fpmath.ErrDivisionByZero
	ErrInsufficientFunds  = ledger.ErrInsufficientFunds
)

// ErrorKind is the stable wire identity of an error kind.
type ErrorKind struct {
	Code uint32
	Name string
}

// Codes are append-only; clients persist them.
var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrArithmeticOverflow, ErrorKind{6000, "ArithmeticOverflow"}},
	{ErrDivisionByZero, ErrorKind{6001, "DivisionByZero"}},
	{ErrInvalidAmountUnits, ErrorKind{6002, "InvalidAmountUnits"}},
	{ErrInsufficientCollateral, ErrorKind{6003, "InsufficientCollateral"}},
	{ErrObligationHealthy, ErrorKind{6004, "ObligationHealthy"}},
	{ErrObligationUnhealthy, ErrorKind{6005, "ObligationUnhealthy"}},
	{ErrDisallowed, ErrorKind{6006, "Disallowed"}},
	{ErrNotSupported, ErrorKind{6007, "NotSupported"}},
	{ErrLiquidationSwapSlipped, ErrorKind{6008, "LiquidationSwapSlipped"}},
	{ErrObligationAccountMismatch, ErrorKind{6009, "ObligationAccountMismatch"}},
	{ErrInvalidParameter, ErrorKind{6010, "InvalidParameter"}},
	{ErrMarketHalted, ErrorKind{6011, "MarketHalted"}},
	{ErrInsufficientLiquidity, ErrorKind{6012, "InsufficientLiquidity"}},
	{ErrInsufficientFunds, ErrorKind{6013, "InsufficientFunds"}},
	{ErrPositionNotFound, ErrorKind{6014, "PositionNotFound"}},
	{ErrPositionsFull, ErrorKind{6015, "PositionsFull"}},
	{ErrDuplicatePosition, ErrorKind{6016, "DuplicatePosition"}},
	{ErrPositionNotEmpty, ErrorKind{6017, "PositionNotEmpty"}},
	{ErrObligationNotEmpty, ErrorKind{6018, "ObligationNotEmpty"}},
	{ErrCollateralValueTooSmall, ErrorKind{6019, "CollateralValueTooSmall"}},
	{ErrPriceUnavailable, ErrorKind{6020, "PriceUnavailable"}},
	{ErrReserveNotFound, ErrorKind{6021, "ReserveNotFound"}},
	{ErrMarketNotFound, ErrorKind{6022, "MarketNotFound"}},
	{ErrObligationNotFound, ErrorKind{6023, "ObligationNotFound"}},
	{ErrAccountNotFound, ErrorKind{6024, "AccountNotFound"}},
	{ErrAlreadyExists, ErrorKind{6025, "AlreadyExists"}},
	{ErrUnauthorized, ErrorKind{6026, "Unauthorized"}},
	{ErrInvalidLiquidationConfig, ErrorKind{6027, "InvalidLiquidationConfig"}},
}

// UnknownErrorKind is reported for errors outside the taxonomy.
var UnknownErrorKind = ErrorKind{Code: 0, Name: "Unknown"}

// ErrorCode classifies err. The first matching kind in the chain wins.
func ErrorCode(err error) ErrorKind {
	if err == nil {
		return ErrorKind{}
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return UnknownErrorKind
}
