package state

import (
	"fmt"

	fpmath "LendLedger/internal/math"
)

const bpsOne = 10_000

// ReserveConfig holds the per-reserve parameters. Fields without a unit are
// basis points.
type ReserveConfig struct {
	// Utilization breakpoints of the three-regime borrow curve.
	UtilizationRate1 uint16 `json:"utilization_rate_1" yaml:"utilization_rate_1"`
	UtilizationRate2 uint16 `json:"utilization_rate_2" yaml:"utilization_rate_2"`

	// Borrow APR at 0%, UtilizationRate1, UtilizationRate2 and 100%.
	BorrowRate0 uint16 `json:"borrow_rate_0" yaml:"borrow_rate_0"`
	BorrowRate1 uint16 `json:"borrow_rate_1" yaml:"borrow_rate_1"`
	BorrowRate2 uint16 `json:"borrow_rate_2" yaml:"borrow_rate_2"`
	BorrowRate3 uint16 `json:"borrow_rate_3" yaml:"borrow_rate_3"`

	MinCollateralRatio  uint16 `json:"min_collateral_ratio" yaml:"min_collateral_ratio"`
	LiquidationPremium  uint16 `json:"liquidation_premium" yaml:"liquidation_premium"`
	LiquidationSlippage uint16 `json:"liquidation_slippage" yaml:"liquidation_slippage"`

	// Raw token cap per liquidation call; 0 means unlimited.
	LiquidationDexTradeMax uint64 `json:"liquidation_dex_trade_max" yaml:"liquidation_dex_trade_max"`

	// Share of accrued interest kept as protocol fees.
	ManageFeeRate uint16 `json:"manage_fee_rate" yaml:"manage_fee_rate"`
	// Raw token amount of uncollected fees before a sweep is worthwhile.
	ManageFeeCollectionThreshold uint64 `json:"manage_fee_collection_threshold" yaml:"manage_fee_collection_threshold"`

	LoanOriginationFee uint16 `json:"loan_origination_fee" yaml:"loan_origination_fee"`
}

// DefaultReserveConfig is a conservative stable-asset configuration.
func DefaultReserveConfig() ReserveConfig {
	return ReserveConfig{
		UtilizationRate1:             8500,
		UtilizationRate2:             9500,
		BorrowRate0:                  50,
		BorrowRate1:                  392,
		BorrowRate2:                  3365,
		BorrowRate3:                  10116,
		MinCollateralRatio:           12500,
		LiquidationPremium:           100,
		LiquidationSlippage:          300,
		LiquidationDexTradeMax:       100,
		ManageFeeRate:                50,
		ManageFeeCollectionThreshold: 10,
		LoanOriginationFee:           10,
	}
}

// ValidateReserveConfig checks ranges and the orderings the rate curve and
// the liquidation planner depend on.
func ValidateReserveConfig(cfg *ReserveConfig) error {
	if cfg.UtilizationRate1 == 0 || cfg.UtilizationRate1 >= cfg.UtilizationRate2 || cfg.UtilizationRate2 >= bpsOne {
		return fmt.Errorf("utilization breakpoints must satisfy 0 < %d < %d < %d: %w",
			cfg.UtilizationRate1, cfg.UtilizationRate2, bpsOne, ErrInvalidParameter)
	}
	if cfg.BorrowRate0 > cfg.BorrowRate1 || cfg.BorrowRate1 > cfg.BorrowRate2 || cfg.BorrowRate2 > cfg.BorrowRate3 {
		return fmt.Errorf("borrow rates must be non-decreasing, got %d/%d/%d/%d: %w",
			cfg.BorrowRate0, cfg.BorrowRate1, cfg.BorrowRate2, cfg.BorrowRate3, ErrInvalidParameter)
	}
	if cfg.MinCollateralRatio <= bpsOne {
		return fmt.Errorf("min_collateral_ratio must be > %d, got %d: %w",
			bpsOne, cfg.MinCollateralRatio, ErrInvalidParameter)
	}
	if cfg.LiquidationSlippage >= bpsOne {
		return fmt.Errorf("liquidation_slippage must be < %d, got %d: %w",
			bpsOne, cfg.LiquidationSlippage, ErrInvalidParameter)
	}
	if uint32(cfg.LiquidationPremium)+uint32(cfg.LiquidationSlippage) >= uint32(cfg.MinCollateralRatio)-bpsOne {
		return fmt.Errorf("premium (%d) + slippage (%d) must be < min_collateral_ratio (%d) - %d: %w",
			cfg.LiquidationPremium, cfg.LiquidationSlippage, cfg.MinCollateralRatio, bpsOne, ErrInvalidLiquidationConfig)
	}
	if cfg.ManageFeeRate > bpsOne {
		return fmt.Errorf("manage_fee_rate must be <= %d, got %d: %w", bpsOne, cfg.ManageFeeRate, ErrInvalidParameter)
	}
	if cfg.LoanOriginationFee > bpsOne {
		return fmt.Errorf("loan_origination_fee must be <= %d, got %d: %w", bpsOne, cfg.LoanOriginationFee, ErrInvalidParameter)
	}
	return nil
}

// BorrowRate returns the annual borrow rate at the given utilization by
// linear interpolation within the regime utilization falls in.
func (cfg *ReserveConfig) BorrowRate(utilization fpmath.Number) (fpmath.Number, error) {
	u1 := fpmath.FromBps(uint64(cfg.UtilizationRate1))
	u2 := fpmath.FromBps(uint64(cfg.UtilizationRate2))
	r0 := fpmath.FromBps(uint64(cfg.BorrowRate0))
	r1 := fpmath.FromBps(uint64(cfg.BorrowRate1))
	r2 := fpmath.FromBps(uint64(cfg.BorrowRate2))
	r3 := fpmath.FromBps(uint64(cfg.BorrowRate3))

	switch {
	case utilization.Lte(u1):
		return fpmath.InterpolateLinear(utilization, fpmath.Zero(), u1, r0, r1)
	case utilization.Lte(u2):
		return fpmath.InterpolateLinear(utilization, u1, u2, r1, r2)
	case utilization.Lt(fpmath.One()):
		return fpmath.InterpolateLinear(utilization, u2, fpmath.One(), r2, r3)
	default:
		return r3, nil
	}
}
