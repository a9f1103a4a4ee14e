package pool

import (
	"fmt"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// CreateParams describe a new pool. CloseFactor is a percentage (50 means
// half a borrow may be repaid per liquidation), LiquidationIncentive is the
// bonus percentage on top of 100 (8 means 108%).
type CreateParams struct {
	Name                 string
	EnforceWhitelist     bool
	Whitelist            []common.Address
	CloseFactor          float64
	LiquidationIncentive float64
	PriceOracle          common.Address
}

// Validate runs the checks that need no chain access.
func (p CreateParams) Validate() error {
	if p.Name == "" {
		return evm.Precondition("pool name is required")
	}
	if p.EnforceWhitelist && len(p.Whitelist) == 0 {
		return evm.Precondition("pool %q enforces a whitelist but the whitelist is empty", p.Name)
	}
	if p.CloseFactor <= 0 || p.CloseFactor > 100 {
		return evm.Precondition("close factor %v is outside (0, 100]", p.CloseFactor)
	}
	if p.LiquidationIncentive < 0 || p.LiquidationIncentive > 100 {
		return evm.Precondition("liquidation incentive %v is outside [0, 100]", p.LiquidationIncentive)
	}
	return nil
}

// PercentMantissa scales a percentage to a 1e18 mantissa: 50 becomes 0.5e18.
func PercentMantissa(percent float64) *big.Int {
	return decimal.NewFromFloat(percent).Shift(16).BigInt()
}

// IncentiveMantissa scales a liquidation bonus percentage to the protocol's
// 1e18 mantissa including the repaid principal: 8 becomes 1.08e18.
func IncentiveMantissa(bonusPercent float64) *big.Int {
	return decimal.NewFromFloat(bonusPercent).Add(decimal.NewFromInt(100)).Shift(16).BigInt()
}

func (p CreateParams) mantissas() (closeFactor, incentive *big.Int) {
	return PercentMantissa(p.CloseFactor), IncentiveMantissa(p.LiquidationIncentive)
}

func (p CreateParams) String() string {
	return fmt.Sprintf("%s (close factor %v%%, liquidation incentive %v%%)", p.Name, p.CloseFactor, 100+p.LiquidationIncentive)
}
