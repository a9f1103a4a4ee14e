package deploy

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// Settings are the deployment-wide values that do not come from the chain table.
type Settings struct {
	Deployer           common.Address
	EnforceWhitelist   bool
	Whitelist          []common.Address
	InterestFeeRate    *big.Int
	MinBorrowEth       *big.Int
	MaxSupplyEth       *big.Int
	MaxUtilizationRate *big.Int
}

// SettingsFromConfig resolves account names to addresses and decimal amounts
// to 1e18 mantissas.
func SettingsFromConfig(cfg configs.Config) (Settings, error) {
	deployerKey, err := cfg.PrivateKey(configs.AccountDeployer)
	if err != nil {
		return Settings{}, err
	}
	deployer, err := evm.AddressFromPrivateKey(deployerKey)
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Deployer:         deployer,
		EnforceWhitelist: cfg.Deploy.EnforceDeployerList,
	}

	for _, name := range cfg.Deploy.DeployerWhitelist {
		key, err := cfg.PrivateKey(name)
		if err != nil {
			return Settings{}, err
		}
		addr, err := evm.AddressFromPrivateKey(key)
		if err != nil {
			return Settings{}, fmt.Errorf("account %s: %w", name, err)
		}
		s.Whitelist = append(s.Whitelist, addr)
	}

	limits := cfg.Deploy.PoolLimits
	for _, v := range []struct {
		field string
		value string
		dst   **big.Int
	}{
		{"deploy.default-interest-fee-rate", cfg.Deploy.DefaultInterestFeeRate, &s.InterestFeeRate},
		{"deploy.pool-limits.min-borrow-eth", limits.MinBorrowEth, &s.MinBorrowEth},
		{"deploy.pool-limits.max-supply-eth", limits.MaxSupplyEth, &s.MaxSupplyEth},
		{"deploy.pool-limits.max-utilization-rate", limits.MaxUtilizationRate, &s.MaxUtilizationRate},
	} {
		mantissa, err := Mantissa(v.value)
		if err != nil {
			return Settings{}, fmt.Errorf("%s: %w", v.field, err)
		}
		*v.dst = mantissa
	}

	return s, nil
}

// Mantissa scales a decimal amount by 1e18. "max" is MaxUint256.
func Mantissa(value string) (*big.Int, error) {
	if strings.EqualFold(strings.TrimSpace(value), "max") {
		return new(big.Int).Set(math.MaxBig256), nil
	}

	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}

	scaled := d.Shift(18)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than 18 decimals", value)
	}

	mantissa := scaled.BigInt()
	if mantissa.Cmp(math.MaxBig256) > 0 {
		return nil, fmt.Errorf("amount %q overflows uint256", value)
	}
	return mantissa, nil
}
