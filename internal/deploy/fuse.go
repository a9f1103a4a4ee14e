package deploy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/holiman/uint256"
)

// FusePlan is the fixed protocol deployment for one chain. Oracle wiring of
// MasterPriceOracle happens afterwards in the oracle package.
func FusePlan(chain chains.ChainConfig, settings Settings) (Plan, error) {
	if err := chain.RequireDeployable(nil); err != nil {
		return Plan{}, err
	}

	jrm, err := uints(chain.BlocksPerYear,
		chain.RateModels.JumpRate.BaseRatePerYear,
		chain.RateModels.JumpRate.MultiplierPerYear,
		chain.RateModels.JumpRate.JumpMultiplierPerYear,
		chain.RateModels.JumpRate.Kink,
	)
	if err != nil {
		return Plan{}, fmt.Errorf("jump rate model: %w", err)
	}

	steps := []Step{
		{Name: string(contracts.Comptroller), Contract: contracts.Comptroller},
		{
			Name:     string(contracts.FusePoolDirectory),
			Contract: contracts.FusePoolDirectory,
			Init: func(ctx context.Context, env Env) error {
				_, err := env.Client.Transact(ctx, env.Address, contracts.FuncDirectoryInitialize,
					settings.EnforceWhitelist, settings.Whitelist)
				return err
			},
		},
		{Name: string(contracts.FuseSafeLiquidator), Contract: contracts.FuseSafeLiquidator},
		{
			Name:     string(contracts.FuseFeeDistributor),
			Contract: contracts.FuseFeeDistributor,
			Init: func(ctx context.Context, env Env) error {
				if _, err := env.Client.Transact(ctx, env.Address, contracts.FuncFeeDistributorInitialize,
					settings.InterestFeeRate); err != nil {
					return err
				}
				_, err := env.Client.Transact(ctx, env.Address, contracts.FuncSetPoolLimits,
					settings.MinBorrowEth, settings.MaxSupplyEth, settings.MaxUtilizationRate)
				return err
			},
		},
		{
			Name:      string(contracts.FusePoolLens),
			Contract:  contracts.FusePoolLens,
			DependsOn: []string{string(contracts.FusePoolDirectory)},
			Init: func(ctx context.Context, env Env) error {
				directory, err := env.Deployments.Address(string(contracts.FusePoolDirectory))
				if err != nil {
					return err
				}
				_, err = env.Client.Transact(ctx, env.Address, contracts.FuncLensInitialize,
					directory, chain.NativeToken.Name, chain.NativeToken.Symbol)
				return err
			},
		},
		{
			Name:      string(contracts.FusePoolLensSecondary),
			Contract:  contracts.FusePoolLensSecondary,
			DependsOn: []string{string(contracts.FusePoolDirectory)},
			Init: func(ctx context.Context, env Env) error {
				directory, err := env.Deployments.Address(string(contracts.FusePoolDirectory))
				if err != nil {
					return err
				}
				_, err = env.Client.Transact(ctx, env.Address, contracts.FuncLensSecondaryInitialize, directory)
				return err
			},
		},
		{
			Name:     string(contracts.JumpRateModel),
			Contract: contracts.JumpRateModel,
			Args: func(Deployments) ([]byte, error) {
				return contracts.EncodeConstructor(contracts.CtorJumpRateModel, jrm[0], jrm[1], jrm[2], jrm[3], jrm[4])
			},
		},
	}

	if wp := chain.RateModels.WhitePaper; wp.BaseRatePerYear != "" {
		args, err := uints(chain.BlocksPerYear, wp.BaseRatePerYear, wp.MultiplierPerYear)
		if err != nil {
			return Plan{}, fmt.Errorf("white paper rate model: %w", err)
		}
		steps = append(steps, Step{
			Name:     string(contracts.WhitePaperInterestRate),
			Contract: contracts.WhitePaperInterestRate,
			Args: func(Deployments) ([]byte, error) {
				return contracts.EncodeConstructor(contracts.CtorWhitePaperInterestRateModel, args[0], args[1], args[2])
			},
		})
	}

	steps = append(steps,
		Step{Name: string(contracts.CErc20Delegate), Contract: contracts.CErc20Delegate},
		Step{Name: string(contracts.CEtherDelegate), Contract: contracts.CEtherDelegate},
	)

	if chain.SupportsOracle(chains.OracleSimple) {
		steps = append(steps, Step{Name: string(contracts.SimplePriceOracle), Contract: contracts.SimplePriceOracle})
	}
	if chain.SupportsOracle(chains.OracleChainlinkV2) {
		steps = append(steps, Step{
			Name:     string(contracts.ChainlinkPriceOracleV2),
			Contract: contracts.ChainlinkPriceOracleV2,
			Args: func(Deployments) ([]byte, error) {
				return contracts.EncodeConstructor(contracts.CtorChainlinkPriceOracleV2,
					settings.Deployer, true, chain.WrappedNative(), chain.NativeFeed())
			},
		})
	}
	steps = append(steps, Step{Name: string(contracts.MasterPriceOracle), Contract: contracts.MasterPriceOracle})

	if chain.Local {
		for _, fixture := range chain.Fixtures {
			supply, err := uints(fixture.Supply)
			if err != nil {
				return Plan{}, fmt.Errorf("fixture %s: %w", fixture.Symbol, err)
			}
			steps = append(steps, Step{
				Name:     fixture.Symbol,
				Contract: contracts.MockERC20,
				Args: func(Deployments) ([]byte, error) {
					return contracts.EncodeConstructor(contracts.CtorMockERC20, fixture.Name, fixture.Symbol, fixture.Decimals)
				},
				Init: func(ctx context.Context, env Env) error {
					_, err := env.Client.Transact(ctx, env.Address, contracts.FuncMint, settings.Deployer, supply[0])
					return err
				},
			})
		}
	}

	for i := range steps {
		steps[i].Deterministic = true
	}

	return Plan{Steps: steps}, nil
}

// uints parses decimal table constants, rejecting anything outside uint256.
func uints(values ...string) ([]*big.Int, error) {
	out := make([]*big.Int, len(values))
	for i, v := range values {
		if v == "" {
			return nil, evm.Precondition("constant %d is not set", i)
		}
		u, err := uint256.FromDecimal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid constant %q: %w", v, err)
		}
		out[i] = u.ToBig()
	}
	return out, nil
}
