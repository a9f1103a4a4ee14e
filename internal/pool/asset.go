package pool

import (
	"context"
	"fmt"

	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// AssetConfig describes one market. A zero Underlying lists the native
	// token. Percentages are plain numbers (75 means 75%).
	AssetConfig struct {
		Symbol            string
		Name              string
		Underlying        common.Address
		Comptroller       common.Address
		InterestRateModel common.Address
		Implementation    common.Address
		ReserveFactor     float64
		AdminFee          float64
		CollateralFactor  float64
	}

	DeployedAsset struct {
		Symbol            string
		Underlying        common.Address
		Market            common.Address
		Implementation    common.Address
		InterestRateModel common.Address
		Receipt           *types.Receipt
	}
)

func (a AssetConfig) Native() bool {
	return a.Underlying == (common.Address{})
}

// AssetsFor builds market configs from the chain's asset templates. Fixture
// assets resolve their underlying from deployed, keyed by fixture symbol.
func AssetsFor(chain chains.ChainConfig, comptroller, irm common.Address, deployed map[string]common.Address) ([]AssetConfig, error) {
	assets := make([]AssetConfig, 0, len(chain.Assets))
	for _, a := range chain.Assets {
		cfg := AssetConfig{
			Symbol:            a.Symbol,
			Name:              a.Name,
			Comptroller:       comptroller,
			InterestRateModel: irm,
			ReserveFactor:     a.ReserveFactor,
			AdminFee:          a.AdminFee,
			CollateralFactor:  a.CollateralFactor,
		}
		if cfg.Name == "" {
			cfg.Name = a.Symbol
		}

		switch {
		case a.Underlying != "":
			cfg.Underlying = common.HexToAddress(a.Underlying)
			cfg.Implementation = deployed[string(contracts.CErc20Delegate)]
		case a.Fixture != "":
			addr, ok := deployed[a.Fixture]
			if !ok {
				return nil, evm.Precondition("asset %s: fixture %s is not deployed", a.Symbol, a.Fixture)
			}
			cfg.Underlying = addr
			cfg.Implementation = deployed[string(contracts.CErc20Delegate)]
		default:
			cfg.Implementation = deployed[string(contracts.CEtherDelegate)]
		}

		assets = append(assets, cfg)
	}

	return assets, nil
}

// DeployAsset lists a market in the pool. The _deployMarket call is simulated
// first and nothing is sent unless it returns zero.
func (p *Pool) DeployAsset(ctx context.Context, asset AssetConfig) (DeployedAsset, error) {
	if p.state != StateReady {
		return DeployedAsset{}, evm.Precondition("pool %q is %s, admin must be accepted before listing %s", p.Name, p.state, asset.Symbol)
	}
	if asset.Comptroller == (common.Address{}) {
		asset.Comptroller = p.Comptroller
	}
	if asset.Comptroller != p.Comptroller {
		return DeployedAsset{}, evm.Precondition("asset %s targets comptroller %s, not pool %q", asset.Symbol, asset.Comptroller.Hex(), p.Name)
	}
	if asset.InterestRateModel == (common.Address{}) {
		asset.InterestRateModel = p.sdk.contracts.InterestRateModel
	}
	if asset.Implementation == (common.Address{}) {
		asset.Implementation = p.sdk.contracts.CErc20Delegate
		if asset.Native() {
			asset.Implementation = p.sdk.contracts.CEtherDelegate
		}
	}
	if asset.CollateralFactor < 0 || asset.CollateralFactor > 100 {
		return DeployedAsset{}, evm.Precondition("asset %s: collateral factor %v is outside 0..100", asset.Symbol, asset.CollateralFactor)
	}

	data, err := p.constructorData(asset)
	if err != nil {
		return DeployedAsset{}, err
	}

	before, err := p.Markets(ctx)
	if err != nil {
		return DeployedAsset{}, err
	}

	receipt, err := p.sdk.client.TransactChecked(ctx, p.Comptroller, contracts.FuncDeployMarket,
		asset.Native(), data, PercentMantissa(asset.CollateralFactor))
	if err != nil {
		return DeployedAsset{Symbol: asset.Symbol, Receipt: receipt}, fmt.Errorf("failed to deploy %s market in pool %q: %w", asset.Symbol, p.Name, err)
	}

	after, err := p.Markets(ctx)
	if err != nil {
		return DeployedAsset{}, err
	}
	market, err := added(before, after)
	if err != nil {
		return DeployedAsset{}, fmt.Errorf("%s market in pool %q: %w", asset.Symbol, p.Name, err)
	}

	p.sdk.logger.
		With("pool", p.Name).
		With("symbol", asset.Symbol).
		With("market", market.Hex()).
		Info("market deployed")

	return DeployedAsset{
		Symbol:            asset.Symbol,
		Underlying:        asset.Underlying,
		Market:            market,
		Implementation:    asset.Implementation,
		InterestRateModel: asset.InterestRateModel,
		Receipt:           receipt,
	}, nil
}

// DeployAssets lists each asset in order and stops at the first failure.
func (p *Pool) DeployAssets(ctx context.Context, assets []AssetConfig) ([]DeployedAsset, error) {
	deployed := make([]DeployedAsset, 0, len(assets))
	for _, a := range assets {
		d, err := p.DeployAsset(ctx, a)
		if err != nil {
			return deployed, err
		}
		deployed = append(deployed, d)
	}
	return deployed, nil
}

func (p *Pool) constructorData(a AssetConfig) ([]byte, error) {
	var (
		fuseAdmin      = p.sdk.contracts.FeeDistributor
		reserveFactor  = PercentMantissa(a.ReserveFactor)
		adminFee       = PercentMantissa(a.AdminFee)
		implementation = []byte{}
		data           []byte
		err            error
	)

	if a.Native() {
		data, err = contracts.CEtherConstructorData.Args.Pack(
			a.Comptroller, fuseAdmin, a.InterestRateModel, a.Name, a.Symbol,
			a.Implementation, implementation, reserveFactor, adminFee,
		)
	} else {
		data, err = contracts.CErc20ConstructorData.Args.Pack(
			a.Underlying, a.Comptroller, fuseAdmin, a.InterestRateModel, a.Name, a.Symbol,
			a.Implementation, implementation, reserveFactor, adminFee,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s market constructor: %w", a.Symbol, err)
	}

	return data, nil
}

func added(before, after []common.Address) (common.Address, error) {
	seen := make(map[common.Address]struct{}, len(before))
	for _, m := range before {
		seen[m] = struct{}{}
	}

	var found []common.Address
	for _, m := range after {
		if _, ok := seen[m]; !ok {
			found = append(found, m)
		}
	}
	if len(found) != 1 {
		return common.Address{}, fmt.Errorf("expected one new market, found %d", len(found))
	}

	return found[0], nil
}
