package scenario

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/pool"
	"github.com/compose-network/fuse-deployer/internal/rewards"
	"github.com/ethereum/go-ethereum/common"
)

const (
	PoolWithMarketsName    = "pool-with-markets"
	RewardsAcrossPoolsName = "rewards-across-pools"

	secondsPerDay = 24 * 60 * 60
)

// Names lists the scenarios Run accepts.
var Names = []string{PoolWithMarketsName, RewardsAcrossPoolsName}

var supplyAmount = big.NewInt(1e18)

type (
	PoolWithMarketsResult struct {
		Pool    *pool.Pool
		Assets  []pool.DeployedAsset
		Summary pool.Summary
	}

	RewardsOptions struct {
		// RewardsPerSecond defaults to 1e12, 0.000001 of an 18 decimal token.
		RewardsPerSecond *big.Int
		Days             uint64
		// RewardToken is a fixture symbol. Defaults to the last fixture.
		RewardToken string
	}

	RewardsResult struct {
		Configured        PoolWithMarketsResult
		Unconfigured      PoolWithMarketsResult
		Flywheel          rewards.Flywheel
		RewardToken       common.Address
		Elapsed           uint64
		ConfiguredTotal   *big.Int
		UnconfiguredTotal *big.Int
	}
)

// Run executes a named scenario with default options.
func (f *Fixture) Run(ctx context.Context, name string) (any, error) {
	switch name {
	case PoolWithMarketsName:
		return f.PoolWithMarkets(ctx, "TEST")
	case RewardsAcrossPoolsName:
		return f.RewardsAcrossPools(ctx, RewardsOptions{})
	default:
		return nil, evm.Precondition("unknown scenario %q, expected one of %v", name, Names)
	}
}

// PoolWithMarkets creates a pool with close factor 50% and liquidation
// incentive 108%, then lists the native token and the first ERC20 asset.
func (f *Fixture) PoolWithMarkets(ctx context.Context, name string) (PoolWithMarketsResult, error) {
	p, err := f.Pools.DeployPool(ctx, pool.CreateParams{
		Name:                 name,
		CloseFactor:          50,
		LiquidationIncentive: 8,
	})
	if err != nil {
		return PoolWithMarketsResult{}, err
	}

	assets, err := pool.AssetsFor(f.env.Chain, p.Comptroller, f.Pools.Contracts().InterestRateModel, f.Addresses)
	if err != nil {
		return PoolWithMarketsResult{}, err
	}
	selected, err := nativeAndERC20(assets)
	if err != nil {
		return PoolWithMarketsResult{}, err
	}

	deployed, err := p.DeployAssets(ctx, selected)
	if err != nil {
		return PoolWithMarketsResult{}, err
	}

	summary, err := p.Summary(ctx)
	if err != nil {
		return PoolWithMarketsResult{}, err
	}

	result := PoolWithMarketsResult{Pool: p, Assets: deployed, Summary: summary}
	if err := f.checkPoolWithMarkets(result); err != nil {
		return result, err
	}

	return result, nil
}

func (f *Fixture) checkPoolWithMarkets(r PoolWithMarketsResult) error {
	if n := len(r.Summary.Underlyings); n != 2 {
		return fmt.Errorf("%w: pool %q lists %d markets, expected 2", ErrUnexpected, r.Pool.Name, n)
	}
	if r.Summary.Underlyings[0] != (common.Address{}) {
		return fmt.Errorf("%w: native market underlying is %s", ErrUnexpected, r.Summary.Underlyings[0].Hex())
	}
	if got, want := r.Summary.Symbols[0], f.env.Chain.NativeToken.Symbol; got != want {
		return fmt.Errorf("%w: native market symbol is %q, expected %q", ErrUnexpected, got, want)
	}
	return nil
}

// RewardsAcrossPools creates two pools, streams rewards on the markets of the
// first only and advances time. The second pool must accrue nothing.
func (f *Fixture) RewardsAcrossPools(ctx context.Context, opts RewardsOptions) (RewardsResult, error) {
	if opts.RewardsPerSecond == nil {
		opts.RewardsPerSecond = big.NewInt(1_000_000_000_000)
	}
	if opts.Days == 0 {
		opts.Days = 1
	}
	if opts.RewardToken == "" {
		if len(f.env.Chain.Fixtures) == 0 {
			return RewardsResult{}, evm.Precondition("chain %s has no fixture token to pay rewards in", f.env.Chain.Name)
		}
		opts.RewardToken = f.env.Chain.Fixtures[len(f.env.Chain.Fixtures)-1].Symbol
	}
	token, ok := f.Addresses[opts.RewardToken]
	if !ok {
		return RewardsResult{}, evm.Precondition("reward token %s is not deployed", opts.RewardToken)
	}

	configured, err := f.PoolWithMarkets(ctx, "TEST-REWARDED")
	if err != nil {
		return RewardsResult{}, err
	}
	unconfigured, err := f.PoolWithMarkets(ctx, "TEST-PLAIN")
	if err != nil {
		return RewardsResult{}, err
	}

	// Accrual is proportional to supplied balance, so the account supplies
	// to every market of both pools.
	for _, r := range []PoolWithMarketsResult{configured, unconfigured} {
		for _, asset := range r.Assets {
			if err := r.Pool.Supply(ctx, asset, supplyAmount); err != nil {
				return RewardsResult{}, err
			}
		}
	}

	elapsed := opts.Days * secondsPerDay
	markets := marketsOf(configured)
	funding := new(big.Int).Mul(opts.RewardsPerSecond, new(big.Int).SetUint64(elapsed*uint64(len(markets))*2))

	fw, err := f.Writer.Setup(ctx, rewards.SetupParams{
		Comptroller: configured.Pool.Comptroller,
		RewardToken: token,
		Markets:     markets,
		Funding:     funding,
		Info:        rewards.Info{RewardsPerSecond: opts.RewardsPerSecond},
	})
	if err != nil {
		return RewardsResult{}, err
	}

	if err := f.Advance(ctx, elapsed); err != nil {
		return RewardsResult{}, err
	}

	claims, err := f.Reader.ClaimableRewards(ctx, f.env.Client.From(),
		[]common.Address{configured.Pool.Comptroller, unconfigured.Pool.Comptroller})
	if err != nil {
		return RewardsResult{}, err
	}

	result := RewardsResult{
		Configured:        configured,
		Unconfigured:      unconfigured,
		Flywheel:          fw,
		RewardToken:       token,
		Elapsed:           elapsed,
		ConfiguredTotal:   sum(claims, markets),
		UnconfiguredTotal: sum(claims, marketsOf(unconfigured)),
	}

	if result.UnconfiguredTotal.Sign() != 0 {
		return result, fmt.Errorf("%w: unconfigured pool accrued %s", ErrUnexpected, result.UnconfiguredTotal)
	}
	floor := new(big.Int).Mul(opts.RewardsPerSecond, new(big.Int).SetUint64(elapsed*uint64(len(markets))))
	if result.ConfiguredTotal.Cmp(floor) < 0 {
		return result, fmt.Errorf("%w: configured pool accrued %s, expected at least %s", ErrUnexpected, result.ConfiguredTotal, floor)
	}

	f.logger.
		With("configured_total", result.ConfiguredTotal.String()).
		With("elapsed", elapsed).
		Info("rewards scenario finished")

	return result, nil
}

func nativeAndERC20(assets []pool.AssetConfig) ([]pool.AssetConfig, error) {
	var native, erc20 *pool.AssetConfig
	for i := range assets {
		switch {
		case assets[i].Native() && native == nil:
			native = &assets[i]
		case !assets[i].Native() && erc20 == nil:
			erc20 = &assets[i]
		}
	}
	if native == nil || erc20 == nil {
		return nil, evm.Precondition("chain needs one native and one ERC20 asset template")
	}
	return []pool.AssetConfig{*native, *erc20}, nil
}

func marketsOf(r PoolWithMarketsResult) []common.Address {
	out := make([]common.Address, len(r.Assets))
	for i, a := range r.Assets {
		out[i] = a.Market
	}
	return out
}

func sum(claims map[common.Address][]rewards.Claimable, markets []common.Address) *big.Int {
	total := new(big.Int)
	for _, m := range markets {
		for _, c := range claims[m] {
			total.Add(total, c.Amount)
		}
	}
	return total
}
