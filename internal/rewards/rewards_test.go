package rewards

import (
	"context"
	"math/big"
	"testing"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/compose-network/fuse-deployer/internal/fusetest"
	"github.com/compose-network/fuse-deployer/internal/pool"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const day = 24 * 60 * 60

var perSecond = big.NewInt(1_000_000_000_000) // 0.000001 of an 18 decimal token

type fixture struct {
	chain    *evmtest.Chain
	client   *evm.Client
	writer   *Writer
	deployed map[string]common.Address
	pools    []*pool.Pool
	assets   [][]pool.DeployedAsset
	markets  [][]common.Address
}

func newFixture(t *testing.T, pools int) fixture {
	t.Helper()
	ctx := context.Background()

	anvil, ok := chains.MustLoad().Lookup(chains.Anvil)
	require.True(t, ok)

	cfg := configs.MustDefaultConfig()
	settings, err := deploy.SettingsFromConfig(cfg)
	require.NoError(t, err)
	key, err := cfg.PrivateKey(configs.AccountDeployer)
	require.NoError(t, err)

	chain := evmtest.NewChain(chains.Anvil)
	protocol := fusetest.New(chain)
	client, err := evm.NewClient(ctx, chain, key)
	require.NoError(t, err)

	plan, err := deploy.FusePlan(anvil, settings)
	require.NoError(t, err)
	deployments, err := deploy.NewOrchestrator(client, protocol.Artifacts, store.NewJSONStore(t.TempDir())).Execute(ctx, plan)
	require.NoError(t, err)
	deployed := deployments.Addresses()

	c, err := pool.ContractsFrom(deployed)
	require.NoError(t, err)
	sdk := pool.New(client, c, protocol.Artifacts)

	f := fixture{
		chain:    chain,
		client:   client,
		writer:   NewWriter(client, protocol.Artifacts),
		deployed: deployed,
	}

	for i := 0; i < pools; i++ {
		p, err := sdk.DeployPool(ctx, pool.CreateParams{Name: "TEST", CloseFactor: 50, LiquidationIncentive: 8})
		require.NoError(t, err)

		assets, err := pool.AssetsFor(anvil, p.Comptroller, c.InterestRateModel, deployed)
		require.NoError(t, err)
		listed, err := p.DeployAssets(ctx, assets[:2])
		require.NoError(t, err)

		f.pools = append(f.pools, p)
		f.assets = append(f.assets, listed)
		f.markets = append(f.markets, []common.Address{listed[0].Market, listed[1].Market})
	}

	return f
}

func (f fixture) comptrollers() []common.Address {
	out := make([]common.Address, len(f.pools))
	for i, p := range f.pools {
		out[i] = p.Comptroller
	}
	return out
}

func TestSetupConfiguresFlywheel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1)
	tribe := f.deployed["TRIBE"]
	funding := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

	fw, err := f.writer.Setup(ctx, SetupParams{
		Comptroller: f.pools[0].Comptroller,
		RewardToken: tribe,
		Markets:     f.markets[0],
		Funding:     funding,
		Info:        Info{RewardsPerSecond: perSecond},
	})
	require.NoError(t, err)

	distributors, err := evm.CallOne[[]common.Address](ctx, f.client, f.pools[0].Comptroller, contracts.FuncGetRewardsDistributors)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{fw.Core}, distributors)

	bound, err := evm.CallOne[common.Address](ctx, f.client, fw.Core, contracts.FuncFlywheelRewards)
	require.NoError(t, err)
	assert.Equal(t, fw.Rewards, bound)

	strategies, err := evm.CallOne[[]common.Address](ctx, f.client, fw.Core, contracts.FuncGetAllStrategies)
	require.NoError(t, err)
	assert.Equal(t, f.markets[0], strategies)

	balance, err := evm.CallOne[*big.Int](ctx, f.client, tribe, contracts.FuncBalanceOf, fw.Rewards)
	require.NoError(t, err)
	assert.Equal(t, funding, balance)

	t.Run("registering the same flywheel again sends nothing", func(t *testing.T) {
		sent := len(f.chain.Sent())

		err := f.writer.AddFlywheelToComptroller(ctx, f.pools[0].Comptroller, fw.Core)
		require.Error(t, err)
		assert.True(t, evm.IsSimulationError(err))
		assert.Len(t, f.chain.Sent(), sent)
	})

	t.Run("market rewards are listed per market", func(t *testing.T) {
		reader := NewReader(f.client)
		byMarket, err := reader.MarketRewardsByPools(ctx, f.comptrollers())
		require.NoError(t, err)
		require.Len(t, byMarket, 2)

		for _, market := range f.markets[0] {
			require.Len(t, byMarket[market], 1)
			reward := byMarket[market][0]
			assert.Equal(t, fw.Core, reward.Flywheel)
			assert.Equal(t, fw.Rewards, reward.Rewards)
			assert.Equal(t, tribe, reward.RewardToken)
			assert.Equal(t, perSecond, reward.Info.RewardsPerSecond)
			assert.Zero(t, reward.Info.RewardsEndTimestamp)
		}
	})
}

func TestSetupPreconditions(t *testing.T) {
	f := newFixture(t, 1)
	sent := len(f.chain.Sent())

	tests := []struct {
		name   string
		params SetupParams
	}{
		{"no reward token", SetupParams{Markets: f.markets[0], Info: Info{RewardsPerSecond: perSecond}}},
		{"no markets", SetupParams{RewardToken: f.deployed["TRIBE"], Info: Info{RewardsPerSecond: perSecond}}},
		{"no rate", SetupParams{RewardToken: f.deployed["TRIBE"], Markets: f.markets[0]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.writer.Setup(context.Background(), tt.params)
			assert.True(t, evm.IsPreconditionError(err))
		})
	}
	assert.Len(t, f.chain.Sent(), sent)
}

func TestFundFailsWithoutBalance(t *testing.T) {
	f := newFixture(t, 1)

	tooMuch := new(big.Int).Mul(big.NewInt(1e18), big.NewInt(1e18))
	err := f.writer.Fund(context.Background(), f.deployed["TRIBE"], common.HexToAddress("0x01"), tooMuch)
	require.Error(t, err)
	assert.True(t, evm.IsTransactionError(err))
}

func TestClaimableRewardsAcrossPools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	_, err := f.writer.Setup(ctx, SetupParams{
		Comptroller: f.pools[0].Comptroller,
		RewardToken: f.deployed["TRIBE"],
		Markets:     f.markets[0],
		Funding:     big.NewInt(1e18),
		Info:        Info{RewardsPerSecond: perSecond},
	})
	require.NoError(t, err)

	require.NoError(t, f.chain.IncreaseTime(ctx, day))
	require.NoError(t, f.chain.Mine(ctx))

	reader := NewReader(f.client, WithRateLimit(rate.Limit(1000), 10), WithConcurrency(2))
	claims, err := reader.ClaimableRewards(ctx, f.client.From(), f.comptrollers())
	require.NoError(t, err)

	for _, market := range f.markets[1] {
		assert.Empty(t, claims[market], "unconfigured pool accrues nothing")
	}

	lower := new(big.Int).Mul(perSecond, big.NewInt(day))
	upper := new(big.Int).Mul(perSecond, big.NewInt(day+60))
	for _, market := range f.markets[0] {
		require.Len(t, claims[market], 1)
		amount := claims[market][0].Amount
		assert.True(t, amount.Cmp(lower) >= 0, "amount %s below one day of rewards", amount)
		assert.True(t, amount.Cmp(upper) < 0, "amount %s above one day of rewards", amount)
	}

	totals := TotalByToken(claims)
	require.Len(t, totals, 1)
	assert.True(t, totals[f.deployed["TRIBE"]].Cmp(new(big.Int).Mul(lower, big.NewInt(2))) >= 0)

	sent := len(f.chain.Sent())
	again, err := reader.ClaimableRewards(ctx, f.client.From(), f.comptrollers())
	require.NoError(t, err)
	assert.Equal(t, claims, again, "reads do not change accrual state")
	assert.Len(t, f.chain.Sent(), sent)
}

func TestPoolsOfListsSuppliedPools(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	directory := f.deployed[string(contracts.FusePoolDirectory)]
	reader := NewReader(f.client, WithConcurrency(2))

	pools, err := reader.PoolsOf(ctx, directory, f.client.From())
	require.NoError(t, err)
	assert.Empty(t, pools, "no supply yet")

	for _, i := range []int{2, 0} {
		require.NoError(t, f.pools[i].Supply(ctx, f.assets[i][0], big.NewInt(1e17)))
	}

	pools, err = reader.PoolsOf(ctx, directory, f.client.From())
	require.NoError(t, err)
	assert.Equal(t, []common.Address{f.pools[0].Comptroller, f.pools[2].Comptroller}, pools)

	other, err := reader.PoolsOf(ctx, directory, common.HexToAddress("0x1234"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestClaimableRewardsCancelled(t *testing.T) {
	f := newFixture(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader(f.client, WithRateLimit(rate.Limit(1), 1)).ClaimableRewards(ctx, f.client.From(), f.comptrollers())
	require.Error(t, err)
}
