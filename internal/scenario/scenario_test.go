package scenario

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
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSnapshots struct {
	taken    int
	reverted []string
}

func (s *recordingSnapshots) Snapshot(context.Context) (string, error) {
	s.taken++
	return big.NewInt(int64(s.taken)).String(), nil
}

func (s *recordingSnapshots) Revert(_ context.Context, id string) error {
	s.reverted = append(s.reverted, id)
	return nil
}

func newEnv(t *testing.T) (Env, *evmtest.Chain) {
	t.Helper()

	anvil, ok := chains.MustLoad().Lookup(chains.Anvil)
	require.True(t, ok)

	cfg := configs.MustDefaultConfig()
	settings, err := deploy.SettingsFromConfig(cfg)
	require.NoError(t, err)
	key, err := cfg.PrivateKey(configs.AccountDeployer)
	require.NoError(t, err)

	chain := evmtest.NewChain(chains.Anvil)
	protocol := fusetest.New(chain)
	client, err := evm.NewClient(context.Background(), chain, key)
	require.NoError(t, err)

	return Env{
		Chain:     anvil,
		Client:    client,
		Artifacts: protocol.Artifacts,
		Store:     store.NewJSONStore(t.TempDir()),
		Settings:  settings,
		Clock:     chain,
	}, chain
}

func TestSetupSeedsPrices(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)

	f, err := Setup(ctx, env)
	require.NoError(t, err)

	master := f.Addresses[string(contracts.MasterPriceOracle)]
	price, err := evm.CallOne[*big.Int](ctx, env.Client, master, contracts.FuncPrice, f.Addresses["TRIBE"])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5e17), price)

	admin, err := evm.CallOne[common.Address](ctx, env.Client, master, contracts.FuncAdmin)
	require.NoError(t, err)
	assert.Equal(t, env.Client.From(), admin)

	assert.ErrorIs(t, f.Reset(ctx), ErrNoSnapshots)
}

func TestSetupRequiresClock(t *testing.T) {
	env, _ := newEnv(t)
	env.Clock = nil

	_, err := Setup(context.Background(), env)
	assert.True(t, evm.IsPreconditionError(err))
}

func TestPoolWithMarkets(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)

	f, err := Setup(ctx, env)
	require.NoError(t, err)

	result, err := f.PoolWithMarkets(ctx, "TEST")
	require.NoError(t, err)

	require.Len(t, result.Assets, 2)
	assert.Equal(t, common.Address{}, result.Summary.Underlyings[0])
	assert.Equal(t, f.Addresses["TOUCH"], result.Summary.Underlyings[1])
	assert.Equal(t, []string{"ETH", "TOUCH"}, result.Summary.Symbols)

	markets, err := result.Pool.Markets(ctx)
	require.NoError(t, err)
	assert.Len(t, markets, 2)

	closeFactor, err := evm.CallOne[*big.Int](ctx, env.Client, result.Pool.Comptroller, contracts.FuncCloseFactor)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5e17), closeFactor)
	incentive, err := evm.CallOne[*big.Int](ctx, env.Client, result.Pool.Comptroller, contracts.FuncLiquidationIncentive)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(108e16), incentive)
}

func TestRewardsAcrossPools(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)

	f, err := Setup(ctx, env)
	require.NoError(t, err)

	perSecond := big.NewInt(1_000_000_000_000)
	result, err := f.RewardsAcrossPools(ctx, RewardsOptions{RewardsPerSecond: perSecond, Days: 1})
	require.NoError(t, err)

	assert.Zero(t, result.UnconfiguredTotal.Sign())
	assert.Equal(t, f.Addresses["TRIBE"], result.RewardToken)
	assert.Equal(t, uint64(secondsPerDay), result.Elapsed)

	floor := new(big.Int).Mul(perSecond, big.NewInt(2*secondsPerDay))
	ceiling := new(big.Int).Mul(perSecond, big.NewInt(2*(secondsPerDay+120)))
	assert.True(t, result.ConfiguredTotal.Cmp(floor) >= 0, "total %s", result.ConfiguredTotal)
	assert.True(t, result.ConfiguredTotal.Cmp(ceiling) < 0, "total %s", result.ConfiguredTotal)
}

func TestRunByName(t *testing.T) {
	ctx := context.Background()
	env, _ := newEnv(t)
	snapshots := &recordingSnapshots{}
	env.Snapshots = snapshots

	f, err := Setup(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots.taken)

	out, err := f.Run(ctx, PoolWithMarketsName)
	require.NoError(t, err)
	assert.IsType(t, PoolWithMarketsResult{}, out)

	_, err = f.Run(ctx, "liquidations")
	assert.True(t, evm.IsPreconditionError(err))

	require.NoError(t, f.Reset(ctx))
	assert.Equal(t, []string{"1"}, snapshots.reverted)
	assert.Equal(t, 2, snapshots.taken)
}
