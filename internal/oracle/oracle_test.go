package oracle

import (
	"bytes"
	"context"
	"log/slog"
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
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	chainCfg chains.ChainConfig
	chain    *evmtest.Chain
	client   *evm.Client
	deployed map[string]common.Address
}

func deployed(t *testing.T, chainID int64) fixture {
	t.Helper()
	ctx := context.Background()

	chainCfg, ok := chains.MustLoad().Lookup(chainID)
	require.True(t, ok)

	cfg := configs.MustDefaultConfig()
	settings, err := deploy.SettingsFromConfig(cfg)
	require.NoError(t, err)
	key, err := cfg.PrivateKey(configs.AccountDeployer)
	require.NoError(t, err)

	chain := evmtest.NewChain(chainID)
	protocol := fusetest.New(chain)
	client, err := evm.NewClient(ctx, chain, key)
	require.NoError(t, err)

	plan, err := deploy.FusePlan(chainCfg, settings)
	require.NoError(t, err)
	deployments, err := deploy.NewOrchestrator(client, protocol.Artifacts, store.NewJSONStore(t.TempDir())).Execute(ctx, plan)
	require.NoError(t, err)

	return fixture{chainCfg: chainCfg, chain: chain, client: client, deployed: deployments.Addresses()}
}

func TestConfigureChainlinkFeedsAndMaster(t *testing.T) {
	ctx := context.Background()
	f := deployed(t, chains.Chapel)

	addrs := AddressesFor(f.chainCfg, f.deployed)
	require.NotEqual(t, common.Address{}, addrs.Chainlink)
	assert.Equal(t, common.Address{}, addrs.Fallback, "chapel has no simple oracle")

	mappings := MappingsFor(f.chainCfg)
	require.Len(t, mappings, 4)

	configurator := NewConfigurator(f.client, addrs)
	result, err := configurator.Configure(ctx, mappings)
	require.NoError(t, err)
	assert.Equal(t, Result{FeedsSet: 4, Initialized: true}, result)

	for _, m := range mappings {
		feed, err := evm.CallOne[common.Address](ctx, f.client, addrs.Chainlink, contracts.FuncPriceFeeds, m.Underlying)
		require.NoError(t, err)
		assert.Equal(t, m.Feed, feed, m.Symbol)

		base, err := evm.CallOne[uint8](ctx, f.client, addrs.Chainlink, contracts.FuncFeedBaseCurrencies, m.Underlying)
		require.NoError(t, err)
		assert.Equal(t, uint8(contracts.ChainlinkBaseUSD), base)

		route, err := evm.CallOne[common.Address](ctx, f.client, addrs.Master, contracts.FuncMPOOracles, m.Underlying)
		require.NoError(t, err)
		assert.Equal(t, addrs.Chainlink, route, m.Symbol)
	}

	admin, err := evm.CallOne[common.Address](ctx, f.client, addrs.Master, contracts.FuncAdmin)
	require.NoError(t, err)
	assert.Equal(t, f.client.From(), admin)

	wtoken, err := evm.CallOne[common.Address](ctx, f.client, addrs.Master, contracts.FuncWrappedNativeToken)
	require.NoError(t, err)
	assert.Equal(t, f.chainCfg.WrappedNative(), wtoken)

	t.Run("second run changes nothing", func(t *testing.T) {
		sent := len(f.chain.Sent())

		result, err := configurator.Configure(ctx, mappings)
		require.NoError(t, err)
		assert.Equal(t, Result{}, result)
		assert.Len(t, f.chain.Sent(), sent)

		again, err := evm.CallOne[common.Address](ctx, f.client, addrs.Master, contracts.FuncAdmin)
		require.NoError(t, err)
		assert.Equal(t, admin, again)
	})
}

func TestConfigureWarnsWithoutFallback(t *testing.T) {
	ctx := context.Background()
	f := deployed(t, chains.Chapel)

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	logger.InitializeWith(&buf, slog.LevelInfo, "text")

	addrs := AddressesFor(f.chainCfg, f.deployed)
	_, err := NewConfigurator(f.client, addrs).Configure(ctx, MappingsFor(f.chainCfg))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "no fallback oracle")
	assert.Contains(t, buf.String(), "master price oracle initialized")
}

func TestConfigureWithFallbackDoesNotWarn(t *testing.T) {
	ctx := context.Background()
	f := deployed(t, chains.Anvil)

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	var buf bytes.Buffer
	logger.InitializeWith(&buf, slog.LevelInfo, "text")

	addrs := AddressesFor(f.chainCfg, f.deployed)
	require.NotEqual(t, common.Address{}, addrs.Fallback)
	_, err := NewConfigurator(f.client, addrs).Configure(ctx, MappingsFor(f.chainCfg))
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "no fallback oracle")
}

func TestConfigureRequiresChainlinkForFeeds(t *testing.T) {
	f := deployed(t, chains.Anvil)

	addrs := AddressesFor(f.chainCfg, f.deployed)
	_, err := NewConfigurator(f.client, addrs).Configure(context.Background(), []FeedMapping{{
		Symbol:     "X",
		Underlying: common.HexToAddress("0x01"),
		Feed:       common.HexToAddress("0x02"),
		Base:       chains.FeedCurrencyUSD,
	}})
	require.Error(t, err)
	assert.True(t, evm.IsPreconditionError(err))

	_, err = NewConfigurator(f.client, Addresses{}).Configure(context.Background(), nil)
	assert.True(t, evm.IsPreconditionError(err))
}

func TestSeedLocalPrices(t *testing.T) {
	ctx := context.Background()
	f := deployed(t, chains.Anvil)

	addrs := AddressesFor(f.chainCfg, f.deployed)
	require.NotEqual(t, common.Address{}, addrs.Fallback)

	result, err := NewConfigurator(f.client, addrs).Configure(ctx, MappingsFor(f.chainCfg))
	require.NoError(t, err)
	assert.True(t, result.Initialized)

	defaultOracle, err := evm.CallOne[common.Address](ctx, f.client, addrs.Master, contracts.FuncMPODefaultOracle)
	require.NoError(t, err)
	assert.Equal(t, addrs.Fallback, defaultOracle)

	prices, err := PricesFor(f.chainCfg, f.deployed)
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, "TOUCH", prices[0].Symbol)
	assert.Equal(t, "TRIBE", prices[1].Symbol)

	seeder := NewSeeder(f.client, addrs.Fallback, addrs.Master)
	require.NoError(t, seeder.Seed(ctx, prices))

	touchPrice, err := evm.CallOne[*big.Int](ctx, f.client, addrs.Master, contracts.FuncPrice, f.deployed["TOUCH"])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1e18), touchPrice)

	tribePrice, err := evm.CallOne[*big.Int](ctx, f.client, addrs.Master, contracts.FuncPrice, f.deployed["TRIBE"])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5e17), tribePrice)

	route, err := evm.CallOne[common.Address](ctx, f.client, addrs.Master, contracts.FuncMPOOracles, f.deployed["TRIBE"])
	require.NoError(t, err)
	assert.Equal(t, addrs.Fallback, route)

	sent := len(f.chain.Sent())
	require.NoError(t, seeder.Seed(ctx, prices))
	assert.Len(t, f.chain.Sent(), sent, "seeding twice sends nothing")
}

func TestPricesForUnknownToken(t *testing.T) {
	anvil, _ := chains.MustLoad().Lookup(chains.Anvil)

	_, err := PricesFor(anvil, map[string]common.Address{"TOUCH": common.HexToAddress("0x01")})
	require.ErrorContains(t, err, "no deployed token for priced symbol TRIBE")
}
