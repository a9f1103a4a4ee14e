package cli

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/compose-network/fuse-deployer/internal/pool"
	"github.com/compose-network/fuse-deployer/internal/scenario"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResolveChain(t *testing.T) {
	ctx := context.Background()
	backend := evmtest.NewChain(chains.Anvil)

	chain, err := resolveChain(ctx, configs.Network{}, backend)
	require.NoError(t, err)
	assert.Equal(t, "anvil", chain.Name)

	_, err = resolveChain(ctx, configs.Network{ChainID: chains.Chapel, RPCURL: "http://node"}, backend)
	require.ErrorContains(t, err, "serves chain 31337")

	_, err = resolveChain(ctx, configs.Network{}, evmtest.NewChain(chains.Aurora))
	require.ErrorContains(t, err, "has no constant table")

	_, err = resolveChain(ctx, configs.Network{}, evmtest.NewChain(424242))
	require.ErrorContains(t, err, "unsupported chain 424242")
}

func TestOpenStoreDefaultsToJSON(t *testing.T) {
	st, err := openStore(context.Background(), configs.Store{Path: t.TempDir()})
	require.NoError(t, err)
	defer st.Close()

	assert.IsType(t, &store.JSONStore{}, st)
}

func TestSelectAssets(t *testing.T) {
	assets := []pool.AssetConfig{{Symbol: "ETH"}, {Symbol: "TOUCH"}, {Symbol: "TRIBE"}}

	all, err := selectAssets(assets, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	picked, err := selectAssets(assets, []string{"tribe", "ETH"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	assert.Equal(t, "TRIBE", picked[0].Symbol)
	assert.Equal(t, "ETH", picked[1].Symbol)

	_, err = selectAssets(assets, []string{"DAI"})
	assert.True(t, evm.IsPreconditionError(err))
}

func TestParseInputs(t *testing.T) {
	amount, err := parseAmount("rate", "1000000000000")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000_000), amount)

	_, err = parseAmount("rate", "-1")
	assert.Error(t, err)
	_, err = parseAmount("rate", "1e12")
	assert.Error(t, err)

	_, err = parseAddress("pool", "0x1234")
	assert.ErrorContains(t, err, "invalid pool address")
}

func TestReaderOptions(t *testing.T) {
	opts, err := readerOptions(0, 0, 4)
	require.NoError(t, err)
	assert.Len(t, opts, 1, "no limiter without a rate")

	opts, err = readerOptions(50, 10, 2)
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	_, err = readerOptions(50, 0, 4)
	assert.ErrorContains(t, err, "invalid burst 0")
	_, err = readerOptions(-1, 10, 4)
	assert.ErrorContains(t, err, "invalid rate limit")
	_, err = readerOptions(0, 10, 0)
	assert.ErrorContains(t, err, "invalid concurrency")
}

func TestClaimablePoolsOptional(t *testing.T) {
	flag := rewardsClaimableCmd.Flags().Lookup("pools")
	require.NotNil(t, flag)
	_, required := flag.Annotations[cobra.BashCompOneRequiredFlag]
	assert.False(t, required)
}

func TestResolveAccount(t *testing.T) {
	cfg := configs.MustDefaultConfig()

	deployer, err := resolveAccount(cfg, "deployer")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), deployer)

	raw := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	addr, err := resolveAccount(cfg, raw)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(raw), addr)

	_, err = resolveAccount(cfg, "carol")
	assert.ErrorContains(t, err, `no private key configured for account "carol"`)
}

func TestChainsList(t *testing.T) {
	var out bytes.Buffer
	chainsListCmd.SetOut(&out)
	require.NoError(t, chainsListCmd.RunE(chainsListCmd, nil))

	var listed []chainSummary
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &listed))
	require.Len(t, listed, len(chains.MustLoad().IDs()))

	last := listed[len(listed)-1]
	assert.Equal(t, chains.Anvil, last.ID)
	assert.True(t, last.Local)
	assert.Equal(t, []string{"ETH", "TOUCH", "TRIBE"}, last.Assets)
}

func TestReportRewards(t *testing.T) {
	r := scenario.RewardsResult{
		Configured:        scenario.PoolWithMarketsResult{Pool: &pool.Pool{Comptroller: common.HexToAddress("0x01")}},
		Unconfigured:      scenario.PoolWithMarketsResult{Pool: &pool.Pool{Comptroller: common.HexToAddress("0x02")}},
		Elapsed:           86400,
		ConfiguredTotal:   big.NewInt(172_800_000_000_000_000),
		UnconfiguredTotal: new(big.Int),
	}

	got := report(r)
	assert.Equal(t, "172800000000000000", got["rewarded-claimable"])
	assert.Equal(t, "0", got["plain-claimable"])
	assert.Equal(t, uint64(86400), got["elapsed-seconds"])
}
