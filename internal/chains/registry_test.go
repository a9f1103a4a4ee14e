package chains

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedTables(t *testing.T) {
	r, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{BSC, Chapel, Moonbeam, MoonbaseAlpha, Ganache, EvmosTestnet, Evmos, Anvil}, r.IDs())

	chapel, ok := r.Lookup(Chapel)
	require.True(t, ok)
	assert.Equal(t, "TBNB", chapel.NativeToken.Symbol)
	assert.Equal(t, "10512000", chapel.BlocksPerYear)
	assert.True(t, chapel.SupportsOracle(OracleChainlinkV2))
	assert.False(t, chapel.SupportsOracle(OracleSimple))
	assert.Len(t, chapel.ChainlinkFeeds, 4)

	_, ok = r.Lookup(Aurora)
	assert.False(t, ok, "aurora is known but has no table")
	assert.Contains(t, KnownChains, Aurora)
}

func TestLookupReturnsACopy(t *testing.T) {
	r := MustLoad()

	first, ok := r.Lookup(Ganache)
	require.True(t, ok)
	first.SupportedOracles[0] = OracleUniswapTwapV2
	first.Plugins["TRIBE"][0].DynamicFlywheel.Address = "0x0000000000000000000000000000000000000001"
	first.Prices["TOUCH"] = "0"

	second, _ := r.Lookup(Ganache)
	assert.Equal(t, OracleSimple, second.SupportedOracles[0])
	assert.Equal(t, "0x681cEEE3d6781394b2ECD7a4b9d5214f537aFeEb", second.Plugins["TRIBE"][0].DynamicFlywheel.Address)
	assert.Equal(t, "1000000000000000000", second.Prices["TOUCH"])
}

func TestValidateRejectsMalformedTables(t *testing.T) {
	cfg := ChainConfig{
		ID:                 7,
		Name:               "broken",
		Version:            1,
		WrappedNativeToken: "0x1234",
		BlocksPerYear:      "-1",
		Dex:                Dex{PairInitHash: "0xabcd"},
		SupportedOracles:   []OracleType{"PythOracle"},
		ChainlinkFeeds:     []ChainlinkFeed{{Symbol: "X", Aggregator: "0x9331b55D9830EF609A2aBCfAc0FBCE050A52fdEa", Underlying: "0xed24fc36d5ee211ea25a80239fb8c4cfd80f12ee", FeedCurrency: "EUR"}},
		Assets:             []Asset{{Symbol: "Y", Fixture: "MISSING", CollateralFactor: 120}},
	}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "wrapped-native-token")
	assert.Contains(t, msg, "blocks-per-year")
	assert.Contains(t, msg, "pair-init-hash")
	assert.Contains(t, msg, `unknown oracle type "PythOracle"`)
	assert.Contains(t, msg, `unknown feed currency "EUR"`)
	assert.Contains(t, msg, `unknown fixture "MISSING"`)
	assert.Contains(t, msg, "collateral-factor")
}

func TestRequireDeployable(t *testing.T) {
	r := MustLoad()

	anvil, _ := r.Lookup(Anvil)
	require.NoError(t, anvil.RequireDeployable(nil), "local chains need no wrapped native token")

	evmos, _ := r.Lookup(Evmos)
	err := evmos.RequireDeployable(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrapped-native-token")

	moonbeam, _ := r.Lookup(Moonbeam)
	assert.True(t, moonbeam.Unconfirmed)
	require.NoError(t, moonbeam.RequireDeployable(nil))
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	cfg := ChainConfig{ID: 5, Name: "dup", Version: 1}
	_, err := NewRegistry(cfg, cfg)
	require.ErrorContains(t, err, "duplicate chain table")
}

func TestLoadFSSkipsNonYAML(t *testing.T) {
	fsys := fstest.MapFS{
		"tables/one.yaml":  {Data: []byte("id: 1\nname: one\nversion: 2\n")},
		"tables/README.md": {Data: []byte("not a table")},
	}

	r, err := loadFS(fsys, "tables")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, r.IDs())

	one, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, 2, one.Version)
}

func TestAssetHelpers(t *testing.T) {
	anvil, _ := MustLoad().Lookup(Anvil)

	eth, ok := anvil.Asset("eth")
	require.True(t, ok)
	assert.True(t, eth.Native())

	touch, ok := anvil.Asset("TOUCH")
	require.True(t, ok)
	assert.False(t, touch.Native())
	assert.Equal(t, "TOUCH", touch.Fixture)
}
