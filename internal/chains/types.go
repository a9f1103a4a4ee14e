package chains

import (
	"github.com/ethereum/go-ethereum/common"
)

type (
	OracleType   string
	FeedCurrency string

	// ChainConfig is the immutable per-chain constant table. Values are only ever
	// replaced wholesale by shipping a new embedded file with a bumped version.
	ChainConfig struct {
		ID          int64  `yaml:"id"`
		Name        string `yaml:"name"`
		Version     int    `yaml:"version"`
		Unconfirmed bool   `yaml:"unconfirmed"`
		Local       bool   `yaml:"local"`

		NativeToken        NativeToken `yaml:"native-token"`
		WrappedNativeToken string      `yaml:"wrapped-native-token"`
		NativeUSDFeed      string      `yaml:"native-usd-feed"`
		BlocksPerYear      string      `yaml:"blocks-per-year"`

		Dex Dex `yaml:"dex"`

		SupportedOracles []OracleType        `yaml:"oracles"`
		RateModels       RateModels          `yaml:"rate-models"`
		ChainlinkFeeds   []ChainlinkFeed     `yaml:"chainlink-feeds"`
		Assets           []Asset             `yaml:"assets"`
		Plugins          map[string][]Plugin `yaml:"plugins"`
		Addresses        map[string]string   `yaml:"addresses"`
		Fixtures         []TokenFixture      `yaml:"fixtures"`
		Prices           map[string]string   `yaml:"prices"`
	}

	NativeToken struct {
		Name   string `yaml:"name"`
		Symbol string `yaml:"symbol"`
	}

	Dex struct {
		Router       string `yaml:"router"`
		Factory      string `yaml:"factory"`
		PairInitHash string `yaml:"pair-init-hash"`
	}

	RateModels struct {
		JumpRate   JumpRateParams   `yaml:"jump-rate"`
		WhitePaper WhitePaperParams `yaml:"white-paper"`
	}

	// JumpRateParams are 1e18-scaled per-year values.
	JumpRateParams struct {
		BaseRatePerYear       string `yaml:"base-rate-per-year"`
		MultiplierPerYear     string `yaml:"multiplier-per-year"`
		JumpMultiplierPerYear string `yaml:"jump-multiplier-per-year"`
		Kink                  string `yaml:"kink"`
	}

	WhitePaperParams struct {
		BaseRatePerYear   string `yaml:"base-rate-per-year"`
		MultiplierPerYear string `yaml:"multiplier-per-year"`
	}

	ChainlinkFeed struct {
		Symbol       string       `yaml:"symbol"`
		Aggregator   string       `yaml:"aggregator"`
		Underlying   string       `yaml:"underlying"`
		FeedCurrency FeedCurrency `yaml:"feed-currency"`
	}

	// Asset is a market template. Percentages are plain numbers (75 means 75%).
	// An empty underlying (or fixture reference resolved later) denotes the native token.
	Asset struct {
		Symbol           string  `yaml:"symbol"`
		Name             string  `yaml:"name"`
		Underlying       string  `yaml:"underlying"`
		Fixture          string  `yaml:"fixture"`
		ReserveFactor    float64 `yaml:"reserve-factor"`
		AdminFee         float64 `yaml:"admin-fee"`
		CollateralFactor float64 `yaml:"collateral-factor"`
	}

	Plugin struct {
		StrategyName    string           `yaml:"strategy-name"`
		StrategyAddress string           `yaml:"strategy-address"`
		DynamicFlywheel *DynamicFlywheel `yaml:"dynamic-flywheel"`
	}

	DynamicFlywheel struct {
		Address     string `yaml:"address"`
		RewardToken string `yaml:"reward-token"`
	}

	// TokenFixture is a test ERC20 deployed on local chains.
	TokenFixture struct {
		Name     string `yaml:"name"`
		Symbol   string `yaml:"symbol"`
		Decimals uint8  `yaml:"decimals"`
		Supply   string `yaml:"supply"`
	}
)

const (
	OracleMaster        OracleType = "MasterPriceOracle"
	OracleSimple        OracleType = "SimplePriceOracle"
	OracleChainlinkV2   OracleType = "ChainlinkPriceOracleV2"
	OracleUniswapTwapV2 OracleType = "UniswapTwapPriceOracleV2"

	FeedCurrencyUSD         FeedCurrency = "USD"
	FeedCurrencyNativeToken FeedCurrency = "NATIVE"
)

var knownOracles = map[OracleType]struct{}{
	OracleMaster:        {},
	OracleSimple:        {},
	OracleChainlinkV2:   {},
	OracleUniswapTwapV2: {},
}

// SupportsOracle reports whether the oracle type is deployable on this chain.
func (c ChainConfig) SupportsOracle(t OracleType) bool {
	for _, o := range c.SupportedOracles {
		if o == t {
			return true
		}
	}
	return false
}

// WrappedNative returns the wrapped native token address, zero when unset.
func (c ChainConfig) WrappedNative() common.Address {
	if c.WrappedNativeToken == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.WrappedNativeToken)
}

// NativeFeed returns the native/USD price feed address, zero when unset.
func (c ChainConfig) NativeFeed() common.Address {
	if c.NativeUSDFeed == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.NativeUSDFeed)
}
