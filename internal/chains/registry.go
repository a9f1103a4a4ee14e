package chains

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const (
	BSC           int64 = 56
	Chapel        int64 = 97
	Ganache       int64 = 1337
	Anvil         int64 = 31337
	Aurora        int64 = 1313161555
	EvmosTestnet  int64 = 9000
	Evmos         int64 = 9001
	Harmony       int64 = 1666600000
	Moonbeam      int64 = 1284
	MoonbaseAlpha int64 = 1287
)

// KnownChains lists every chain id the tool recognises. Ids without an embedded
// table can be selected but not deployed to.
var KnownChains = map[int64]string{
	BSC:           "bsc",
	Chapel:        "chapel",
	Ganache:       "ganache",
	Anvil:         "anvil",
	Aurora:        "aurora",
	EvmosTestnet:  "evmos_testnet",
	Evmos:         "evmos",
	Harmony:       "harmony",
	Moonbeam:      "moonbeam",
	MoonbaseAlpha: "moonbase_alpha",
}

var (
	//go:embed data/*.yaml
	dataFS embed.FS

	loadOnce sync.Once
	loaded   *Registry
	loadErr  error
)

// Registry holds the per-chain tables keyed by chain id.
type Registry struct {
	chains map[int64]ChainConfig
}

// Load parses the embedded chain tables once and returns the shared registry.
func Load() (*Registry, error) {
	loadOnce.Do(func() {
		loaded, loadErr = loadFS(dataFS, "data")
	})

	return loaded, loadErr
}

// MustLoad is Load for callers that cannot proceed without the embedded tables.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

func loadFS(fsys fs.FS, dir string) (*Registry, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list chain tables: %w", err)
	}

	var configs []ChainConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read chain table %s: %w", entry.Name(), err)
		}

		var cfg ChainConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse chain table %s: %w", entry.Name(), err)
		}
		configs = append(configs, cfg)
	}

	return NewRegistry(configs...)
}

// NewRegistry validates the given tables and indexes them by chain id.
func NewRegistry(configs ...ChainConfig) (*Registry, error) {
	r := &Registry{chains: make(map[int64]ChainConfig, len(configs))}
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.chains[cfg.ID]; ok {
			return nil, fmt.Errorf("duplicate chain table for chain %d", cfg.ID)
		}
		r.chains[cfg.ID] = cfg.clone()
	}

	return r, nil
}

// Lookup returns a copy of the table for the chain, so callers can never mutate
// the registry.
func (r *Registry) Lookup(id int64) (ChainConfig, bool) {
	cfg, ok := r.chains[id]
	if !ok {
		return ChainConfig{}, false
	}
	return cfg.clone(), true
}

// IDs returns the chain ids that have a table, sorted ascending.
func (r *Registry) IDs() []int64 {
	return slices.Sorted(maps.Keys(r.chains))
}

// Validate checks the table is well formed. It never fills in or derives values.
func (c ChainConfig) Validate() error {
	var errs []error

	if c.ID <= 0 {
		errs = append(errs, errors.New("id must be positive"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if c.Version <= 0 {
		errs = append(errs, errors.New("version must be positive"))
	}

	checkAddress := func(field, value string) {
		if value != "" && !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s: %q is not a hex address", field, value))
		}
	}
	checkUint := func(field, value string) {
		if value == "" {
			return
		}
		if _, err := uint256.FromDecimal(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a uint256: %w", field, value, err))
		}
	}
	checkPercent := func(field string, value float64) {
		if value < 0 || value > 100 {
			errs = append(errs, fmt.Errorf("%s: %v is outside 0..100", field, value))
		}
	}

	checkAddress("wrapped-native-token", c.WrappedNativeToken)
	checkAddress("native-usd-feed", c.NativeUSDFeed)
	checkUint("blocks-per-year", c.BlocksPerYear)

	checkAddress("dex.router", c.Dex.Router)
	checkAddress("dex.factory", c.Dex.Factory)
	if h := c.Dex.PairInitHash; h != "" {
		if b, err := hexBytes(h); err != nil || len(b) != common.HashLength {
			errs = append(errs, fmt.Errorf("dex.pair-init-hash: %q is not a 32 byte hex hash", h))
		}
	}

	for _, o := range c.SupportedOracles {
		if _, ok := knownOracles[o]; !ok {
			errs = append(errs, fmt.Errorf("oracles: unknown oracle type %q", o))
		}
	}

	jr := c.RateModels.JumpRate
	checkUint("rate-models.jump-rate.base-rate-per-year", jr.BaseRatePerYear)
	checkUint("rate-models.jump-rate.multiplier-per-year", jr.MultiplierPerYear)
	checkUint("rate-models.jump-rate.jump-multiplier-per-year", jr.JumpMultiplierPerYear)
	checkUint("rate-models.jump-rate.kink", jr.Kink)
	wp := c.RateModels.WhitePaper
	checkUint("rate-models.white-paper.base-rate-per-year", wp.BaseRatePerYear)
	checkUint("rate-models.white-paper.multiplier-per-year", wp.MultiplierPerYear)

	for i, feed := range c.ChainlinkFeeds {
		field := fmt.Sprintf("chainlink-feeds[%d]", i)
		if feed.Aggregator == "" || feed.Underlying == "" {
			errs = append(errs, fmt.Errorf("%s: aggregator and underlying are required", field))
		}
		checkAddress(field+".aggregator", feed.Aggregator)
		checkAddress(field+".underlying", feed.Underlying)
		if feed.FeedCurrency != FeedCurrencyUSD && feed.FeedCurrency != FeedCurrencyNativeToken {
			errs = append(errs, fmt.Errorf("%s: unknown feed currency %q", field, feed.FeedCurrency))
		}
	}

	fixtures := make(map[string]struct{}, len(c.Fixtures))
	for i, f := range c.Fixtures {
		field := fmt.Sprintf("fixtures[%d]", i)
		if f.Symbol == "" || f.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name and symbol are required", field))
		}
		checkUint(field+".supply", f.Supply)
		fixtures[f.Symbol] = struct{}{}
	}

	for i, a := range c.Assets {
		field := fmt.Sprintf("assets[%d]", i)
		if a.Symbol == "" {
			errs = append(errs, fmt.Errorf("%s: symbol is required", field))
		}
		if a.Underlying != "" && a.Fixture != "" {
			errs = append(errs, fmt.Errorf("%s: underlying and fixture are mutually exclusive", field))
		}
		if a.Fixture != "" {
			if _, ok := fixtures[a.Fixture]; !ok {
				errs = append(errs, fmt.Errorf("%s: unknown fixture %q", field, a.Fixture))
			}
		}
		checkAddress(field+".underlying", a.Underlying)
		checkPercent(field+".reserve-factor", a.ReserveFactor)
		checkPercent(field+".admin-fee", a.AdminFee)
		checkPercent(field+".collateral-factor", a.CollateralFactor)
	}

	for symbol, plugins := range c.Plugins {
		for i, p := range plugins {
			field := fmt.Sprintf("plugins.%s[%d]", symbol, i)
			checkAddress(field+".strategy-address", p.StrategyAddress)
			if p.DynamicFlywheel != nil {
				checkAddress(field+".dynamic-flywheel.address", p.DynamicFlywheel.Address)
				checkAddress(field+".dynamic-flywheel.reward-token", p.DynamicFlywheel.RewardToken)
			}
		}
	}

	for name, addr := range c.Addresses {
		checkAddress("addresses."+name, addr)
	}
	for symbol, price := range c.Prices {
		checkUint("prices."+symbol, price)
	}

	if len(errs) > 0 {
		return fmt.Errorf("chain table %q (%d) is invalid: %w", c.Name, c.ID, errors.Join(errs...))
	}

	return nil
}

// RequireDeployable checks the values a protocol deployment cannot run without.
// Tables flagged unconfirmed are allowed through with a warning.
func (c ChainConfig) RequireDeployable(logger *slog.Logger) error {
	var errs []error

	if c.BlocksPerYear == "" {
		errs = append(errs, errors.New("blocks-per-year is not set"))
	}
	if !c.Local && c.WrappedNativeToken == "" {
		errs = append(errs, errors.New("wrapped-native-token is not set"))
	}
	if c.RateModels.JumpRate.Kink == "" {
		errs = append(errs, errors.New("rate-models.jump-rate is not set"))
	}
	if len(c.SupportedOracles) == 0 {
		errs = append(errs, errors.New("no oracle types are supported"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("chain %q (%d) cannot be deployed to: %w", c.Name, c.ID, errors.Join(errs...))
	}

	if c.Unconfirmed && logger != nil {
		logger.
			With("chain_id", c.ID).
			With("chain", c.Name).
			Warn("chain table is marked unconfirmed, double check its constants before relying on the deployment")
	}

	return nil
}

// Asset returns the market template with the given symbol.
func (c ChainConfig) Asset(symbol string) (Asset, bool) {
	for _, a := range c.Assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return Asset{}, false
}

// Native reports whether the asset is the chain's native token.
func (a Asset) Native() bool {
	return a.Underlying == "" && a.Fixture == ""
}

func (c ChainConfig) clone() ChainConfig {
	out := c
	out.SupportedOracles = slices.Clone(c.SupportedOracles)
	out.ChainlinkFeeds = slices.Clone(c.ChainlinkFeeds)
	out.Assets = slices.Clone(c.Assets)
	out.Fixtures = slices.Clone(c.Fixtures)
	out.Addresses = maps.Clone(c.Addresses)
	out.Prices = maps.Clone(c.Prices)

	if c.Plugins != nil {
		out.Plugins = make(map[string][]Plugin, len(c.Plugins))
		for symbol, plugins := range c.Plugins {
			cloned := make([]Plugin, len(plugins))
			for i, p := range plugins {
				cloned[i] = p
				if p.DynamicFlywheel != nil {
					fw := *p.DynamicFlywheel
					cloned[i].DynamicFlywheel = &fw
				}
			}
			out.Plugins[symbol] = cloned
		}
	}

	return out
}

func hexBytes(s string) ([]byte, error) {
	return hexutil.Decode(s)
}
