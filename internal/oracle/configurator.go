package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

type (
	// FeedMapping routes one underlying to a Chainlink aggregator.
	FeedMapping struct {
		Symbol     string
		Underlying common.Address
		Feed       common.Address
		Base       chains.FeedCurrency
	}

	// Addresses are the deployed oracle contracts. Chainlink and Fallback may
	// be zero when the chain has no such oracle.
	Addresses struct {
		Master        common.Address
		Chainlink     common.Address
		Fallback      common.Address
		WrappedNative common.Address
	}

	Result struct {
		FeedsSet    int
		Initialized bool
	}

	// Configurator wires price feeds into ChainlinkPriceOracleV2 and performs
	// the one-time MasterPriceOracle initialization.
	Configurator struct {
		client *evm.Client
		addrs  Addresses
		logger *slog.Logger
	}
)

func NewConfigurator(client *evm.Client, addrs Addresses) *Configurator {
	return &Configurator{
		client: client,
		addrs:  addrs,
		logger: logger.Named("oracle_configurator"),
	}
}

// AddressesFor picks the oracle contracts out of a deployment, keyed by
// contract name. SimplePriceOracle becomes the master oracle's fallback when
// the chain has one.
func AddressesFor(chain chains.ChainConfig, deployed map[string]common.Address) Addresses {
	return Addresses{
		Master:        deployed[string(contracts.MasterPriceOracle)],
		Chainlink:     deployed[string(contracts.ChainlinkPriceOracleV2)],
		Fallback:      deployed[string(contracts.SimplePriceOracle)],
		WrappedNative: chain.WrappedNative(),
	}
}

// MappingsFor returns the chain's Chainlink feed table in declaration order.
func MappingsFor(chain chains.ChainConfig) []FeedMapping {
	mappings := make([]FeedMapping, 0, len(chain.ChainlinkFeeds))
	for _, feed := range chain.ChainlinkFeeds {
		mappings = append(mappings, FeedMapping{
			Symbol:     feed.Symbol,
			Underlying: common.HexToAddress(feed.Underlying),
			Feed:       common.HexToAddress(feed.Aggregator),
			Base:       feed.FeedCurrency,
		})
	}
	return mappings
}

// Configure sets any Chainlink feeds not yet in place, then initializes the
// master oracle unless its admin is already set. Running it again changes
// nothing on chain.
func (c *Configurator) Configure(ctx context.Context, mappings []FeedMapping) (Result, error) {
	if c.addrs.Master == (common.Address{}) {
		return Result{}, evm.Precondition("master price oracle address is not set")
	}
	if len(mappings) > 0 && c.addrs.Chainlink == (common.Address{}) {
		return Result{}, evm.Precondition("%d chainlink feeds configured but no chainlink oracle deployed", len(mappings))
	}

	var result Result

	set, err := c.setFeeds(ctx, mappings)
	if err != nil {
		return result, err
	}
	result.FeedsSet = set

	admin, err := evm.CallOne[common.Address](ctx, c.client, c.addrs.Master, contracts.FuncAdmin)
	if err != nil {
		return result, fmt.Errorf("failed to read master price oracle admin: %w", err)
	}
	if admin != (common.Address{}) {
		c.logger.
			With("master_price_oracle", c.addrs.Master.Hex()).
			With("admin", admin.Hex()).
			Info("master price oracle already initialized, skipping")
		return result, nil
	}

	underlyings := make([]common.Address, len(mappings))
	sources := make([]common.Address, len(mappings))
	for i, m := range mappings {
		underlyings[i] = m.Underlying
		sources[i] = c.addrs.Chainlink
	}

	if c.addrs.Fallback == (common.Address{}) {
		c.logger.
			With("master_price_oracle", c.addrs.Master.Hex()).
			Warn("no fallback oracle, assets without a chainlink feed will have no price")
	}

	if _, err := c.client.Transact(ctx, c.addrs.Master, contracts.FuncMPOInitialize,
		underlyings, sources, c.addrs.Fallback, c.client.From(), true, c.addrs.WrappedNative); err != nil {
		return result, fmt.Errorf("failed to initialize master price oracle: %w", err)
	}
	result.Initialized = true

	c.logger.
		With("master_price_oracle", c.addrs.Master.Hex()).
		With("underlyings", len(underlyings)).
		With("fallback", c.addrs.Fallback.Hex()).
		Info("master price oracle initialized")

	return result, nil
}

// setFeeds groups feeds by base currency, one setPriceFeeds call per base,
// leaving out feeds the oracle already points at.
func (c *Configurator) setFeeds(ctx context.Context, mappings []FeedMapping) (int, error) {
	type group struct {
		underlyings []common.Address
		feeds       []common.Address
	}

	var order []contracts.ChainlinkBase
	groups := make(map[contracts.ChainlinkBase]*group)
	for _, m := range mappings {
		base, err := chainlinkBase(m.Base)
		if err != nil {
			return 0, err
		}

		current, err := evm.CallOne[common.Address](ctx, c.client, c.addrs.Chainlink, contracts.FuncPriceFeeds, m.Underlying)
		if err != nil {
			return 0, fmt.Errorf("failed to read price feed for %s: %w", m.Symbol, err)
		}
		if current == m.Feed {
			continue
		}

		g, ok := groups[base]
		if !ok {
			g = &group{}
			groups[base] = g
			order = append(order, base)
		}
		g.underlyings = append(g.underlyings, m.Underlying)
		g.feeds = append(g.feeds, m.Feed)
	}

	set := 0
	for _, base := range order {
		g := groups[base]
		if _, err := c.client.Transact(ctx, c.addrs.Chainlink, contracts.FuncSetPriceFeeds,
			g.underlyings, g.feeds, uint8(base)); err != nil {
			return set, fmt.Errorf("failed to set chainlink price feeds: %w", err)
		}
		set += len(g.underlyings)

		c.logger.
			With("chainlink_oracle", c.addrs.Chainlink.Hex()).
			With("base", base).
			With("feeds", len(g.underlyings)).
			Info("chainlink price feeds set")
	}

	return set, nil
}

func chainlinkBase(currency chains.FeedCurrency) (contracts.ChainlinkBase, error) {
	switch currency {
	case chains.FeedCurrencyUSD:
		return contracts.ChainlinkBaseUSD, nil
	case chains.FeedCurrencyNativeToken:
		return contracts.ChainlinkBaseNative, nil
	default:
		return 0, evm.Precondition("unknown feed currency %q", currency)
	}
}
