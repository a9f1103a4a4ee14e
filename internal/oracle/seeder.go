package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

type (
	Price struct {
		Symbol     string
		Underlying common.Address
		Price      *big.Int
	}

	// Seeder sets direct prices on SimplePriceOracle for test tokens and routes
	// them through the master oracle.
	Seeder struct {
		client *evm.Client
		simple common.Address
		master common.Address
		logger *slog.Logger
	}
)

func NewSeeder(client *evm.Client, simple, master common.Address) *Seeder {
	return &Seeder{
		client: client,
		simple: simple,
		master: master,
		logger: logger.Named("oracle_seeder"),
	}
}

// PricesFor resolves the chain's seeded prices against deployed token
// addresses, keyed by symbol.
func PricesFor(chain chains.ChainConfig, tokens map[string]common.Address) ([]Price, error) {
	symbols := make([]string, 0, len(chain.Prices))
	for symbol := range chain.Prices {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	prices := make([]Price, 0, len(symbols))
	for _, symbol := range symbols {
		addr, ok := tokens[symbol]
		if !ok {
			return nil, fmt.Errorf("no deployed token for priced symbol %s", symbol)
		}
		price, ok := new(big.Int).SetString(chain.Prices[symbol], 10)
		if !ok {
			return nil, fmt.Errorf("invalid price %q for %s", chain.Prices[symbol], symbol)
		}
		prices = append(prices, Price{Symbol: symbol, Underlying: addr, Price: price})
	}

	return prices, nil
}

// Seed writes each price and adds a master oracle route for underlyings that
// have none yet.
func (s *Seeder) Seed(ctx context.Context, prices []Price) error {
	if s.simple == (common.Address{}) {
		return evm.Precondition("simple price oracle is not deployed on this chain")
	}

	var unrouted []common.Address
	for _, p := range prices {
		current, err := evm.CallOne[*big.Int](ctx, s.client, s.simple, contracts.FuncPrice, p.Underlying)
		if err != nil {
			return fmt.Errorf("failed to read price of %s: %w", p.Symbol, err)
		}
		if current.Cmp(p.Price) != 0 {
			if _, err := s.client.Transact(ctx, s.simple, contracts.FuncSetDirectPrice, p.Underlying, p.Price); err != nil {
				return fmt.Errorf("failed to set price of %s: %w", p.Symbol, err)
			}
			s.logger.With("symbol", p.Symbol).With("price", p.Price.String()).Info("price seeded")
		}

		if s.master == (common.Address{}) {
			continue
		}
		route, err := evm.CallOne[common.Address](ctx, s.client, s.master, contracts.FuncMPOOracles, p.Underlying)
		if err != nil {
			return fmt.Errorf("failed to read master oracle route of %s: %w", p.Symbol, err)
		}
		if route == (common.Address{}) {
			unrouted = append(unrouted, p.Underlying)
		}
	}

	if len(unrouted) == 0 {
		return nil
	}

	sources := make([]common.Address, len(unrouted))
	for i := range sources {
		sources[i] = s.simple
	}
	if _, err := s.client.Transact(ctx, s.master, contracts.FuncMPOAdd, unrouted, sources); err != nil {
		return fmt.Errorf("failed to route seeded prices through master oracle: %w", err)
	}

	return nil
}
