package fusetest

import (
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/ethereum/go-ethereum/common"
)

type (
	simpleOracle struct {
		prices map[common.Address]*big.Int
	}

	chainlinkOracle struct {
		admin             common.Address
		canAdminOverwrite bool
		wtoken            common.Address
		feeds             map[common.Address]common.Address
		bases             map[common.Address]uint8
	}

	masterOracle struct {
		admin             common.Address
		canAdminOverwrite bool
		wtoken            common.Address
		defaultOracle     common.Address
		oracles           map[common.Address]common.Address
	}
)

func (p *Protocol) newSimpleOracle(call *evmtest.Call, _ []byte) (*evmtest.Contract, error) {
	o := &simpleOracle{prices: make(map[common.Address]*big.Int)}
	if !call.Static {
		p.simple[call.Self] = o
	}

	return evmtest.NewContract().
		Handle(contracts.FuncSetDirectPrice, func(call *evmtest.Call, args []any) ([]any, error) {
			if !call.Static {
				o.prices[args[0].(common.Address)] = new(big.Int).Set(args[1].(*big.Int))
			}
			return nil, nil
		}).
		Handle(contracts.FuncPrice, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{o.price(args[0].(common.Address))}, nil
		}), nil
}

func (o *simpleOracle) price(underlying common.Address) *big.Int {
	if price, ok := o.prices[underlying]; ok {
		return new(big.Int).Set(price)
	}
	return new(big.Int)
}

func (p *Protocol) newChainlinkOracle(call *evmtest.Call, ctorArgs []byte) (*evmtest.Contract, error) {
	args, err := contracts.CtorChainlinkPriceOracleV2.Args.Unpack(ctorArgs)
	if err != nil {
		return nil, evmtest.Revert("bad constructor arguments: %v", err)
	}

	o := &chainlinkOracle{
		admin:             args[0].(common.Address),
		canAdminOverwrite: args[1].(bool),
		wtoken:            args[2].(common.Address),
		feeds:             make(map[common.Address]common.Address),
		bases:             make(map[common.Address]uint8),
	}
	if !call.Static {
		p.chainlink[call.Self] = o
	}

	return evmtest.NewContract().
		Handle(contracts.FuncAdmin, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.admin}, nil
		}).
		Handle(contracts.FuncCanAdminOverwrite, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.canAdminOverwrite}, nil
		}).
		Handle(contracts.FuncWrappedNativeToken, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.wtoken}, nil
		}).
		Handle(contracts.FuncSetPriceFeeds, func(call *evmtest.Call, args []any) ([]any, error) {
			underlyings := args[0].([]common.Address)
			feeds := args[1].([]common.Address)
			base := args[2].(uint8)

			if call.From != o.admin {
				return nil, evmtest.Revert("Sender is not the admin.")
			}
			if len(underlyings) == 0 || len(underlyings) != len(feeds) {
				return nil, evmtest.Revert("Lengths of both arrays must be equal and greater than 0.")
			}
			for _, u := range underlyings {
				if _, exists := o.feeds[u]; exists && !o.canAdminOverwrite {
					return nil, evmtest.Revert("Admin cannot overwrite existing assignments of price feeds to underlying tokens.")
				}
			}
			if !call.Static {
				for i, u := range underlyings {
					o.feeds[u] = feeds[i]
					o.bases[u] = base
				}
			}
			return nil, nil
		}).
		Handle(contracts.FuncPriceFeeds, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{o.feeds[args[0].(common.Address)]}, nil
		}).
		Handle(contracts.FuncFeedBaseCurrencies, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{o.bases[args[0].(common.Address)]}, nil
		}).
		Handle(contracts.FuncPrice, func(_ *evmtest.Call, args []any) ([]any, error) {
			if _, ok := o.feeds[args[0].(common.Address)]; !ok {
				return nil, evmtest.Revert("No Chainlink price feed found for this underlying ERC20 token.")
			}
			return []any{new(big.Int).Set(defaultChainlinkPrice)}, nil
		}), nil
}

func (p *Protocol) newMasterOracle(*evmtest.Call, []byte) (*evmtest.Contract, error) {
	o := &masterOracle{oracles: make(map[common.Address]common.Address)}

	return evmtest.NewContract().
		Handle(contracts.FuncAdmin, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.admin}, nil
		}).
		Handle(contracts.FuncCanAdminOverwrite, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.canAdminOverwrite}, nil
		}).
		Handle(contracts.FuncWrappedNativeToken, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.wtoken}, nil
		}).
		Handle(contracts.FuncMPODefaultOracle, func(*evmtest.Call, []any) ([]any, error) {
			return []any{o.defaultOracle}, nil
		}).
		Handle(contracts.FuncMPOInitialize, func(call *evmtest.Call, args []any) ([]any, error) {
			underlyings := args[0].([]common.Address)
			oracles := args[1].([]common.Address)

			if o.admin != (common.Address{}) {
				return nil, evmtest.Revert("Initializable: contract is already initialized")
			}
			if len(underlyings) != len(oracles) {
				return nil, evmtest.Revert("Lengths of both arrays must be equal.")
			}
			if args[3].(common.Address) == (common.Address{}) {
				return nil, evmtest.Revert("Admin cannot be the zero address.")
			}
			if call.Static {
				return nil, nil
			}

			for i, u := range underlyings {
				o.oracles[u] = oracles[i]
			}
			o.defaultOracle = args[2].(common.Address)
			o.admin = args[3].(common.Address)
			o.canAdminOverwrite = args[4].(bool)
			o.wtoken = args[5].(common.Address)
			return nil, nil
		}).
		Handle(contracts.FuncMPOAdd, func(call *evmtest.Call, args []any) ([]any, error) {
			underlyings := args[0].([]common.Address)
			oracles := args[1].([]common.Address)

			if call.From != o.admin {
				return nil, evmtest.Revert("Sender is not the admin.")
			}
			if len(underlyings) == 0 || len(underlyings) != len(oracles) {
				return nil, evmtest.Revert("Lengths of both arrays must be equal and greater than 0.")
			}
			for _, u := range underlyings {
				if _, exists := o.oracles[u]; exists && !o.canAdminOverwrite {
					return nil, evmtest.Revert("Admin cannot overwrite existing assignments of oracles to underlying tokens.")
				}
			}
			if !call.Static {
				for i, u := range underlyings {
					o.oracles[u] = oracles[i]
				}
			}
			return nil, nil
		}).
		Handle(contracts.FuncMPOOracles, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{o.oracles[args[0].(common.Address)]}, nil
		}).
		Handle(contracts.FuncPrice, func(_ *evmtest.Call, args []any) ([]any, error) {
			underlying := args[0].(common.Address)
			if underlying == (common.Address{}) || underlying == o.wtoken {
				return []any{new(big.Int).Set(mantissaOne)}, nil
			}

			source, ok := o.oracles[underlying]
			if !ok {
				source = o.defaultOracle
			}
			if simple, ok := p.simple[source]; ok {
				return []any{simple.price(underlying)}, nil
			}
			if _, ok := p.chainlink[source]; ok {
				return []any{new(big.Int).Set(defaultChainlinkPrice)}, nil
			}
			return nil, evmtest.Revert("Price oracle not found for this underlying token address.")
		}), nil
}
