package fusetest

import (
	"bytes"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type (
	directory struct {
		initialized bool
		enforce     bool
		whitelist   map[common.Address]bool
		pools       []contracts.PoolInfo
	}

	comptroller struct {
		directory            common.Address
		admin                common.Address
		pendingAdmin         common.Address
		implementation       common.Address
		oracle               common.Address
		enforceWhitelist     bool
		closeFactor          *big.Int
		liquidationIncentive *big.Int
		markets              []common.Address
		whitelist            map[common.Address]bool
		distributors         []common.Address
		nonce                uint64
	}

	market struct {
		native           bool
		underlying       common.Address
		name             string
		symbol           string
		collateralFactor *big.Int
		supplies         map[common.Address]*big.Int
	}

	lens struct {
		directory    common.Address
		nativeName   string
		nativeSymbol string
	}
)

func (p *Protocol) newDirectory(call *evmtest.Call, _ []byte) (*evmtest.Contract, error) {
	d := &directory{whitelist: make(map[common.Address]bool)}
	self := call.Self
	if !call.Static {
		p.directories[self] = d
	}

	return evmtest.NewContract().
		Handle(contracts.FuncDirectoryInitialize, func(call *evmtest.Call, args []any) ([]any, error) {
			if d.initialized {
				return nil, evmtest.Revert("Initializable: contract is already initialized")
			}
			if call.Static {
				return nil, nil
			}
			d.initialized = true
			d.enforce = args[0].(bool)
			for _, addr := range args[1].([]common.Address) {
				d.whitelist[addr] = true
			}
			return nil, nil
		}).
		Handle(contracts.FuncDeployerWhitelist, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{d.whitelist[args[0].(common.Address)]}, nil
		}).
		Handle(contracts.FuncEnforceDeployerWhitelist, func(*evmtest.Call, []any) ([]any, error) {
			return []any{d.enforce}, nil
		}).
		Handle(contracts.FuncDeployPool, func(call *evmtest.Call, args []any) ([]any, error) {
			return p.deployPool(call, self, d, args)
		}).
		Handle(contracts.FuncGetAllPools, func(*evmtest.Call, []any) ([]any, error) {
			return []any{append([]contracts.PoolInfo{}, d.pools...)}, nil
		}).
		Handle(contracts.FuncGetPoolsByAccount, func(_ *evmtest.Call, args []any) ([]any, error) {
			account := args[0].(common.Address)
			indexes := []*big.Int{}
			pools := []contracts.PoolInfo{}
			for i, pool := range d.pools {
				if pool.Creator == account {
					indexes = append(indexes, big.NewInt(int64(i)))
					pools = append(pools, pool)
				}
			}
			return []any{indexes, pools}, nil
		}), nil
}

func (p *Protocol) deployPool(call *evmtest.Call, self common.Address, d *directory, args []any) ([]any, error) {
	var (
		name                 = args[0].(string)
		implementation       = args[1].(common.Address)
		constructorData      = args[2].([]byte)
		enforceWhitelist     = args[3].(bool)
		closeFactor          = args[4].(*big.Int)
		liquidationIncentive = args[5].(*big.Int)
		priceOracle          = args[6].(common.Address)
	)

	if !d.initialized {
		return nil, evmtest.Revert("directory not initialized")
	}
	if d.enforce && !d.whitelist[call.From] {
		return nil, evmtest.Revert("Sender is not on deployer whitelist.")
	}
	if len(name) == 0 {
		return nil, evmtest.Revert("No name specified.")
	}
	if implementation == (common.Address{}) {
		return nil, evmtest.Revert("No Comptroller implementation contract address specified.")
	}
	if priceOracle == (common.Address{}) {
		return nil, evmtest.Revert("No PriceOracle contract address specified.")
	}
	if closeFactor.Cmp(minCloseFactor) < 0 || closeFactor.Cmp(maxCloseFactor) > 0 {
		return nil, evmtest.Revert("Failed to set pool close factor.")
	}
	if liquidationIncentive.Cmp(mantissaOne) < 0 || liquidationIncentive.Cmp(maxLiquidationBonus) > 0 {
		return nil, evmtest.Revert("Failed to set pool liquidation incentive.")
	}

	// keccak256(abi.encodePacked(msg.sender, name, block.number))
	var packed bytes.Buffer
	packed.Write(call.From.Bytes())
	packed.WriteString(name)
	packed.Write(common.LeftPadBytes(new(big.Int).SetUint64(call.Block).Bytes(), 32))
	salt := crypto.Keccak256Hash(packed.Bytes())

	initCode := append(append([]byte{}, Code(contracts.Unitroller)...), constructorData...)
	proxy := crypto.CreateAddress2(self, salt, crypto.Keccak256(initCode))

	c := &comptroller{
		directory:            self,
		admin:                self,
		pendingAdmin:         call.From,
		implementation:       implementation,
		oracle:               priceOracle,
		enforceWhitelist:     enforceWhitelist,
		closeFactor:          new(big.Int).Set(closeFactor),
		liquidationIncentive: new(big.Int).Set(liquidationIncentive),
		whitelist:            make(map[common.Address]bool),
		nonce:                1,
	}
	if err := call.Install(proxy, Code(contracts.Unitroller), p.comptrollerContract(proxy, c)); err != nil {
		return nil, err
	}

	index := big.NewInt(int64(len(d.pools)))
	if !call.Static {
		p.comptrollers[proxy] = c
		d.pools = append(d.pools, contracts.PoolInfo{
			Name:            name,
			Creator:         call.From,
			Comptroller:     proxy,
			BlockPosted:     new(big.Int).SetUint64(call.Block),
			TimestampPosted: new(big.Int).SetUint64(call.Time),
		})
	}

	return []any{index, proxy}, nil
}

func (p *Protocol) comptrollerContract(self common.Address, c *comptroller) *evmtest.Contract {
	code := func(v int64) []any { return []any{big.NewInt(v)} }

	return evmtest.NewContract().
		Handle(contracts.FuncAdmin, func(*evmtest.Call, []any) ([]any, error) {
			return []any{c.admin}, nil
		}).
		Handle(contracts.FuncPendingAdmin, func(*evmtest.Call, []any) ([]any, error) {
			return []any{c.pendingAdmin}, nil
		}).
		Handle(contracts.FuncCloseFactor, func(*evmtest.Call, []any) ([]any, error) {
			return []any{c.closeFactor}, nil
		}).
		Handle(contracts.FuncLiquidationIncentive, func(*evmtest.Call, []any) ([]any, error) {
			return []any{c.liquidationIncentive}, nil
		}).
		Handle(contracts.FuncOracle, func(*evmtest.Call, []any) ([]any, error) {
			return []any{c.oracle}, nil
		}).
		Handle(contracts.FuncAcceptAdmin, func(call *evmtest.Call, _ []any) ([]any, error) {
			if call.From != c.pendingAdmin || call.From == (common.Address{}) {
				return code(codeUnauthorized), nil
			}
			if !call.Static {
				c.admin = c.pendingAdmin
				c.pendingAdmin = common.Address{}
			}
			return code(codeOK), nil
		}).
		Handle(contracts.FuncDeployMarket, func(call *evmtest.Call, args []any) ([]any, error) {
			return p.deployMarket(call, self, c, args)
		}).
		Handle(contracts.FuncGetAllMarkets, func(*evmtest.Call, []any) ([]any, error) {
			return []any{append([]common.Address{}, c.markets...)}, nil
		}).
		Handle(contracts.FuncSetWhitelistStatuses, func(call *evmtest.Call, args []any) ([]any, error) {
			suppliers := args[0].([]common.Address)
			statuses := args[1].([]bool)
			if call.From != c.admin {
				return code(codeUnauthorized), nil
			}
			if len(suppliers) != len(statuses) {
				return nil, evmtest.Revert("Mismatched array lengths.")
			}
			if !call.Static {
				for i, s := range suppliers {
					c.whitelist[s] = statuses[i]
				}
			}
			return code(codeOK), nil
		}).
		Handle(contracts.FuncWhitelist, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{c.whitelist[args[0].(common.Address)]}, nil
		}).
		Handle(contracts.FuncAddRewardsDistributor, func(call *evmtest.Call, args []any) ([]any, error) {
			distributor := args[0].(common.Address)
			if call.From != c.admin {
				return code(codeUnauthorized), nil
			}
			for _, d := range c.distributors {
				if d == distributor {
					return nil, evmtest.Revert("RewardsDistributor contract already added")
				}
			}
			if !call.Static {
				c.distributors = append(c.distributors, distributor)
			}
			return code(codeOK), nil
		}).
		Handle(contracts.FuncGetRewardsDistributors, func(*evmtest.Call, []any) ([]any, error) {
			return []any{append([]common.Address{}, c.distributors...)}, nil
		})
}

func (p *Protocol) deployMarket(call *evmtest.Call, self common.Address, c *comptroller, args []any) ([]any, error) {
	isCEther := args[0].(bool)
	data := args[1].([]byte)
	collateralFactor := args[2].(*big.Int)

	if call.From != c.admin {
		return []any{big.NewInt(codeUnauthorized)}, nil
	}
	if collateralFactor.Sign() < 0 || collateralFactor.Cmp(maxCollateralFactor) > 0 {
		return []any{big.NewInt(codeInvalidCollateralFactor)}, nil
	}

	m := &market{
		native:           isCEther,
		collateralFactor: new(big.Int).Set(collateralFactor),
		supplies:         make(map[common.Address]*big.Int),
	}
	if isCEther {
		values, err := contracts.CEtherConstructorData.Args.Unpack(data)
		if err != nil {
			return nil, evmtest.Revert("bad CEther constructor data: %v", err)
		}
		m.name, m.symbol = values[3].(string), values[4].(string)
		if values[0].(common.Address) != self {
			return nil, evmtest.Revert("comptroller mismatch")
		}
	} else {
		values, err := contracts.CErc20ConstructorData.Args.Unpack(data)
		if err != nil {
			return nil, evmtest.Revert("bad CErc20 constructor data: %v", err)
		}
		m.underlying = values[0].(common.Address)
		m.name, m.symbol = values[4].(string), values[5].(string)
		if values[1].(common.Address) != self {
			return nil, evmtest.Revert("comptroller mismatch")
		}
	}

	for _, existing := range c.markets {
		listed := p.markets[existing]
		if listed.native == m.native && listed.underlying == m.underlying {
			return []any{big.NewInt(codeMarketAlreadyListed)}, nil
		}
	}

	addr := crypto.CreateAddress(self, c.nonce)
	if err := call.Install(addr, Code(contracts.CErc20Delegate), p.marketContract(addr, m)); err != nil {
		return nil, err
	}
	if !call.Static {
		c.nonce++
		c.markets = append(c.markets, addr)
		p.markets[addr] = m
	}

	return []any{big.NewInt(codeOK)}, nil
}

// marketContract mints cTokens one to one with the supplied amount.
func (p *Protocol) marketContract(self common.Address, m *market) *evmtest.Contract {
	credit := func(call *evmtest.Call, amount *big.Int) {
		if call.Static {
			return
		}
		m.supplies[call.From] = new(big.Int).Add(m.supplyOf(call.From), amount)
	}

	return evmtest.NewContract().
		Handle(contracts.FuncMintNative, func(call *evmtest.Call, _ []any) ([]any, error) {
			if !m.native {
				return nil, evmtest.Revert("mint() is only payable on the native market")
			}
			credit(call, call.Value)
			return nil, nil
		}).
		Handle(contracts.FuncMintMarket, func(call *evmtest.Call, args []any) ([]any, error) {
			amount := args[0].(*big.Int)
			if m.native {
				return nil, evmtest.Revert("native market mints from msg.value")
			}
			t, ok := p.tokens[m.underlying]
			if !ok {
				return nil, evmtest.Revert("underlying is not a known token")
			}
			pull := *call
			pull.From = self
			if t.allowance(call.From, self).Cmp(amount) < 0 {
				return []any{big.NewInt(codeTokenInsufficientAllowance)}, nil
			}
			if err := t.transferFrom(&pull, call.From, self, amount); err != nil {
				return nil, err
			}
			credit(call, amount)
			return []any{big.NewInt(codeOK)}, nil
		}).
		Handle(contracts.FuncBalanceOf, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{m.supplyOf(args[0].(common.Address))}, nil
		}).
		Handle(contracts.FuncName, func(*evmtest.Call, []any) ([]any, error) {
			return []any{m.name}, nil
		}).
		Handle(contracts.FuncSymbol, func(*evmtest.Call, []any) ([]any, error) {
			return []any{m.symbol}, nil
		}).
		Handle(contracts.FuncUnderlying, func(*evmtest.Call, []any) ([]any, error) {
			if m.native {
				return nil, evmtest.Revert("native market has no underlying")
			}
			return []any{m.underlying}, nil
		})
}

func (p *Protocol) newLens(call *evmtest.Call, _ []byte) (*evmtest.Contract, error) {
	l := &lens{}
	initialized := false

	return evmtest.NewContract().
		Handle(contracts.FuncLensInitialize, func(call *evmtest.Call, args []any) ([]any, error) {
			if initialized {
				return nil, evmtest.Revert("Initializable: contract is already initialized")
			}
			if args[0].(common.Address) == (common.Address{}) {
				return nil, evmtest.Revert("FusePoolDirectory instance cannot be the zero address.")
			}
			if !call.Static {
				initialized = true
				l.directory = args[0].(common.Address)
				l.nativeName = args[1].(string)
				l.nativeSymbol = args[2].(string)
			}
			return nil, nil
		}).
		Handle(contracts.FuncDirectory, func(*evmtest.Call, []any) ([]any, error) {
			return []any{l.directory}, nil
		}).
		Handle(contracts.FuncGetPoolSummary, func(_ *evmtest.Call, args []any) ([]any, error) {
			c, ok := p.comptrollers[args[0].(common.Address)]
			if !ok {
				return nil, evmtest.Revert("not a pool")
			}

			underlyings := []common.Address{}
			symbols := []string{}
			for _, addr := range c.markets {
				m := p.markets[addr]
				symbol := m.symbol
				switch {
				case m.native:
					symbol = l.nativeSymbol
				case p.tokens[m.underlying] != nil:
					symbol = p.tokens[m.underlying].symbol
				}
				underlyings = append(underlyings, m.underlying)
				symbols = append(symbols, symbol)
			}

			whitelistedAdmin := false
			if d, ok := p.directories[l.directory]; ok {
				whitelistedAdmin = d.whitelist[c.admin]
			}

			return []any{new(big.Int), new(big.Int), underlyings, symbols, whitelistedAdmin}, nil
		}), nil
}

func (p *Protocol) newLensSecondary(*evmtest.Call, []byte) (*evmtest.Contract, error) {
	var dir common.Address

	return evmtest.NewContract().
		Handle(contracts.FuncLensSecondaryInitialize, func(call *evmtest.Call, args []any) ([]any, error) {
			if dir != (common.Address{}) {
				return nil, evmtest.Revert("Initializable: contract is already initialized")
			}
			if !call.Static {
				dir = args[0].(common.Address)
			}
			return nil, nil
		}).
		Handle(contracts.FuncDirectory, func(*evmtest.Call, []any) ([]any, error) {
			return []any{dir}, nil
		}), nil
}

func (m *market) supplyOf(addr common.Address) *big.Int {
	if s, ok := m.supplies[addr]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}
