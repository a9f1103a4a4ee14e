// Package fusetest registers in-memory stand-ins for the lending protocol
// contracts on an evmtest.Chain. The fakes keep the protocol's observable
// behaviour (error codes, admin handshakes, address derivation, reward
// accrual) without executing EVM bytecode.
package fusetest

import (
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

// Compound-style error codes returned by the fake comptroller.
const (
	codeOK                         int64 = 0
	codeUnauthorized               int64 = 1
	codeInvalidCollateralFactor    int64 = 6
	codeMarketAlreadyListed        int64 = 10
	codeTokenInsufficientAllowance int64 = 13
)

var (
	mantissaOne           = big.NewInt(1e18)
	maxCollateralFactor   = big.NewInt(9e17)
	minCloseFactor        = big.NewInt(5e16)
	maxCloseFactor        = big.NewInt(9e17)
	maxLiquidationBonus   = big.NewInt(15e17)
	defaultChainlinkPrice = big.NewInt(1e18)
)

// Protocol tracks every fake contract deployed on the chain.
type Protocol struct {
	Chain     *evmtest.Chain
	Artifacts contracts.Set

	directories  map[common.Address]*directory
	comptrollers map[common.Address]*comptroller
	markets      map[common.Address]*market
	tokens       map[common.Address]*token
	simple       map[common.Address]*simpleOracle
	chainlink    map[common.Address]*chainlinkOracle
	rewards      map[common.Address]*staticRewards
}

// Code is the fake creation code registered for name.
func Code(name contracts.Name) []byte {
	return []byte("fuse:" + string(name) + ":")
}

// Artifacts returns an artifact set whose bytecode deploys the fakes.
func Artifacts() contracts.Set {
	set := make(contracts.Set, len(contracts.Names))
	for name := range contracts.Names {
		set[name] = contracts.Artifact{Name: name, RawABI: "[]", Bytecode: Code(name)}
	}
	return set
}

// New registers constructors for every protocol contract on chain.
func New(chain *evmtest.Chain) *Protocol {
	p := &Protocol{
		Chain:        chain,
		Artifacts:    Artifacts(),
		directories:  make(map[common.Address]*directory),
		comptrollers: make(map[common.Address]*comptroller),
		markets:      make(map[common.Address]*market),
		tokens:       make(map[common.Address]*token),
		simple:       make(map[common.Address]*simpleOracle),
		chainlink:    make(map[common.Address]*chainlinkOracle),
		rewards:      make(map[common.Address]*staticRewards),
	}

	empty := func(*evmtest.Call, []byte) (*evmtest.Contract, error) {
		return evmtest.NewContract(), nil
	}

	chain.Register(Code(contracts.Comptroller), empty)
	chain.Register(Code(contracts.FuseSafeLiquidator), empty)
	chain.Register(Code(contracts.CErc20Delegate), empty)
	chain.Register(Code(contracts.CEtherDelegate), empty)
	chain.Register(Code(contracts.JumpRateModel), unpacking(contracts.CtorJumpRateModel))
	chain.Register(Code(contracts.WhitePaperInterestRate), unpacking(contracts.CtorWhitePaperInterestRateModel))
	chain.Register(Code(contracts.FusePoolDirectory), p.newDirectory)
	chain.Register(Code(contracts.FuseFeeDistributor), p.newFeeDistributor)
	chain.Register(Code(contracts.FusePoolLens), p.newLens)
	chain.Register(Code(contracts.FusePoolLensSecondary), p.newLensSecondary)
	chain.Register(Code(contracts.SimplePriceOracle), p.newSimpleOracle)
	chain.Register(Code(contracts.ChainlinkPriceOracleV2), p.newChainlinkOracle)
	chain.Register(Code(contracts.MasterPriceOracle), p.newMasterOracle)
	chain.Register(Code(contracts.MockERC20), p.newToken)
	chain.Register(Code(contracts.FuseFlywheelCore), p.newFlywheel)
	chain.Register(Code(contracts.FlywheelStaticRewards), p.newStaticRewards)

	return p
}

// unpacking accepts only creation code whose arguments decode against ctor.
func unpacking(ctor *w3.Func) evmtest.Constructor {
	return func(_ *evmtest.Call, ctorArgs []byte) (*evmtest.Contract, error) {
		if _, err := ctor.Args.Unpack(ctorArgs); err != nil {
			return nil, evmtest.Revert("bad constructor arguments: %v", err)
		}
		return evmtest.NewContract(), nil
	}
}
