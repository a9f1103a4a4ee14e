package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

// Constructors. Only the argument list is used, packed after the creation code.
var (
	CtorJumpRateModel = w3.MustNewFunc(
		"constructor(uint256 blocksPerYear,uint256 baseRatePerYear,uint256 multiplierPerYear,uint256 jumpMultiplierPerYear,uint256 kink)", "",
	)
	CtorWhitePaperInterestRateModel = w3.MustNewFunc(
		"constructor(uint256 blocksPerYear,uint256 baseRatePerYear,uint256 multiplierPerYear)", "",
	)
	CtorChainlinkPriceOracleV2 = w3.MustNewFunc(
		"constructor(address admin,bool canAdminOverwrite,address wtoken,address nativeTokenUsd)", "",
	)
	CtorMockERC20 = w3.MustNewFunc(
		"constructor(string name,string symbol,uint8 decimals)", "",
	)
	CtorFuseFlywheelCore = w3.MustNewFunc(
		"constructor(address rewardToken,address rewards,address booster,address owner,address authority)", "",
	)
	CtorFlywheelStaticRewards = w3.MustNewFunc(
		"constructor(address flywheel,address owner,address authority)", "",
	)
	CtorUnitroller = w3.MustNewFunc(
		"constructor(address fuseAdmin)", "",
	)
)

// Market constructor data passed to Comptroller._deployMarket. The native layout
// has no underlying.
var (
	CEtherConstructorData = w3.MustNewFunc(
		"cEther(address comptroller,address fuseAdmin,address interestRateModel,string name,string symbol,address implementation,bytes becomeImplementationData,uint256 reserveFactorMantissa,uint256 adminFeeMantissa)", "",
	)
	CErc20ConstructorData = w3.MustNewFunc(
		"cErc20(address underlying,address comptroller,address fuseAdmin,address interestRateModel,string name,string symbol,address implementation,bytes becomeImplementationData,uint256 reserveFactorMantissa,uint256 adminFeeMantissa)", "",
	)
)

// FusePoolDirectory
var (
	FuncDirectoryInitialize = w3.MustNewFunc(
		"initialize(bool enforceDeployerWhitelist,address[] deployerWhitelist)", "",
	)
	FuncDeployPool = w3.MustNewFunc(
		"deployPool(string name,address implementation,bytes constructorData,bool enforceWhitelist,uint256 closeFactor,uint256 liquidationIncentive,address priceOracle)",
		"uint256,address",
	)
	FuncGetPoolsByAccount = w3.MustNewFunc(
		"getPoolsByAccount(address account)",
		"uint256[],(string name,address creator,address comptroller,uint256 blockPosted,uint256 timestampPosted)[]",
	)
	FuncGetAllPools = w3.MustNewFunc(
		"getAllPools()",
		"(string name,address creator,address comptroller,uint256 blockPosted,uint256 timestampPosted)[]",
	)
	FuncDeployerWhitelist        = w3.MustNewFunc("deployerWhitelist(address account)", "bool")
	FuncEnforceDeployerWhitelist = w3.MustNewFunc("enforceDeployerWhitelist()", "bool")
)

// FuseFeeDistributor
var (
	FuncFeeDistributorInitialize = w3.MustNewFunc("initialize(uint256 interestFeeRate)", "")
	FuncSetPoolLimits            = w3.MustNewFunc(
		"_setPoolLimits(uint256 minBorrowEth,uint256 maxSupplyEth,uint256 maxUtilizationRate)", "",
	)
	FuncInterestFeeRate    = w3.MustNewFunc("interestFeeRate()", "uint256")
	FuncMinBorrowEth       = w3.MustNewFunc("minBorrowEth()", "uint256")
	FuncMaxSupplyEth       = w3.MustNewFunc("maxSupplyEth()", "uint256")
	FuncMaxUtilizationRate = w3.MustNewFunc("maxUtilizationRate()", "uint256")
)

// FusePoolLens and FusePoolLensSecondary
var (
	FuncLensInitialize = w3.MustNewFunc(
		"initialize(address directory,string nativeTokenName,string nativeTokenSymbol)", "",
	)
	FuncLensSecondaryInitialize = w3.MustNewFunc("initialize(address directory)", "")
	FuncGetPoolSummary          = w3.MustNewFunc(
		"getPoolSummary(address comptroller)",
		"uint256,uint256,address[],string[],bool",
	)
	FuncDirectory = w3.MustNewFunc("directory()", "address")
)

// Comptroller / Unitroller
var (
	FuncAdmin                  = w3.MustNewFunc("admin()", "address")
	FuncPendingAdmin           = w3.MustNewFunc("pendingAdmin()", "address")
	FuncAcceptAdmin            = w3.MustNewFunc("_acceptAdmin()", "uint256")
	FuncDeployMarket           = w3.MustNewFunc("_deployMarket(bool isCEther,bytes constructorData,uint256 collateralFactorMantissa)", "uint256")
	FuncGetAllMarkets          = w3.MustNewFunc("getAllMarkets()", "address[]")
	FuncSetWhitelistStatuses   = w3.MustNewFunc("_setWhitelistStatuses(address[] suppliers,bool[] statuses)", "uint256")
	FuncAddRewardsDistributor  = w3.MustNewFunc("_addRewardsDistributor(address distributor)", "uint256")
	FuncGetRewardsDistributors = w3.MustNewFunc("getRewardsDistributors()", "address[]")
	FuncCloseFactor            = w3.MustNewFunc("closeFactorMantissa()", "uint256")
	FuncLiquidationIncentive   = w3.MustNewFunc("liquidationIncentiveMantissa()", "uint256")
	FuncOracle                 = w3.MustNewFunc("oracle()", "address")
	FuncWhitelist              = w3.MustNewFunc("whitelist(address account)", "bool")
)

// Price oracles
var (
	FuncSetDirectPrice = w3.MustNewFunc("setDirectPrice(address asset,uint256 price)", "")
	FuncPrice          = w3.MustNewFunc("price(address underlying)", "uint256")
	FuncSetPriceFeeds  = w3.MustNewFunc("setPriceFeeds(address[] underlyings,address[] feeds,uint8 baseCurrency)", "")
	FuncMPOInitialize  = w3.MustNewFunc(
		"initialize(address[] underlyings,address[] oracles,address defaultOracle,address admin,bool canAdminOverwrite,address wtoken)", "",
	)
	FuncMPOAdd     = w3.MustNewFunc("add(address[] underlyings,address[] oracles)", "")
	FuncMPOOracles = w3.MustNewFunc("oracles(address underlying)", "address")

	FuncMPODefaultOracle   = w3.MustNewFunc("defaultOracle()", "address")
	FuncPriceFeeds         = w3.MustNewFunc("priceFeeds(address underlying)", "address")
	FuncFeedBaseCurrencies = w3.MustNewFunc("feedBaseCurrencies(address underlying)", "uint8")
	FuncCanAdminOverwrite  = w3.MustNewFunc("canAdminOverwrite()", "bool")
	FuncWrappedNativeToken = w3.MustNewFunc("wtoken()", "address")
)

// Flywheel core and static rewards
var (
	FuncSetFlywheelRewards    = w3.MustNewFunc("setFlywheelRewards(address rewards)", "")
	FuncAddStrategyForRewards = w3.MustNewFunc("addStrategyForRewards(address strategy)", "")
	FuncAccrue                = w3.MustNewFunc("accrue(address strategy,address user)", "uint256")
	FuncRewardsAccrued        = w3.MustNewFunc("rewardsAccrued(address user)", "uint256")
	FuncGetAllStrategies      = w3.MustNewFunc("getAllStrategies()", "address[]")
	FuncRewardToken           = w3.MustNewFunc("rewardToken()", "address")
	FuncFlywheelRewards       = w3.MustNewFunc("flywheelRewards()", "address")
	FuncSetRewardsInfo        = w3.MustNewFunc(
		"setRewardsInfo(address strategy,(uint224 rewardsPerSecond,uint32 rewardsEndTimestamp) rewards)", "",
	)
	FuncRewardsInfo = w3.MustNewFunc("rewardsInfo(address strategy)", "uint224,uint32")
)

// ERC20 and CToken views
var (
	FuncTransfer  = w3.MustNewFunc("transfer(address to,uint256 amount)", "bool")
	FuncBalanceOf = w3.MustNewFunc("balanceOf(address account)", "uint256")
	FuncMint      = w3.MustNewFunc("mint(address to,uint256 amount)", "")
	FuncSymbol    = w3.MustNewFunc("symbol()", "string")
	FuncName      = w3.MustNewFunc("name()", "string")
	FuncDecimals  = w3.MustNewFunc("decimals()", "uint8")

	FuncApprove      = w3.MustNewFunc("approve(address spender,uint256 amount)", "bool")
	FuncAllowance    = w3.MustNewFunc("allowance(address owner,address spender)", "uint256")
	FuncTransferFrom = w3.MustNewFunc("transferFrom(address from,address to,uint256 amount)", "bool")

	FuncUnderlying = w3.MustNewFunc("underlying()", "address")
	// FuncMintNative is the payable CEther mint; the supplied amount is msg.value.
	FuncMintNative = w3.MustNewFunc("mint()", "")
	FuncMintMarket = w3.MustNewFunc("mint(uint256 mintAmount)", "uint256")
)

// PoolInfo mirrors the FusePoolDirectory.FusePool struct.
type PoolInfo struct {
	Name            string
	Creator         common.Address
	Comptroller     common.Address
	BlockPosted     *big.Int
	TimestampPosted *big.Int
}

// RewardsInfo mirrors the FlywheelStaticRewards tuple.
type RewardsInfo struct {
	RewardsPerSecond    *big.Int
	RewardsEndTimestamp uint32
}

// ChainlinkBase is the feed base currency enum of ChainlinkPriceOracleV2.
type ChainlinkBase uint8

const (
	ChainlinkBaseNative ChainlinkBase = 0
	ChainlinkBaseUSD    ChainlinkBase = 1
)

// EncodeConstructor packs constructor arguments for appending to creation code.
func EncodeConstructor(ctor *w3.Func, args ...any) ([]byte, error) {
	if ctor == nil {
		return nil, nil
	}

	packed, err := ctor.Args.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack constructor arguments for %s: %w", ctor.Signature, err)
	}

	return packed, nil
}
