package contracts

type Name string

const (
	Comptroller            Name = "Comptroller"
	Unitroller             Name = "Unitroller"
	FusePoolDirectory      Name = "FusePoolDirectory"
	FuseSafeLiquidator     Name = "FuseSafeLiquidator"
	FuseFeeDistributor     Name = "FuseFeeDistributor"
	FusePoolLens           Name = "FusePoolLens"
	FusePoolLensSecondary  Name = "FusePoolLensSecondary"
	JumpRateModel          Name = "JumpRateModel"
	WhitePaperInterestRate Name = "WhitePaperInterestRateModel"
	CErc20Delegate         Name = "CErc20Delegate"
	CEtherDelegate         Name = "CEtherDelegate"
	SimplePriceOracle      Name = "SimplePriceOracle"
	ChainlinkPriceOracleV2 Name = "ChainlinkPriceOracleV2"
	MasterPriceOracle      Name = "MasterPriceOracle"
	FuseFlywheelCore       Name = "FuseFlywheelCore"
	FlywheelStaticRewards  Name = "FlywheelStaticRewards"
	MockERC20              Name = "MockERC20"
)

// Names is every artifact the tool knows how to compile and deploy.
var Names = map[Name]struct{}{
	Comptroller:            {},
	Unitroller:             {},
	FusePoolDirectory:      {},
	FuseSafeLiquidator:     {},
	FuseFeeDistributor:     {},
	FusePoolLens:           {},
	FusePoolLensSecondary:  {},
	JumpRateModel:          {},
	WhitePaperInterestRate: {},
	CErc20Delegate:         {},
	CEtherDelegate:         {},
	SimplePriceOracle:      {},
	ChainlinkPriceOracleV2: {},
	MasterPriceOracle:      {},
	FuseFlywheelCore:       {},
	FlywheelStaticRewards:  {},
	MockERC20:              {},
}
