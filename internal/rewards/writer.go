// Package rewards deploys flywheel reward distributors for pool markets and
// reads what they have accrued.
package rewards

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

type (
	// Info is the per-market reward stream of a static rewards module. A zero
	// end timestamp never ends.
	Info struct {
		RewardsPerSecond    *big.Int
		RewardsEndTimestamp uint32
	}

	Flywheel struct {
		Core    common.Address
		Rewards common.Address
	}

	SetupParams struct {
		Comptroller common.Address
		RewardToken common.Address
		Markets     []common.Address
		Funding     *big.Int
		Info        Info
	}

	// Writer sends the flywheel configuration transactions one at a time.
	Writer struct {
		client    *evm.Client
		artifacts contracts.Set
		logger    *slog.Logger
	}
)

func NewWriter(client *evm.Client, artifacts contracts.Set) *Writer {
	return &Writer{
		client:    client,
		artifacts: artifacts,
		logger:    logger.Named("rewards_writer"),
	}
}

// Setup deploys a flywheel with static rewards, registers it with the pool,
// funds it and starts the reward stream on every market.
func (w *Writer) Setup(ctx context.Context, params SetupParams) (Flywheel, error) {
	if params.RewardToken == (common.Address{}) {
		return Flywheel{}, evm.Precondition("reward token is required")
	}
	if len(params.Markets) == 0 {
		return Flywheel{}, evm.Precondition("at least one market is required")
	}
	if params.Info.RewardsPerSecond == nil || params.Info.RewardsPerSecond.Sign() <= 0 {
		return Flywheel{}, evm.Precondition("rewards per second must be positive")
	}

	var fw Flywheel
	var err error

	if fw.Core, err = w.DeployFlywheelCore(ctx, params.RewardToken); err != nil {
		return fw, err
	}
	if fw.Rewards, err = w.DeployStaticRewards(ctx, fw.Core); err != nil {
		return fw, err
	}
	if err := w.SetFlywheelRewards(ctx, fw.Core, fw.Rewards); err != nil {
		return fw, err
	}
	if err := w.AddFlywheelToComptroller(ctx, params.Comptroller, fw.Core); err != nil {
		return fw, err
	}
	if params.Funding != nil && params.Funding.Sign() > 0 {
		if err := w.Fund(ctx, params.RewardToken, fw.Rewards, params.Funding); err != nil {
			return fw, err
		}
	}
	for _, market := range params.Markets {
		if err := w.AddMarketForRewards(ctx, fw.Core, market); err != nil {
			return fw, err
		}
		if err := w.SetStaticRewardInfo(ctx, fw.Rewards, market, params.Info); err != nil {
			return fw, err
		}
	}

	w.logger.
		With("comptroller", params.Comptroller.Hex()).
		With("flywheel", fw.Core.Hex()).
		With("rewards", fw.Rewards.Hex()).
		With("markets", len(params.Markets)).
		Info("flywheel rewards configured")

	return fw, nil
}

func (w *Writer) DeployFlywheelCore(ctx context.Context, rewardToken common.Address) (common.Address, error) {
	var zero common.Address
	return w.deploy(ctx, contracts.FuseFlywheelCore, contracts.CtorFuseFlywheelCore,
		rewardToken, zero, zero, w.client.From(), zero)
}

func (w *Writer) DeployStaticRewards(ctx context.Context, flywheel common.Address) (common.Address, error) {
	return w.deploy(ctx, contracts.FlywheelStaticRewards, contracts.CtorFlywheelStaticRewards,
		flywheel, w.client.From(), common.Address{})
}

func (w *Writer) SetFlywheelRewards(ctx context.Context, flywheel, rewards common.Address) error {
	if _, err := w.client.Transact(ctx, flywheel, contracts.FuncSetFlywheelRewards, rewards); err != nil {
		return fmt.Errorf("failed to bind rewards %s to flywheel %s: %w", rewards.Hex(), flywheel.Hex(), err)
	}
	return nil
}

// AddFlywheelToComptroller registers the flywheel as a rewards distributor.
// The comptroller returns an error code, so the call goes through the
// dry-run guard.
func (w *Writer) AddFlywheelToComptroller(ctx context.Context, comptroller, flywheel common.Address) error {
	if _, err := w.client.TransactChecked(ctx, comptroller, contracts.FuncAddRewardsDistributor, flywheel); err != nil {
		return fmt.Errorf("failed to add flywheel %s to comptroller %s: %w", flywheel.Hex(), comptroller.Hex(), err)
	}
	return nil
}

// Fund transfers reward tokens and checks the recipient balance grew by
// exactly amount.
func (w *Writer) Fund(ctx context.Context, token, to common.Address, amount *big.Int) error {
	before, err := evm.CallOne[*big.Int](ctx, w.client, token, contracts.FuncBalanceOf, to)
	if err != nil {
		return err
	}

	if _, err := w.client.Transact(ctx, token, contracts.FuncTransfer, to, amount); err != nil {
		return fmt.Errorf("failed to fund %s with %s of %s: %w", to.Hex(), amount, token.Hex(), err)
	}

	after, err := evm.CallOne[*big.Int](ctx, w.client, token, contracts.FuncBalanceOf, to)
	if err != nil {
		return err
	}
	if got := new(big.Int).Sub(after, before); got.Cmp(amount) != 0 {
		return fmt.Errorf("funding %s: balance grew by %s, expected %s", to.Hex(), got, amount)
	}

	return nil
}

func (w *Writer) AddMarketForRewards(ctx context.Context, flywheel, market common.Address) error {
	if _, err := w.client.Transact(ctx, flywheel, contracts.FuncAddStrategyForRewards, market); err != nil {
		return fmt.Errorf("failed to add market %s to flywheel %s: %w", market.Hex(), flywheel.Hex(), err)
	}
	return nil
}

func (w *Writer) SetStaticRewardInfo(ctx context.Context, rewards, market common.Address, info Info) error {
	tuple := contracts.RewardsInfo{
		RewardsPerSecond:    info.RewardsPerSecond,
		RewardsEndTimestamp: info.RewardsEndTimestamp,
	}
	if _, err := w.client.Transact(ctx, rewards, contracts.FuncSetRewardsInfo, market, tuple); err != nil {
		return fmt.Errorf("failed to set reward info of market %s: %w", market.Hex(), err)
	}
	return nil
}

func (w *Writer) deploy(ctx context.Context, name contracts.Name, ctor *w3.Func, args ...any) (common.Address, error) {
	ctorArgs, err := contracts.EncodeConstructor(ctor, args...)
	if err != nil {
		return common.Address{}, err
	}
	initCode, err := w.artifacts.InitCode(name, ctorArgs)
	if err != nil {
		return common.Address{}, err
	}

	addr, _, err := w.client.Deploy(ctx, string(name), initCode)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to deploy %s: %w", name, err)
	}

	w.logger.With("contract", name).With("address", addr.Hex()).Info("contract deployed")
	return addr, nil
}
