package fusetest

import (
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/evm/evmtest"
	"github.com/ethereum/go-ethereum/common"
)

type (
	token struct {
		name       string
		symbol     string
		decimals   uint8
		balances   map[common.Address]*big.Int
		allowances map[common.Address]map[common.Address]*big.Int
	}

	feeDistributor struct {
		owner              common.Address
		interestFeeRate    *big.Int
		minBorrowEth       *big.Int
		maxSupplyEth       *big.Int
		maxUtilizationRate *big.Int
	}

	flywheel struct {
		rewardToken common.Address
		rewards     common.Address
		owner       common.Address
		strategies  []common.Address
		lastUpdated map[common.Address]uint64
		accrued     map[common.Address]*big.Int
	}

	staticRewards struct {
		flywheel common.Address
		owner    common.Address
		info     map[common.Address]contracts.RewardsInfo
	}
)

func (p *Protocol) newToken(call *evmtest.Call, ctorArgs []byte) (*evmtest.Contract, error) {
	args, err := contracts.CtorMockERC20.Args.Unpack(ctorArgs)
	if err != nil {
		return nil, evmtest.Revert("bad constructor arguments: %v", err)
	}

	t := &token{
		name:       args[0].(string),
		symbol:     args[1].(string),
		decimals:   args[2].(uint8),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
	if !call.Static {
		p.tokens[call.Self] = t
	}

	return evmtest.NewContract().
		Handle(contracts.FuncName, func(*evmtest.Call, []any) ([]any, error) {
			return []any{t.name}, nil
		}).
		Handle(contracts.FuncSymbol, func(*evmtest.Call, []any) ([]any, error) {
			return []any{t.symbol}, nil
		}).
		Handle(contracts.FuncDecimals, func(*evmtest.Call, []any) ([]any, error) {
			return []any{t.decimals}, nil
		}).
		Handle(contracts.FuncBalanceOf, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{t.balance(args[0].(common.Address))}, nil
		}).
		Handle(contracts.FuncMint, func(call *evmtest.Call, args []any) ([]any, error) {
			if !call.Static {
				to := args[0].(common.Address)
				t.balances[to] = new(big.Int).Add(t.balance(to), args[1].(*big.Int))
			}
			return nil, nil
		}).
		Handle(contracts.FuncTransfer, func(call *evmtest.Call, args []any) ([]any, error) {
			if err := t.transfer(call, call.From, args[0].(common.Address), args[1].(*big.Int)); err != nil {
				return nil, err
			}
			return []any{true}, nil
		}).
		Handle(contracts.FuncApprove, func(call *evmtest.Call, args []any) ([]any, error) {
			if !call.Static {
				spenders, ok := t.allowances[call.From]
				if !ok {
					spenders = make(map[common.Address]*big.Int)
					t.allowances[call.From] = spenders
				}
				spenders[args[0].(common.Address)] = new(big.Int).Set(args[1].(*big.Int))
			}
			return []any{true}, nil
		}).
		Handle(contracts.FuncAllowance, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{t.allowance(args[0].(common.Address), args[1].(common.Address))}, nil
		}).
		Handle(contracts.FuncTransferFrom, func(call *evmtest.Call, args []any) ([]any, error) {
			if err := t.transferFrom(call, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int)); err != nil {
				return nil, err
			}
			return []any{true}, nil
		}), nil
}

func (t *token) transfer(call *evmtest.Call, from, to common.Address, amount *big.Int) error {
	if t.balance(from).Cmp(amount) < 0 {
		return evmtest.Revert("ERC20: transfer amount exceeds balance")
	}
	if !call.Static {
		t.balances[from] = new(big.Int).Sub(t.balance(from), amount)
		t.balances[to] = new(big.Int).Add(t.balance(to), amount)
	}
	return nil
}

// transferFrom moves tokens on behalf of from with call.From as the spender.
func (t *token) transferFrom(call *evmtest.Call, from, to common.Address, amount *big.Int) error {
	allowed := t.allowance(from, call.From)
	if allowed.Cmp(amount) < 0 {
		return evmtest.Revert("ERC20: insufficient allowance")
	}
	if err := t.transfer(call, from, to, amount); err != nil {
		return err
	}
	if !call.Static {
		t.allowances[from][call.From] = allowed.Sub(allowed, amount)
	}
	return nil
}

func (t *token) allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (t *token) balance(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (p *Protocol) newFeeDistributor(*evmtest.Call, []byte) (*evmtest.Contract, error) {
	f := &feeDistributor{
		interestFeeRate:    new(big.Int),
		minBorrowEth:       new(big.Int),
		maxSupplyEth:       new(big.Int),
		maxUtilizationRate: new(big.Int),
	}

	return evmtest.NewContract().
		Handle(contracts.FuncFeeDistributorInitialize, func(call *evmtest.Call, args []any) ([]any, error) {
			if f.owner != (common.Address{}) {
				return nil, evmtest.Revert("Initializable: contract is already initialized")
			}
			rate := args[0].(*big.Int)
			if rate.Cmp(mantissaOne) > 0 {
				return nil, evmtest.Revert("Interest fee rate cannot be more than 100%%.")
			}
			if !call.Static {
				f.owner = call.From
				f.interestFeeRate = new(big.Int).Set(rate)
			}
			return nil, nil
		}).
		Handle(contracts.FuncSetPoolLimits, func(call *evmtest.Call, args []any) ([]any, error) {
			if call.From != f.owner {
				return nil, evmtest.Revert("Ownable: caller is not the owner")
			}
			if !call.Static {
				f.minBorrowEth = new(big.Int).Set(args[0].(*big.Int))
				f.maxSupplyEth = new(big.Int).Set(args[1].(*big.Int))
				f.maxUtilizationRate = new(big.Int).Set(args[2].(*big.Int))
			}
			return nil, nil
		}).
		Handle(contracts.FuncInterestFeeRate, func(*evmtest.Call, []any) ([]any, error) {
			return []any{f.interestFeeRate}, nil
		}).
		Handle(contracts.FuncMinBorrowEth, func(*evmtest.Call, []any) ([]any, error) {
			return []any{f.minBorrowEth}, nil
		}).
		Handle(contracts.FuncMaxSupplyEth, func(*evmtest.Call, []any) ([]any, error) {
			return []any{f.maxSupplyEth}, nil
		}).
		Handle(contracts.FuncMaxUtilizationRate, func(*evmtest.Call, []any) ([]any, error) {
			return []any{f.maxUtilizationRate}, nil
		}), nil
}

// newFlywheel credits every accrual to the queried user, as if they were the
// only supplier of each strategy.
func (p *Protocol) newFlywheel(_ *evmtest.Call, ctorArgs []byte) (*evmtest.Contract, error) {
	args, err := contracts.CtorFuseFlywheelCore.Args.Unpack(ctorArgs)
	if err != nil {
		return nil, evmtest.Revert("bad constructor arguments: %v", err)
	}

	f := &flywheel{
		rewardToken: args[0].(common.Address),
		rewards:     args[1].(common.Address),
		owner:       args[3].(common.Address),
		lastUpdated: make(map[common.Address]uint64),
		accrued:     make(map[common.Address]*big.Int),
	}

	onlyOwner := func(call *evmtest.Call) error {
		if call.From != f.owner {
			return evmtest.Revert("UNAUTHORIZED")
		}
		return nil
	}

	return evmtest.NewContract().
		Handle(contracts.FuncRewardToken, func(*evmtest.Call, []any) ([]any, error) {
			return []any{f.rewardToken}, nil
		}).
		Handle(contracts.FuncFlywheelRewards, func(*evmtest.Call, []any) ([]any, error) {
			return []any{f.rewards}, nil
		}).
		Handle(contracts.FuncSetFlywheelRewards, func(call *evmtest.Call, args []any) ([]any, error) {
			if err := onlyOwner(call); err != nil {
				return nil, err
			}
			if !call.Static {
				f.rewards = args[0].(common.Address)
			}
			return nil, nil
		}).
		Handle(contracts.FuncAddStrategyForRewards, func(call *evmtest.Call, args []any) ([]any, error) {
			if err := onlyOwner(call); err != nil {
				return nil, err
			}
			strategy := args[0].(common.Address)
			if _, ok := f.lastUpdated[strategy]; ok {
				return nil, evmtest.Revert("strategy")
			}
			if !call.Static {
				f.strategies = append(f.strategies, strategy)
				f.lastUpdated[strategy] = call.Time
			}
			return nil, nil
		}).
		Handle(contracts.FuncGetAllStrategies, func(*evmtest.Call, []any) ([]any, error) {
			return []any{append([]common.Address{}, f.strategies...)}, nil
		}).
		Handle(contracts.FuncRewardsAccrued, func(_ *evmtest.Call, args []any) ([]any, error) {
			return []any{f.accruedOf(args[0].(common.Address))}, nil
		}).
		Handle(contracts.FuncAccrue, func(call *evmtest.Call, args []any) ([]any, error) {
			strategy := args[0].(common.Address)
			user := args[1].(common.Address)

			last, ok := f.lastUpdated[strategy]
			if !ok {
				return []any{new(big.Int)}, nil
			}

			amount := new(big.Int)
			if rewards, ok := p.rewards[f.rewards]; ok {
				amount = rewards.accrued(strategy, last, call.Time)
			}
			total := new(big.Int).Add(f.accruedOf(user), amount)

			if !call.Static {
				f.lastUpdated[strategy] = call.Time
				f.accrued[user] = total
			}
			return []any{total}, nil
		}), nil
}

func (f *flywheel) accruedOf(user common.Address) *big.Int {
	if a, ok := f.accrued[user]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

func (p *Protocol) newStaticRewards(call *evmtest.Call, ctorArgs []byte) (*evmtest.Contract, error) {
	args, err := contracts.CtorFlywheelStaticRewards.Args.Unpack(ctorArgs)
	if err != nil {
		return nil, evmtest.Revert("bad constructor arguments: %v", err)
	}

	r := &staticRewards{
		flywheel: args[0].(common.Address),
		owner:    args[1].(common.Address),
		info:     make(map[common.Address]contracts.RewardsInfo),
	}
	if !call.Static {
		p.rewards[call.Self] = r
	}

	return evmtest.NewContract().
		Handle(contracts.FuncSetRewardsInfo, func(call *evmtest.Call, args []any) ([]any, error) {
			if call.From != r.owner {
				return nil, evmtest.Revert("UNAUTHORIZED")
			}
			info, err := evm.Convert[contracts.RewardsInfo](args[1])
			if err != nil {
				return nil, evmtest.Revert("bad rewards info: %v", err)
			}
			if !call.Static {
				r.info[args[0].(common.Address)] = info
			}
			return nil, nil
		}).
		Handle(contracts.FuncRewardsInfo, func(_ *evmtest.Call, args []any) ([]any, error) {
			info, ok := r.info[args[0].(common.Address)]
			if !ok {
				return []any{new(big.Int), uint32(0)}, nil
			}
			return []any{new(big.Int).Set(info.RewardsPerSecond), info.RewardsEndTimestamp}, nil
		}), nil
}

// accrued follows FlywheelStaticRewards.getAccruedRewards: a zero end
// timestamp means the stream never ends.
func (r *staticRewards) accrued(strategy common.Address, last, now uint64) *big.Int {
	info, ok := r.info[strategy]
	if !ok || info.RewardsPerSecond == nil || now <= last {
		return new(big.Int)
	}

	end := uint64(info.RewardsEndTimestamp)
	switch {
	case end == 0 || end > now:
		return new(big.Int).Mul(info.RewardsPerSecond, new(big.Int).SetUint64(now-last))
	case end > last:
		return new(big.Int).Mul(info.RewardsPerSecond, new(big.Int).SetUint64(end-last))
	default:
		return new(big.Int)
	}
}
