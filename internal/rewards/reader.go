package rewards

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const defaultConcurrency = 4

type (
	MarketReward struct {
		Market      common.Address
		Flywheel    common.Address
		Rewards     common.Address
		RewardToken common.Address
		Info        Info
	}

	// Claimable is what account would receive from one flywheel for one
	// market. Accrued is the simulated accrue total and Amount the part not yet
	// recorded on chain.
	Claimable struct {
		Market      common.Address
		Flywheel    common.Address
		RewardToken common.Address
		Accrued     *big.Int
		Amount      *big.Int
	}

	// Reader fans read-only calls out across pools, one goroutine per pool,
	// and merges the results by market address.
	Reader struct {
		client      *evm.Client
		limiter     *rate.Limiter
		concurrency int
		metrics     *metrics.DeployerMetrics
		logger      *slog.Logger
	}

	ReaderOption func(*Reader)
)

// WithRateLimit caps the eth_call rate shared by all pool readers.
func WithRateLimit(limit rate.Limit, burst int) ReaderOption {
	return func(r *Reader) {
		r.limiter = rate.NewLimiter(limit, burst)
	}
}

func WithConcurrency(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.DeployerMetrics) ReaderOption {
	return func(r *Reader) {
		r.metrics = m
	}
}

func NewReader(client *evm.Client, opts ...ReaderOption) *Reader {
	r := &Reader{
		client:      client,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		concurrency: defaultConcurrency,
		logger:      logger.Named("rewards_reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MarketRewardsByPools lists the reward streams configured on the markets of
// each pool.
func (r *Reader) MarketRewardsByPools(ctx context.Context, pools []common.Address) (map[common.Address][]MarketReward, error) {
	merged, err := fanOut(ctx, r, pools, r.marketRewards)
	if err != nil {
		return nil, err
	}
	for _, rewards := range merged {
		sort.Slice(rewards, func(i, j int) bool {
			return bytes.Compare(rewards[i].Flywheel.Bytes(), rewards[j].Flywheel.Bytes()) < 0
		})
	}
	return merged, nil
}

// ClaimableRewards simulates accrue for account on every rewarded market of
// each pool.
func (r *Reader) ClaimableRewards(ctx context.Context, account common.Address, pools []common.Address) (map[common.Address][]Claimable, error) {
	merged, err := fanOut(ctx, r, pools, func(ctx context.Context, pool common.Address) (map[common.Address][]Claimable, error) {
		return r.claimable(ctx, account, pool)
	})
	if err != nil {
		return nil, err
	}
	for _, claims := range merged {
		sort.Slice(claims, func(i, j int) bool {
			return bytes.Compare(claims[i].Flywheel.Bytes(), claims[j].Flywheel.Bytes()) < 0
		})
	}
	return merged, nil
}

// PoolsOf lists the pools registered in directory where account holds a
// balance in at least one market, in directory order.
func (r *Reader) PoolsOf(ctx context.Context, directory, account common.Address) ([]common.Address, error) {
	infos, err := callOne[[]contracts.PoolInfo](ctx, r, directory, contracts.FuncGetAllPools)
	if err != nil {
		return nil, fmt.Errorf("failed to list pools of directory %s: %w", directory.Hex(), err)
	}

	all := make([]common.Address, len(infos))
	for i, info := range infos {
		all[i] = info.Comptroller
	}

	supplied, err := fanOut(ctx, r, all, func(ctx context.Context, pool common.Address) (map[common.Address][]struct{}, error) {
		markets, err := callOne[[]common.Address](ctx, r, pool, contracts.FuncGetAllMarkets)
		if err != nil {
			return nil, err
		}
		for _, market := range markets {
			balance, err := callOne[*big.Int](ctx, r, market, contracts.FuncBalanceOf, account)
			if err != nil {
				return nil, err
			}
			if balance.Sign() > 0 {
				return map[common.Address][]struct{}{pool: {{}}}, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	pools := make([]common.Address, 0, len(supplied))
	for _, pool := range all {
		if _, ok := supplied[pool]; ok {
			pools = append(pools, pool)
		}
	}
	return pools, nil
}

// TotalByToken sums claimable amounts per reward token.
func TotalByToken(claims map[common.Address][]Claimable) map[common.Address]*big.Int {
	totals := make(map[common.Address]*big.Int)
	for _, list := range claims {
		for _, c := range list {
			total, ok := totals[c.RewardToken]
			if !ok {
				total = new(big.Int)
				totals[c.RewardToken] = total
			}
			total.Add(total, c.Amount)
		}
	}
	return totals
}

func fanOut[T any](
	ctx context.Context,
	r *Reader,
	pools []common.Address,
	read func(context.Context, common.Address) (map[common.Address][]T, error),
) (map[common.Address][]T, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	merged := make(map[common.Address][]T)

	for _, pool := range pools {
		g.Go(func() error {
			got, err := read(ctx, pool)
			r.metrics.ObserveRewardRead(err == nil)
			if err != nil {
				return fmt.Errorf("pool %s: %w", pool.Hex(), err)
			}

			mu.Lock()
			defer mu.Unlock()
			for market, values := range got {
				merged[market] = append(merged[market], values...)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.With("pools", len(pools)).With("markets", len(merged)).Debug("reward reads merged")
	return merged, nil
}

// flywheelView is one distributor of a pool with the pool markets it rewards.
type flywheelView struct {
	core        common.Address
	rewards     common.Address
	rewardToken common.Address
	markets     []common.Address
}

func (r *Reader) flywheels(ctx context.Context, pool common.Address) ([]flywheelView, error) {
	markets, err := callOne[[]common.Address](ctx, r, pool, contracts.FuncGetAllMarkets)
	if err != nil {
		return nil, err
	}
	inPool := make(map[common.Address]struct{}, len(markets))
	for _, m := range markets {
		inPool[m] = struct{}{}
	}

	distributors, err := callOne[[]common.Address](ctx, r, pool, contracts.FuncGetRewardsDistributors)
	if err != nil {
		return nil, err
	}

	views := make([]flywheelView, 0, len(distributors))
	for _, fw := range distributors {
		view := flywheelView{core: fw}
		if view.rewards, err = callOne[common.Address](ctx, r, fw, contracts.FuncFlywheelRewards); err != nil {
			return nil, err
		}
		if view.rewardToken, err = callOne[common.Address](ctx, r, fw, contracts.FuncRewardToken); err != nil {
			return nil, err
		}

		strategies, err := callOne[[]common.Address](ctx, r, fw, contracts.FuncGetAllStrategies)
		if err != nil {
			return nil, err
		}
		for _, s := range strategies {
			if _, ok := inPool[s]; ok {
				view.markets = append(view.markets, s)
			}
		}
		views = append(views, view)
	}

	return views, nil
}

func (r *Reader) marketRewards(ctx context.Context, pool common.Address) (map[common.Address][]MarketReward, error) {
	views, err := r.flywheels(ctx, pool)
	if err != nil {
		return nil, err
	}

	out := make(map[common.Address][]MarketReward)
	for _, v := range views {
		for _, market := range v.markets {
			values, err := call(ctx, r, v.rewards, contracts.FuncRewardsInfo, market)
			if err != nil {
				return nil, err
			}
			perSecond, err := evm.Convert[*big.Int](values[0])
			if err != nil {
				return nil, err
			}
			end, err := evm.Convert[uint32](values[1])
			if err != nil {
				return nil, err
			}

			out[market] = append(out[market], MarketReward{
				Market:      market,
				Flywheel:    v.core,
				Rewards:     v.rewards,
				RewardToken: v.rewardToken,
				Info:        Info{RewardsPerSecond: perSecond, RewardsEndTimestamp: end},
			})
		}
	}

	return out, nil
}

func (r *Reader) claimable(ctx context.Context, account, pool common.Address) (map[common.Address][]Claimable, error) {
	views, err := r.flywheels(ctx, pool)
	if err != nil {
		return nil, err
	}

	out := make(map[common.Address][]Claimable)
	for _, v := range views {
		if len(v.markets) == 0 {
			continue
		}

		recorded, err := callOne[*big.Int](ctx, r, v.core, contracts.FuncRewardsAccrued, account)
		if err != nil {
			return nil, err
		}

		for _, market := range v.markets {
			accrued, err := callOne[*big.Int](ctx, r, v.core, contracts.FuncAccrue, market, account)
			if err != nil {
				return nil, err
			}

			amount := new(big.Int).Sub(accrued, recorded)
			if amount.Sign() < 0 {
				amount.SetInt64(0)
			}

			out[market] = append(out[market], Claimable{
				Market:      market,
				Flywheel:    v.core,
				RewardToken: v.rewardToken,
				Accrued:     accrued,
				Amount:      amount,
			})
		}
	}

	return out, nil
}

func call(ctx context.Context, r *Reader, to common.Address, fn *w3.Func, args ...any) ([]any, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.client.Call(ctx, to, fn, args...)
}

func callOne[T any](ctx context.Context, r *Reader, to common.Address, fn *w3.Func, args ...any) (T, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return evm.CallOne[T](ctx, r.client, to, fn, args...)
}
