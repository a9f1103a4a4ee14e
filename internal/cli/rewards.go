package cli

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/rewards"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var RewardsCMD = &cobra.Command{
	Use:   "rewards",
	Short: "Configure flywheel rewards and read what accounts can claim",
}

var (
	rewardsAccount     string
	rewardsComptroller string
	rewardsToken       string
	rewardsPerSecond   string
	rewardsEnd         uint32
	rewardsFunding     string
	rewardsMarkets     []string

	claimableAccount string
	claimablePools   []string
	readRate         float64
	readBurst        int
	readConcurrency  int
)

var rewardsSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Deploy a flywheel with static rewards and attach it to a pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		perSecond, err := parseAmount("rate", rewardsPerSecond)
		if err != nil {
			return err
		}
		funding, err := parseAmount("funding", rewardsFunding)
		if err != nil {
			return err
		}
		comptroller, err := parseAddress("comptroller", rewardsComptroller)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, configs.Values, configs.AccountName(rewardsAccount))
		if err != nil {
			return err
		}
		defer rt.Close()

		token, err := resolveToken(ctx, rt, rewardsToken)
		if err != nil {
			return err
		}

		markets := make([]common.Address, 0, len(rewardsMarkets))
		for _, m := range rewardsMarkets {
			addr, err := parseAddress("market", m)
			if err != nil {
				return err
			}
			markets = append(markets, addr)
		}
		if len(markets) == 0 {
			if markets, err = evm.CallOne[[]common.Address](ctx, rt.client, comptroller, contracts.FuncGetAllMarkets); err != nil {
				return err
			}
		}

		fw, err := rewards.NewWriter(rt.client, rt.artifacts).Setup(ctx, rewards.SetupParams{
			Comptroller: comptroller,
			RewardToken: token,
			Markets:     markets,
			Funding:     funding,
			Info:        rewards.Info{RewardsPerSecond: perSecond, RewardsEndTimestamp: rewardsEnd},
		})
		if err != nil {
			return err
		}

		return printYAML(cmd, map[string]any{
			"flywheel": fw.Core,
			"rewards":  fw.Rewards,
			"token":    token,
			"markets":  markets,
		})
	},
}

var rewardsClaimableCmd = &cobra.Command{
	Use:   "claimable",
	Short: "Aggregate the rewards an account can claim across pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := readerOptions(readRate, readBurst, readConcurrency)
		if err != nil {
			return err
		}
		pools := make([]common.Address, 0, len(claimablePools))
		for _, p := range claimablePools {
			addr, err := parseAddress("pool", p)
			if err != nil {
				return err
			}
			pools = append(pools, addr)
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, configs.Values, configs.AccountDeployer)
		if err != nil {
			return err
		}
		defer rt.Close()

		account, err := resolveAccount(rt.cfg, claimableAccount)
		if err != nil {
			return err
		}

		reader := rewards.NewReader(rt.client, append(opts, rewards.WithMetrics(rt.metrics))...)
		if len(pools) == 0 {
			directory, err := resolveToken(ctx, rt, string(contracts.FusePoolDirectory))
			if err != nil {
				return err
			}
			if pools, err = reader.PoolsOf(ctx, directory, account); err != nil {
				return err
			}
		}

		claims, err := reader.ClaimableRewards(ctx, account, pools)
		if err != nil {
			return err
		}

		type claimView struct {
			Flywheel common.Address `yaml:"flywheel"`
			Token    common.Address `yaml:"token"`
			Amount   string         `yaml:"amount"`
		}
		markets := make(map[string][]claimView, len(claims))
		for market, list := range claims {
			for _, c := range list {
				markets[market.Hex()] = append(markets[market.Hex()], claimView{Flywheel: c.Flywheel, Token: c.RewardToken, Amount: c.Amount.String()})
			}
		}
		totals := make(map[string]string)
		for token, amount := range rewards.TotalByToken(claims) {
			totals[token.Hex()] = amount.String()
		}

		return printYAML(cmd, map[string]any{
			"account": account,
			"markets": markets,
			"totals":  totals,
		})
	},
}

// readerOptions validates the claimable read flags. A rate of zero leaves
// calls unthrottled.
func readerOptions(limit float64, burst, concurrency int) ([]rewards.ReaderOption, error) {
	if limit < 0 {
		return nil, fmt.Errorf("invalid rate limit %v, expected zero or a positive rate", limit)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("invalid concurrency %d, expected at least 1", concurrency)
	}
	opts := []rewards.ReaderOption{rewards.WithConcurrency(concurrency)}
	if limit > 0 {
		if burst < 1 {
			return nil, fmt.Errorf("invalid burst %d, a rate limit needs a burst of at least 1", burst)
		}
		opts = append(opts, rewards.WithRateLimit(rate.Limit(limit), burst))
	}
	return opts, nil
}

// resolveToken accepts a hex address or the name of a stored deployment,
// such as a fixture token symbol.
func resolveToken(ctx context.Context, rt *runtime, value string) (common.Address, error) {
	if common.IsHexAddress(value) {
		return common.HexToAddress(value), nil
	}

	deployed, err := rt.deployed(ctx)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := deployed[value]
	if !ok {
		return common.Address{}, evm.Precondition("no deployment named %s on chain %s", value, rt.chain.Name)
	}
	return addr, nil
}

// resolveAccount accepts a hex address or a configured account name.
func resolveAccount(cfg configs.Config, value string) (common.Address, error) {
	if common.IsHexAddress(value) {
		return common.HexToAddress(value), nil
	}
	return accountAddress(cfg, configs.AccountName(value))
}

func parseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, value)
	}
	return common.HexToAddress(value), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q, expected a non-negative integer", field, value)
	}
	return amount, nil
}

func init() {
	RewardsCMD.PersistentFlags().StringVar(&rewardsAccount, "account", string(configs.AccountDeployer), "Configured account that signs reward transactions")

	f := rewardsSetupCmd.Flags()
	f.StringVar(&rewardsComptroller, "comptroller", "", "Comptroller of the pool to reward")
	f.StringVar(&rewardsToken, "token", "", "Reward token address or deployment name")
	f.StringVar(&rewardsPerSecond, "rate", "", "Reward per second per market in base units")
	f.Uint32Var(&rewardsEnd, "end", 0, "Unix time the stream ends, 0 never ends")
	f.StringVar(&rewardsFunding, "funding", "0", "Amount of reward token sent to the rewards module")
	f.StringSliceVar(&rewardsMarkets, "markets", nil, "Markets to reward, every market of the pool when empty")
	for _, name := range []string{"comptroller", "token", "rate"} {
		_ = rewardsSetupCmd.MarkFlagRequired(name)
	}

	f = rewardsClaimableCmd.Flags()
	f.StringVar(&claimableAccount, "for", string(configs.AccountDeployer), "Account name or address to read claims of")
	f.StringSliceVar(&claimablePools, "pools", nil, "Comptroller addresses of the pools to read, every pool the account supplies to when empty")
	f.Float64Var(&readRate, "rate-limit", 0, "Maximum eth_call rate per second, 0 is unlimited")
	f.IntVar(&readBurst, "burst", 10, "Burst size of the call rate limiter")
	f.IntVar(&readConcurrency, "concurrency", 4, "Pools read in parallel")

	RewardsCMD.AddCommand(rewardsSetupCmd)
	RewardsCMD.AddCommand(rewardsClaimableCmd)
}
