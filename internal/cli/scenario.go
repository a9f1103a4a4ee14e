package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/deploy"
	"github.com/compose-network/fuse-deployer/internal/devnet"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/scenario"
	"github.com/spf13/cobra"
)

var ScenarioCMD = &cobra.Command{
	Use:   "scenario",
	Short: "Run end-to-end protocol scenarios against a local node",
}

var (
	scenarioDays  uint64
	scenarioRate  string
	scenarioToken string
	scenarioReset bool
)

var scenarioRunCmd = &cobra.Command{
	Use:       "run <name>",
	Short:     "Deploy the protocol and run a scenario: " + strings.Join(scenario.Names, ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: scenario.Names,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMetrics(cmd.Context(), configs.Values.Metrics.Listen, func(ctx context.Context) error {
			return runScenario(ctx, cmd, args[0])
		})
	},
}

func runScenario(ctx context.Context, cmd *cobra.Command, name string) error {
	rt, err := openRuntime(ctx, configs.Values, configs.AccountDeployer)
	if err != nil {
		return err
	}
	defer rt.Close()

	if !rt.chain.Local {
		return evm.Precondition("scenarios move block time and only run on local chains, %s is not one", rt.chain.Name)
	}

	node, err := devnet.DialRPC(ctx, rt.cfg.Network.RPCURL)
	if err != nil {
		return err
	}
	defer node.Close()

	settings, err := deploy.SettingsFromConfig(rt.cfg)
	if err != nil {
		return err
	}

	f, err := scenario.Setup(ctx, scenario.Env{
		Chain:     rt.chain,
		Client:    rt.client,
		Artifacts: rt.artifacts,
		Store:     rt.store,
		Settings:  settings,
		Clock:     node,
		Snapshots: node,
		Metrics:   rt.metrics,
	})
	if err != nil {
		return err
	}

	var result any
	switch name {
	case scenario.RewardsAcrossPoolsName:
		opts := scenario.RewardsOptions{Days: scenarioDays, RewardToken: scenarioToken}
		if scenarioRate != "" {
			if opts.RewardsPerSecond, err = parseAmount("rate", scenarioRate); err != nil {
				return err
			}
		}
		result, err = f.RewardsAcrossPools(ctx, opts)
	default:
		result, err = f.Run(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("scenario %s failed: %w", name, err)
	}

	if scenarioReset {
		if err := f.Reset(ctx); err != nil {
			return err
		}
	}

	return printYAML(cmd, report(result))
}

func report(result any) map[string]any {
	switch r := result.(type) {
	case scenario.PoolWithMarketsResult:
		markets := make(map[string]any, len(r.Assets))
		for _, a := range r.Assets {
			markets[a.Symbol] = a.Market
		}
		return map[string]any{
			"pool":        r.Pool.Name,
			"comptroller": r.Pool.Comptroller,
			"markets":     markets,
			"symbols":     r.Summary.Symbols,
		}
	case scenario.RewardsResult:
		return map[string]any{
			"rewarded-pool":      r.Configured.Pool.Comptroller,
			"plain-pool":         r.Unconfigured.Pool.Comptroller,
			"flywheel":           r.Flywheel.Core,
			"reward-token":       r.RewardToken,
			"elapsed-seconds":    r.Elapsed,
			"rewarded-claimable": r.ConfiguredTotal.String(),
			"plain-claimable":    r.UnconfiguredTotal.String(),
		}
	default:
		return map[string]any{"result": fmt.Sprintf("%v", result)}
	}
}

func init() {
	f := scenarioRunCmd.Flags()
	f.Uint64Var(&scenarioDays, "days", 1, "Days of block time the rewards scenario advances")
	f.StringVar(&scenarioRate, "rate", "", "Rewards per second per market in base units")
	f.StringVar(&scenarioToken, "token", "", "Fixture symbol of the reward token")
	f.BoolVar(&scenarioReset, "reset", false, "Revert the node to the post-deployment snapshot afterwards")

	ScenarioCMD.AddCommand(scenarioRunCmd)
}
