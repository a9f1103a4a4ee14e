package cli

import (
	"context"
	"fmt"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/deploy"
	"github.com/compose-network/fuse-deployer/internal/deploy/output"
	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/compose-network/fuse-deployer/internal/oracle"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var DeployCMD = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the protocol contracts and configure the price oracles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMetrics(cmd.Context(), configs.Values.Metrics.Listen, func(ctx context.Context) error {
			rt, err := openRuntime(ctx, configs.Values, configs.AccountDeployer)
			if err != nil {
				return err
			}
			defer rt.Close()

			return runDeploy(ctx, rt)
		})
	},
}

func runDeploy(ctx context.Context, rt *runtime) error {
	if err := rt.chain.RequireDeployable(rt.logger); err != nil {
		return err
	}

	settings, err := deploy.SettingsFromConfig(rt.cfg)
	if err != nil {
		return err
	}

	plan, err := deploy.FusePlan(rt.chain, settings)
	if err != nil {
		return err
	}

	rt.logger.With("steps", len(plan.Steps)).Info("deploying protocol")

	orch := deploy.NewOrchestrator(rt.client, rt.artifacts, rt.store, deploy.WithMetrics(rt.metrics))
	deployments, err := orch.Execute(ctx, plan)
	if err != nil {
		return fmt.Errorf("deployment failed: %w", err)
	}
	addresses := deployments.Addresses()

	addrs := oracle.AddressesFor(rt.chain, addresses)
	result, err := oracle.NewConfigurator(rt.client, addrs).Configure(ctx, oracle.MappingsFor(rt.chain))
	if err != nil {
		return fmt.Errorf("oracle configuration failed: %w", err)
	}
	rt.logger.
		With("feeds_set", result.FeedsSet).
		With("initialized", result.Initialized).
		Info("price oracles configured")

	if rt.chain.Local && len(rt.chain.Prices) > 0 {
		prices, err := oracle.PricesFor(rt.chain, addresses)
		if err != nil {
			return err
		}
		if err := oracle.NewSeeder(rt.client, addrs.Fallback, addrs.Master).Seed(ctx, prices); err != nil {
			return fmt.Errorf("price seeding failed: %w", err)
		}
	}

	records, err := rt.store.List(ctx, rt.chain.ID)
	if err != nil {
		return err
	}

	if path := rt.cfg.Deploy.OutputFile; path != "" {
		err := output.NewGenerator().Generate(path, output.Input{
			ChainID:   rt.chain.ID,
			ChainName: rt.chain.Name,
			RPCURL:    rt.cfg.Network.RPCURL,
			Deployer:  rt.client.From(),
			Records:   records,
			Artifacts: rt.artifacts,
		})
		if err != nil {
			return err
		}
		rt.logger.With("path", path).Info("deployment output written")
	}

	rt.logger.With("contracts", len(addresses)).Info("protocol deployed")

	return nil
}

// withMetrics runs fn while serving the metrics endpoint. The endpoint stops
// once fn returns.
func withMetrics(ctx context.Context, listen string, fn func(ctx context.Context) error) error {
	if listen == "" {
		return fn(ctx)
	}

	serveCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return metrics.Serve(gctx, listen)
	})
	g.Go(func() error {
		defer stop()
		return fn(gctx)
	})

	return g.Wait()
}
