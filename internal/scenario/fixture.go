// Package scenario wires a fresh protocol deployment together with pools and
// reward streams and checks the observable outcome end to end.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/compose-network/fuse-deployer/internal/oracle"
	"github.com/compose-network/fuse-deployer/internal/pool"
	"github.com/compose-network/fuse-deployer/internal/rewards"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoSnapshots = errors.New("chain does not support snapshots")
	// ErrUnexpected reports a scenario that ran but observed the wrong outcome.
	ErrUnexpected = errors.New("scenario outcome mismatch")
)

type (
	// Clock moves block time. devnet.RPC and evmtest.Chain implement it.
	Clock interface {
		IncreaseTime(ctx context.Context, seconds uint64) error
		Mine(ctx context.Context) error
	}

	Snapshotter interface {
		Snapshot(ctx context.Context) (string, error)
		Revert(ctx context.Context, id string) error
	}

	Env struct {
		Chain     chains.ChainConfig
		Client    *evm.Client
		Artifacts contracts.Set
		Store     store.Store
		Settings  deploy.Settings
		Clock     Clock
		// Snapshots is optional; without it Reset fails.
		Snapshots Snapshotter
		Metrics   *metrics.DeployerMetrics
	}

	// Fixture is a deployed and price-configured protocol.
	Fixture struct {
		env         Env
		Deployments deploy.Deployments
		Addresses   map[string]common.Address
		Pools       *pool.SDK
		Writer      *rewards.Writer
		Reader      *rewards.Reader

		snapshot string
		logger   *slog.Logger
	}
)

// Setup deploys the protocol, configures the oracles and, on local chains,
// seeds fixture token prices. A snapshot is taken when the chain supports it.
func Setup(ctx context.Context, env Env) (*Fixture, error) {
	if env.Clock == nil {
		return nil, evm.Precondition("scenario environment needs a clock")
	}

	plan, err := deploy.FusePlan(env.Chain, env.Settings)
	if err != nil {
		return nil, err
	}

	orch := deploy.NewOrchestrator(env.Client, env.Artifacts, env.Store, deploy.WithMetrics(env.Metrics))
	deployments, err := orch.Execute(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy protocol: %w", err)
	}
	addresses := deployments.Addresses()

	addrs := oracle.AddressesFor(env.Chain, addresses)
	if _, err := oracle.NewConfigurator(env.Client, addrs).Configure(ctx, oracle.MappingsFor(env.Chain)); err != nil {
		return nil, err
	}
	if env.Chain.Local && len(env.Chain.Prices) > 0 {
		prices, err := oracle.PricesFor(env.Chain, addresses)
		if err != nil {
			return nil, err
		}
		if err := oracle.NewSeeder(env.Client, addrs.Fallback, addrs.Master).Seed(ctx, prices); err != nil {
			return nil, err
		}
	}

	poolContracts, err := pool.ContractsFrom(addresses)
	if err != nil {
		return nil, err
	}

	f := &Fixture{
		env:         env,
		Deployments: deployments,
		Addresses:   addresses,
		Pools:       pool.New(env.Client, poolContracts, env.Artifacts),
		Writer:      rewards.NewWriter(env.Client, env.Artifacts),
		Reader:      rewards.NewReader(env.Client, rewards.WithMetrics(env.Metrics)),
		logger:      logger.Named("scenario"),
	}

	if env.Snapshots != nil {
		if f.snapshot, err = env.Snapshots.Snapshot(ctx); err != nil {
			return nil, err
		}
	}

	f.logger.
		With("chain", env.Chain.Name).
		With("contracts", len(addresses)).
		Info("scenario fixture ready")

	return f, nil
}

// Reset reverts the chain to the state right after Setup.
func (f *Fixture) Reset(ctx context.Context) error {
	if f.env.Snapshots == nil || f.snapshot == "" {
		return ErrNoSnapshots
	}
	if err := f.env.Snapshots.Revert(ctx, f.snapshot); err != nil {
		return err
	}

	id, err := f.env.Snapshots.Snapshot(ctx)
	if err != nil {
		return err
	}
	f.snapshot = id
	return nil
}

// Advance moves block time forward and mines a block.
func (f *Fixture) Advance(ctx context.Context, seconds uint64) error {
	if err := f.env.Clock.IncreaseTime(ctx, seconds); err != nil {
		return err
	}
	return f.env.Clock.Mine(ctx)
}
