package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

/*
Orchestrator runs a deployment plan for one signer:
  - sorts the plan's steps by dependency
  - deploys each contract through the CREATE2 factory, skipping addresses that already hold code
  - runs one-time initializers for contracts it created, or that a previous run left uninitialized
  - persists a record per step so later commands can resolve addresses by name
*/
type Orchestrator struct {
	client    *evm.Client
	artifacts contracts.Set
	store     store.Store
	metrics   *metrics.DeployerMetrics
	now       func() time.Time
	logger    *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

func WithMetrics(m *metrics.DeployerMetrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// NewOrchestrator creates an orchestrator deploying with client's signer.
func NewOrchestrator(client *evm.Client, artifacts contracts.Set, st store.Store, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:    client,
		artifacts: artifacts,
		store:     st,
		now:       time.Now,
		logger:    logger.Named("deploy_orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute deploys every step of the plan in dependency order. The first
// failure aborts the run; nothing already deployed is rolled back.
func (o *Orchestrator) Execute(ctx context.Context, plan Plan) (Deployments, error) {
	steps, err := plan.Sort()
	if err != nil {
		return nil, fmt.Errorf("failed to order deployment plan: %w", err)
	}

	if missing := o.artifacts.Missing(plan.Contracts()...); len(missing) > 0 {
		return nil, fmt.Errorf("missing compiled artifacts: %v", missing)
	}

	runID := uuid.NewString()
	chainID := o.client.ChainID().Int64()
	salt := evm.SaltFor(o.client.From())

	log := o.logger.
		With("run_id", runID).
		With("chain_id", chainID).
		With("deployer", o.client.From().Hex())
	log.With("steps", len(steps)).Info("starting deployment run")

	deployments := make(Deployments, len(steps))
	for _, step := range steps {
		record, err := o.executeStep(ctx, log, runID, chainID, salt, step, deployments.restrict(step.DependsOn))
		if err != nil {
			return deployments, fmt.Errorf("failed to deploy %s: %w", step.Name, err)
		}
		deployments[step.Name] = record
	}

	log.With("contracts", len(deployments)).Info("deployment run completed")

	return deployments, nil
}

func (o *Orchestrator) executeStep(
	ctx context.Context,
	log *slog.Logger,
	runID string,
	chainID int64,
	salt common.Hash,
	step Step,
	deps Deployments,
) (store.Record, error) {
	log = log.With("step", step.Name).With("contract", string(step.Contract))

	var ctorArgs []byte
	if step.Args != nil {
		args, err := step.Args(deps)
		if err != nil {
			return store.Record{}, fmt.Errorf("failed to build constructor arguments: %w", err)
		}
		ctorArgs = args
	}

	initCode, err := o.artifacts.InitCode(step.Contract, ctorArgs)
	if err != nil {
		return store.Record{}, err
	}

	previous, err := o.store.Get(ctx, chainID, step.Name)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.Record{}, err
	}

	record := store.Record{
		ChainID:       chainID,
		Name:          step.Name,
		Contract:      step.Contract,
		Deterministic: step.Deterministic,
		RunID:         runID,
	}

	deployed := false
	if step.Deterministic {
		result, err := o.client.DeployDeterministic(ctx, step.Name, salt, initCode)
		if err != nil {
			return store.Record{}, err
		}
		record.Address = result.Address
		deployed = result.Deployed
		if result.Receipt != nil {
			record.TxHash = result.Receipt.TxHash
			record.Block = result.Receipt.BlockNumber.Uint64()
		}
	} else {
		reuse, err := o.reusable(ctx, previous, found, step.Contract)
		if err != nil {
			return store.Record{}, err
		}
		if reuse {
			record.Address = previous.Address
		} else {
			addr, receipt, err := o.client.Deploy(ctx, step.Name, initCode)
			if err != nil {
				return store.Record{}, err
			}
			record.Address = addr
			record.TxHash = receipt.TxHash
			record.Block = receipt.BlockNumber.Uint64()
			deployed = true
		}
	}

	if !deployed && found && previous.Address == record.Address {
		record.TxHash = previous.TxHash
		record.Block = previous.Block
	}

	// An existing contract without a record of ours is assumed initialized:
	// the initializers are one-shot and would revert.
	needsInit := step.Init != nil && (deployed || (found && previous.Address == record.Address && !previous.Initialized))
	record.Initialized = step.Init == nil || !needsInit

	outcome := metrics.DeploymentSkipped
	if deployed {
		outcome = metrics.DeploymentDeployed
	}
	o.metrics.ObserveDeployment(string(step.Contract), outcome)

	log = log.With("address", record.Address.Hex())
	if deployed {
		log.With("tx_hash", record.TxHash.Hex()).Info("contract deployed")
	} else {
		log.Info("contract already deployed, skipping")
	}

	if err := o.save(ctx, record); err != nil {
		return store.Record{}, err
	}

	if !needsInit {
		return record, nil
	}

	log.Info("running initializers")
	if err := step.Init(ctx, Env{Client: o.client, Address: record.Address, Deployments: deps}); err != nil {
		return store.Record{}, fmt.Errorf("failed to initialize: %w", err)
	}

	record.Initialized = true
	if err := o.save(ctx, record); err != nil {
		return store.Record{}, err
	}

	return record, nil
}

// reusable reports whether a non-deterministic step's stored address still
// holds code on chain.
func (o *Orchestrator) reusable(ctx context.Context, previous store.Record, found bool, contract contracts.Name) (bool, error) {
	if !found || previous.Contract != contract {
		return false, nil
	}

	code, err := o.client.CodeAt(ctx, previous.Address)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

func (o *Orchestrator) save(ctx context.Context, record store.Record) error {
	record.UpdatedAt = o.now().UTC()
	if err := o.store.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to persist deployment record: %w", err)
	}
	return nil
}
