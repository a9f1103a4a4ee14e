package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/compose-network/fuse-deployer/configs"
	"github.com/compose-network/fuse-deployer/internal/chains"
	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/compose-network/fuse-deployer/internal/deploy"
	"github.com/compose-network/fuse-deployer/internal/deploy/store"
	"github.com/compose-network/fuse-deployer/internal/evm"
	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// runtime is everything a chain-facing command needs: a signer bound to the
// target chain, its constant table, the deployment store and the artifacts.
type runtime struct {
	cfg       configs.Config
	chain     chains.ChainConfig
	backend   *ethclient.Client
	client    *evm.Client
	store     store.Store
	artifacts contracts.Set
	metrics   *metrics.DeployerMetrics
	logger    *slog.Logger
}

func openRuntime(ctx context.Context, cfg configs.Config, account configs.AccountName) (*runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := cfg.PrivateKey(account)
	if err != nil {
		return nil, err
	}

	backend, err := evm.Dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		backend: backend,
		metrics: metrics.Deployer(),
		logger:  logger.Named("fusectl"),
	}

	if rt.chain, err = resolveChain(ctx, cfg.Network, backend); err != nil {
		rt.Close()
		return nil, err
	}

	rt.client, err = evm.NewClient(ctx, backend, key,
		evm.WithGasLimit(cfg.Network.GasLimit),
		evm.WithTxTimeout(time.Duration(cfg.Network.TimeoutSeconds)*time.Second),
		evm.WithMetrics(rt.metrics),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if rt.store, err = openStore(ctx, cfg.Store); err != nil {
		rt.Close()
		return nil, err
	}

	if rt.artifacts, err = contracts.Load(cfg.Artifacts.Dir); err != nil {
		rt.Close()
		return nil, err
	}

	rt.logger = rt.logger.
		With("chain_id", rt.chain.ID).
		With("chain", rt.chain.Name).
		With("account", rt.client.From().Hex())

	return rt, nil
}

// resolveChain picks the chain table. A configured chain id must match the
// node; zero defers to the node.
func resolveChain(ctx context.Context, network configs.Network, backend evm.Backend) (chains.ChainConfig, error) {
	nodeID, err := backend.ChainID(ctx)
	if err != nil {
		return chains.ChainConfig{}, fmt.Errorf("failed to get chain ID: %w", err)
	}

	id := nodeID.Int64()
	if network.ChainID != 0 && network.ChainID != id {
		return chains.ChainConfig{}, fmt.Errorf("network.chain-id is %d but %s serves chain %d", network.ChainID, network.RPCURL, id)
	}

	registry, err := chains.Load()
	if err != nil {
		return chains.ChainConfig{}, err
	}

	chain, ok := registry.Lookup(id)
	if !ok {
		if name, known := chains.KnownChains[id]; known {
			return chains.ChainConfig{}, fmt.Errorf("chain %s (%d) has no constant table", name, id)
		}
		return chains.ChainConfig{}, fmt.Errorf("unsupported chain %d", id)
	}

	return chain, nil
}

func openStore(ctx context.Context, cfg configs.Store) (store.Store, error) {
	switch cfg.Driver {
	case configs.StoreDriverPostgres:
		return store.NewPostgresStore(ctx, cfg.DSN)
	default:
		return store.NewJSONStore(cfg.Path), nil
	}
}

// deployed returns the addresses of every stored deployment on the chain.
func (r *runtime) deployed(ctx context.Context) (map[string]common.Address, error) {
	records, err := r.store.List(ctx, r.chain.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, evm.Precondition("nothing is deployed on chain %s yet, run deploy first", r.chain.Name)
	}

	deployments := make(deploy.Deployments, len(records))
	for _, record := range records {
		deployments[record.Name] = record
	}

	return deployments.Addresses(), nil
}

func (r *runtime) Close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.With("err", err.Error()).Warn("failed to close deployment store")
		}
	}
	if r.backend != nil {
		r.backend.Close()
	}
}
