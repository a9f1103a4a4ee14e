package evm

import (
	"context"
	"math/big"

	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/ethereum/go-ethereum/core/types"
)

type (
	// Simulation runs the read-only variant of a state-changing call and returns
	// its status code.
	Simulation func(ctx context.Context) (*big.Int, error)
	// Commit issues the real state-changing call.
	Commit func(ctx context.Context) (*types.Receipt, error)
)

// Guard runs simulate and only calls commit when it succeeded with status zero.
// Any other outcome is a *SimulationError and nothing is sent.
func Guard(ctx context.Context, operation string, simulate Simulation, commit Commit, m *metrics.DeployerMetrics) (*types.Receipt, error) {
	code, err := simulate(ctx)
	if err != nil {
		m.ObserveSimulation(operation, metrics.SimulationErrored)
		return nil, &SimulationError{Operation: operation, Err: err}
	}
	if code == nil || code.Sign() != 0 {
		m.ObserveSimulation(operation, metrics.SimulationRejected)
		return nil, &SimulationError{Operation: operation, Code: code}
	}

	m.ObserveSimulation(operation, metrics.SimulationAccepted)

	return commit(ctx)
}
