package store

import (
	"context"
	"errors"
	"time"

	"github.com/compose-network/fuse-deployer/internal/contracts"
	"github.com/ethereum/go-ethereum/common"
)

var ErrNotFound = errors.New("deployment record not found")

type (
	// Record is one named deployment on one chain. Initialized tracks whether
	// the step's one-time initializers completed, so an interrupted run can
	// resume them without re-running ones that already succeeded.
	Record struct {
		ChainID       int64          `json:"chainId"`
		Name          string         `json:"name"`
		Contract      contracts.Name `json:"contract"`
		Address       common.Address `json:"address"`
		Deterministic bool           `json:"deterministic"`
		Initialized   bool           `json:"initialized"`
		RunID         string         `json:"runId"`
		TxHash        common.Hash    `json:"txHash"`
		Block         uint64         `json:"block"`
		UpdatedAt     time.Time      `json:"updatedAt"`
	}

	// Store persists deployment records keyed by (chain id, name).
	Store interface {
		Get(ctx context.Context, chainID int64, name string) (Record, error)
		Put(ctx context.Context, record Record) error
		List(ctx context.Context, chainID int64) ([]Record, error)
		Close() error
	}
)
