package devnet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const secondsPerDay = 24 * 60 * 60

// RPC wraps the anvil/hardhat test methods.
type RPC struct {
	client *rpc.Client
}

func DialRPC(ctx context.Context, url string) (*RPC, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	return NewRPC(client), nil
}

func NewRPC(client *rpc.Client) *RPC {
	return &RPC{client: client}
}

func (r *RPC) Close() {
	r.client.Close()
}

// Snapshot records the chain state and returns its id for Revert.
func (r *RPC) Snapshot(ctx context.Context) (string, error) {
	var id string
	if err := r.client.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("evm_snapshot failed: %w", err)
	}
	return id, nil
}

// Revert restores a snapshot. Snapshots are single use.
func (r *RPC) Revert(ctx context.Context, id string) error {
	var ok bool
	if err := r.client.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return fmt.Errorf("evm_revert failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("snapshot %s was not reverted", id)
	}
	return nil
}

func (r *RPC) IncreaseTime(ctx context.Context, seconds uint64) error {
	if err := r.client.CallContext(ctx, nil, "evm_increaseTime", seconds); err != nil {
		return fmt.Errorf("evm_increaseTime failed: %w", err)
	}
	return nil
}

func (r *RPC) Mine(ctx context.Context) error {
	if err := r.client.CallContext(ctx, nil, "evm_mine"); err != nil {
		return fmt.Errorf("evm_mine failed: %w", err)
	}
	return nil
}

// AdvanceDays moves block time forward and mines a block at the new time.
func (r *RPC) AdvanceDays(ctx context.Context, days uint64) error {
	if err := r.IncreaseTime(ctx, days*secondsPerDay); err != nil {
		return err
	}
	return r.Mine(ctx)
}

func (r *RPC) SetBalance(ctx context.Context, account common.Address, wei *big.Int) error {
	if err := r.client.CallContext(ctx, nil, "anvil_setBalance", account, (*hexutil.Big)(wei)); err != nil {
		return fmt.Errorf("anvil_setBalance failed: %w", err)
	}
	return nil
}

// Reset drops all state back to genesis.
func (r *RPC) Reset(ctx context.Context) error {
	if err := r.client.CallContext(ctx, nil, "anvil_reset"); err != nil {
		return fmt.Errorf("anvil_reset failed: %w", err)
	}
	return nil
}
