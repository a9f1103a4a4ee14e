package devnet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode mimics the anvil test namespaces.
type fakeNode struct {
	mu        sync.Mutex
	time      uint64
	blocks    uint64
	balances  map[common.Address]*big.Int
	snapshots map[string]uint64
	nextID    int
	resets    int
}

type evmAPI struct{ n *fakeNode }

func (a evmAPI) Snapshot() string {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	id := fmt.Sprintf("0x%x", a.n.nextID)
	a.n.nextID++
	a.n.snapshots[id] = a.n.time
	return id
}

func (a evmAPI) Revert(id string) bool {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	t, ok := a.n.snapshots[id]
	if !ok {
		return false
	}
	delete(a.n.snapshots, id)
	a.n.time = t
	return true
}

func (a evmAPI) IncreaseTime(seconds uint64) uint64 {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	a.n.time += seconds
	return a.n.time
}

func (a evmAPI) Mine() string {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	a.n.blocks++
	return "0x0"
}

type anvilAPI struct{ n *fakeNode }

func (a anvilAPI) SetBalance(account common.Address, wei *hexutil.Big) error {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	a.n.balances[account] = wei.ToInt()
	return nil
}

func (a anvilAPI) Reset() error {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	a.n.resets++
	a.n.time = 0
	return nil
}

func newFakeRPC(t *testing.T) (*RPC, *fakeNode) {
	t.Helper()

	node := &fakeNode{
		balances:  make(map[common.Address]*big.Int),
		snapshots: make(map[string]uint64),
	}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("evm", evmAPI{node}))
	require.NoError(t, server.RegisterName("anvil", anvilAPI{node}))
	t.Cleanup(server.Stop)

	r := NewRPC(rpc.DialInProc(server))
	t.Cleanup(r.Close)

	return r, node
}

func TestAdvanceDays(t *testing.T) {
	ctx := context.Background()
	r, node := newFakeRPC(t)

	require.NoError(t, r.AdvanceDays(ctx, 2))
	assert.Equal(t, uint64(2*secondsPerDay), node.time)
	assert.Equal(t, uint64(1), node.blocks)
}

func TestSnapshotRevert(t *testing.T) {
	ctx := context.Background()
	r, node := newFakeRPC(t)

	id, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x0", id)

	require.NoError(t, r.IncreaseTime(ctx, 100))
	require.NoError(t, r.Revert(ctx, id))
	assert.Zero(t, node.time)

	err = r.Revert(ctx, id)
	require.ErrorContains(t, err, "was not reverted")
}

func TestSetBalanceAndReset(t *testing.T) {
	ctx := context.Background()
	r, node := newFakeRPC(t)

	account := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	wei, _ := new(big.Int).SetString("100000000000000000000", 10)
	require.NoError(t, r.SetBalance(ctx, account, wei))
	assert.Equal(t, 0, wei.Cmp(node.balances[account]))

	require.NoError(t, r.Reset(ctx))
	assert.Equal(t, 1, node.resets)
}
