package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	committed := 0
	commit := func(context.Context) (*types.Receipt, error) {
		committed++
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
	}
	status := func(code int64) Simulation {
		return func(context.Context) (*big.Int, error) { return big.NewInt(code), nil }
	}

	t.Run("zero commits", func(t *testing.T) {
		committed = 0
		receipt, err := Guard(context.Background(), "op", status(0), commit, nil)
		require.NoError(t, err)
		assert.NotNil(t, receipt)
		assert.Equal(t, 1, committed)
	})

	t.Run("non-zero code", func(t *testing.T) {
		committed = 0
		_, err := Guard(context.Background(), "op", status(9), commit, nil)

		var simErr *SimulationError
		require.True(t, errors.As(err, &simErr))
		assert.Equal(t, int64(9), simErr.Code.Int64())
		assert.Equal(t, "simulated op returned error code 9", err.Error())
		assert.Zero(t, committed)
	})

	t.Run("simulation error", func(t *testing.T) {
		committed = 0
		cause := errors.New("execution reverted")
		_, err := Guard(context.Background(), "op", func(context.Context) (*big.Int, error) {
			return nil, cause
		}, commit, nil)

		require.ErrorIs(t, err, cause)
		assert.True(t, IsSimulationError(err))
		assert.Zero(t, committed)
	})
}

func TestPrecondition(t *testing.T) {
	err := Precondition("whitelist is empty for pool %q", "TEST")
	assert.True(t, IsPreconditionError(err))
	assert.False(t, IsSimulationError(err))
	assert.Equal(t, `precondition failed: whitelist is empty for pool "TEST"`, err.Error())
}

func TestAddressFromPrivateKey(t *testing.T) {
	addr, err := AddressFromPrivateKey("59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", addr.Hex())

	_, err = AddressFromPrivateKey("0xnothex")
	require.Error(t, err)
}
