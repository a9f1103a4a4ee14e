package evmtest

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var funcPing = w3.MustNewFunc("ping(uint256 n)", "uint256")

func signed(t *testing.T, chain *Chain, nonce uint64, to *common.Address, data []byte) *types.Transaction {
	t.Helper()

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    new(big.Int),
		Gas:      1_000_000,
		GasPrice: big.NewInt(1),
		Data:     data,
	}), chain.signer, mustKey(t))
	require.NoError(t, err)

	return tx
}

func TestChainMinesOneBlockPerTransaction(t *testing.T) {
	ctx := context.Background()
	chain := NewChain(1337)
	chain.Register([]byte("ping"), func(*Call, []byte) (*Contract, error) {
		return NewContract().Handle(funcPing, func(call *Call, args []any) ([]any, error) {
			n := args[0].(*big.Int)
			return []any{new(big.Int).Add(n, big.NewInt(1))}, nil
		}), nil
	})

	tx := signed(t, chain, 0, nil, []byte("ping"))
	require.NoError(t, chain.SendTransaction(ctx, tx))

	receipt, err := chain.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	from := crypto.PubkeyToAddress(mustKey(t).PublicKey)
	assert.Equal(t, crypto.CreateAddress(from, 0), receipt.ContractAddress)

	block, err := chain.BlockNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), block)

	data, err := funcPing.EncodeArgs(big.NewInt(41))
	require.NoError(t, err)
	out, err := chain.CallContract(ctx, ethereum.CallMsg{To: &receipt.ContractAddress, Data: data}, nil)
	require.NoError(t, err)

	values, err := funcPing.Returns.Unpack(out)
	require.NoError(t, err)
	assert.Equal(t, int64(42), values[0].(*big.Int).Int64())
}

func TestChainRejectsWrongNonce(t *testing.T) {
	chain := NewChain(1337)
	err := chain.SendTransaction(context.Background(), signed(t, chain, 3, nil, nil))
	require.ErrorContains(t, err, "nonce too high")
	assert.Empty(t, chain.Sent())
}

func TestChainUnknownReceipt(t *testing.T) {
	_, err := NewChain(1).TransactionReceipt(context.Background(), common.Hash{1})
	require.ErrorIs(t, err, ethereum.NotFound)
}

func TestCreationWithoutFactoryFails(t *testing.T) {
	ctx := context.Background()
	chain := NewChain(1337)

	tx := signed(t, chain, 0, nil, []byte("unknown"))
	require.NoError(t, chain.SendTransaction(ctx, tx))

	receipt, err := chain.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusFailed, receipt.Status)
}

func TestCreate2Factory(t *testing.T) {
	ctx := context.Background()
	chain := NewChain(1337)
	chain.Register([]byte("ping"), func(*Call, []byte) (*Contract, error) {
		return NewContract(), nil
	})

	salt := common.Hash{7}
	initCode := []byte("ping")
	data := append(salt.Bytes(), initCode...)

	out, err := chain.CallContract(ctx, ethereum.CallMsg{To: &DeterministicDeployer, Data: data}, nil)
	require.NoError(t, err)

	want := crypto.CreateAddress2(DeterministicDeployer, salt, crypto.Keccak256(initCode))
	assert.Equal(t, want, common.BytesToAddress(out))

	code, err := chain.CodeAt(ctx, want, nil)
	require.NoError(t, err)
	assert.Empty(t, code, "eth_call must not install code")

	require.NoError(t, chain.SendTransaction(ctx, signed(t, chain, 0, &DeterministicDeployer, data)))
	code, err = chain.CodeAt(ctx, want, nil)
	require.NoError(t, err)
	assert.Equal(t, initCode, code)
}

func TestIncreaseTime(t *testing.T) {
	ctx := context.Background()
	chain := NewChain(1)

	require.NoError(t, chain.IncreaseTime(ctx, 86_400))
	require.NoError(t, chain.Mine(ctx))

	header, err := chain.HeaderByNumber(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, genesisTime+86_401, header.Time)
	assert.Equal(t, uint64(1), header.Number.Uint64())
}

func mustKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	return key
}
