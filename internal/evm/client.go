package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/compose-network/fuse-deployer/internal/metrics"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
)

const (
	DefaultGasLimit  uint64 = 10_000_000
	DefaultTxTimeout        = 2 * time.Minute
)

type (
	// Client signs and submits transactions for a single account. Submissions are
	// serialized and each one is awaited before the next, so the account nonce
	// sequence never races.
	Client struct {
		backend   Backend
		key       *ecdsa.PrivateKey
		from      common.Address
		chainID   *big.Int
		signer    types.Signer
		gasLimit  uint64
		txTimeout time.Duration
		mu        sync.Mutex
		metrics   *metrics.DeployerMetrics
		logger    *slog.Logger
	}

	Option func(*Client)

	// DeterministicResult reports where a CREATE2 deployment landed and whether
	// this call created it.
	DeterministicResult struct {
		Address  common.Address
		Deployed bool
		Receipt  *types.Receipt
	}
)

func WithGasLimit(gasLimit uint64) Option {
	return func(c *Client) {
		if gasLimit > 0 {
			c.gasLimit = gasLimit
		}
	}
}

func WithTxTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.txTimeout = timeout
		}
	}
}

func WithMetrics(m *metrics.DeployerMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient binds a signer to the backend. The chain id is fetched once.
func NewClient(ctx context.Context, backend Backend, privateKeyHex string, opts ...Option) (*Client, error) {
	key, err := ParsePrivateKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	c := &Client{
		backend:   backend,
		key:       key,
		from:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		signer:    types.LatestSignerForChainID(chainID),
		gasLimit:  DefaultGasLimit,
		txTimeout: DefaultTxTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Named("evm_client").With("from", c.from.Hex())

	return c, nil
}

func (c *Client) From() common.Address {
	return c.from
}

func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) Backend() Backend {
	return c.backend
}

func (c *Client) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

// BlockTime returns the timestamp of the latest block.
func (c *Client) BlockTime(ctx context.Context) (uint64, error) {
	header, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest header: %w", err)
	}
	return header.Time, nil
}

// Call runs a read-only call from this account and unpacks the outputs.
func (c *Client) Call(ctx context.Context, to common.Address, fn *w3.Func, args ...any) ([]any, error) {
	data, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", Operation(fn), err)
	}

	output, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s on %s: %w", Operation(fn), to.Hex(), err)
	}

	if len(output) == 0 && len(fn.Returns) > 0 {
		code, err := c.CodeAt(ctx, to)
		if err != nil {
			return nil, err
		}
		if len(code) == 0 {
			return nil, fmt.Errorf("failed to call %s: %w: %s", Operation(fn), ErrNoCode, to.Hex())
		}
	}

	values, err := fn.Returns.Unpack(output)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", Operation(fn), err)
	}

	return values, nil
}

// Transact encodes and sends a call, waiting for it to be mined.
func (c *Client) Transact(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error) {
	data, err := fn.EncodeArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", Operation(fn), err)
	}

	return c.Send(ctx, Operation(fn), &to, nil, data)
}

// TransactChecked is Transact behind the dry-run guard: fn must return a
// Compound-style error code, and the transaction is only sent when the
// simulated code is zero.
func (c *Client) TransactChecked(ctx context.Context, to common.Address, fn *w3.Func, args ...any) (*types.Receipt, error) {
	op := Operation(fn)
	simulate := func(ctx context.Context) (*big.Int, error) {
		return CallOne[*big.Int](ctx, c, to, fn, args...)
	}
	commit := func(ctx context.Context) (*types.Receipt, error) {
		return c.Transact(ctx, to, fn, args...)
	}

	return Guard(ctx, op, simulate, commit, c.metrics)
}

// Send signs a legacy transaction with the next nonce, submits it and waits for
// the receipt. A mined but failed transaction returns the receipt together with
// a *TransactionError.
func (c *Client) Send(ctx context.Context, operation string, to *common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce for %s: %w", operation, err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if value == nil {
		value = new(big.Int)
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s: %w", operation, err)
	}

	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", operation, err)
	}

	c.logger.
		With("operation", operation).
		With("tx_hash", tx.Hash().Hex()).
		With("nonce", nonce).
		Debug("transaction sent")

	waitCtx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for %s (%s): %w", operation, tx.Hash().Hex(), err)
	}

	ok := receipt.Status == types.ReceiptStatusSuccessful
	c.metrics.ObserveTransaction(operation, ok)
	if !ok {
		c.logger.
			With("operation", operation).
			With("tx_hash", tx.Hash().Hex()).
			With("block", receipt.BlockNumber).
			Error("transaction failed")
		return receipt, &TransactionError{Operation: operation, Receipt: receipt}
	}

	c.logger.
		With("operation", operation).
		With("tx_hash", tx.Hash().Hex()).
		With("block", receipt.BlockNumber).
		Info("transaction mined")

	return receipt, nil
}

// Deploy sends a plain CREATE transaction.
func (c *Client) Deploy(ctx context.Context, name string, initCode []byte) (common.Address, *types.Receipt, error) {
	receipt, err := c.Send(ctx, "deploy "+name, nil, nil, initCode)
	if err != nil {
		return common.Address{}, receipt, err
	}

	if receipt.ContractAddress == (common.Address{}) {
		return common.Address{}, receipt, fmt.Errorf("deploy %s: receipt has no contract address", name)
	}

	return receipt.ContractAddress, receipt, nil
}

// DeployDeterministic deploys initCode through the CREATE2 factory. When code
// already exists at the derived address nothing is sent.
func (c *Client) DeployDeterministic(ctx context.Context, name string, salt common.Hash, initCode []byte) (DeterministicResult, error) {
	addr := DeterministicAddress(salt, initCode)

	code, err := c.CodeAt(ctx, addr)
	if err != nil {
		return DeterministicResult{}, err
	}
	if len(code) > 0 {
		return DeterministicResult{Address: addr}, nil
	}

	factoryCode, err := c.CodeAt(ctx, DeterministicDeployer)
	if err != nil {
		return DeterministicResult{}, err
	}
	if len(factoryCode) == 0 {
		return DeterministicResult{}, fmt.Errorf("deterministic deployment factory missing: %w: %s", ErrNoCode, DeterministicDeployer.Hex())
	}

	data := make([]byte, 0, common.HashLength+len(initCode))
	data = append(data, salt.Bytes()...)
	data = append(data, initCode...)

	receipt, err := c.Send(ctx, "deploy "+name, &DeterministicDeployer, nil, data)
	if err != nil {
		return DeterministicResult{Address: addr, Receipt: receipt}, err
	}

	code, err = c.CodeAt(ctx, addr)
	if err != nil {
		return DeterministicResult{}, err
	}
	if len(code) == 0 {
		return DeterministicResult{Address: addr, Receipt: receipt}, fmt.Errorf("deploy %s: %w: %s", name, ErrNoCode, addr.Hex())
	}

	return DeterministicResult{Address: addr, Deployed: true, Receipt: receipt}, nil
}

// CallOne calls fn and converts its first output to T.
func CallOne[T any](ctx context.Context, c *Client, to common.Address, fn *w3.Func, args ...any) (T, error) {
	var zero T

	values, err := c.Call(ctx, to, fn, args...)
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, fmt.Errorf("%s returned no values", Operation(fn))
	}

	return Convert[T](values[0])
}

// Convert turns one unpacked ABI value into T, including anonymous tuple
// structs into a struct with matching fields. Mismatched shapes are reported
// as errors before anything is copied.
func Convert[T any](v any) (T, error) {
	var out T
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	if v == nil {
		return out, fmt.Errorf("cannot convert nil to %T", out)
	}

	from, to := reflect.TypeOf(v), reflect.TypeOf(&out).Elem()
	if !convertible(from, to) {
		return out, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	if from.ConvertibleTo(to) {
		return reflect.ValueOf(v).Convert(to).Interface().(T), nil
	}

	converted, ok := abi.ConvertType(v, new(T)).(*T)
	if !ok {
		return out, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	return *converted, nil
}

// convertible accepts plain Go conversions and structs or slices whose
// fields line up position by position.
func convertible(from, to reflect.Type) bool {
	switch {
	case from == to:
		return true
	case to.Kind() == reflect.String:
		return from.Kind() == reflect.String
	case from.Kind() == reflect.Slice && to.Kind() == reflect.Array:
		return false
	case from.ConvertibleTo(to):
		return true
	case from.Kind() == reflect.Struct && to.Kind() == reflect.Struct:
		if from.NumField() != to.NumField() {
			return false
		}
		for i := range from.NumField() {
			if !convertible(from.Field(i).Type, to.Field(i).Type) {
				return false
			}
		}
		return true
	case from.Kind() == reflect.Slice && to.Kind() == reflect.Slice:
		return convertible(from.Elem(), to.Elem())
	}
	return false
}

// Operation is the function name of fn, used as a label in logs and errors.
func Operation(fn *w3.Func) string {
	name, _, _ := strings.Cut(fn.Signature, "(")
	return name
}

// IsNotFound reports whether err is the JSON-RPC not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}
