package evmtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeterministicDeployer mirrors evm.DeterministicDeployer; it is installed on
// every new chain.
var DeterministicDeployer = common.HexToAddress("0x4e59b44847b379578588920ca78fbf26c0b4956c")

const genesisTime uint64 = 1_700_000_000

type (
	// Chain is an in-memory chain that mines one block per transaction and runs
	// calls against fake contracts. It satisfies evm.Backend.
	Chain struct {
		mu        sync.Mutex
		chainID   *big.Int
		signer    types.Signer
		block     uint64
		time      uint64
		nonces    map[common.Address]uint64
		code      map[common.Address][]byte
		contracts map[common.Address]*Contract
		factories []factory
		receipts  map[common.Hash]*types.Receipt
		sent      []*types.Transaction
		calls     int
	}

	factory struct {
		prefix []byte
		ctor   Constructor
	}
)

func NewChain(chainID int64) *Chain {
	c := &Chain{
		chainID:   big.NewInt(chainID),
		signer:    types.LatestSignerForChainID(big.NewInt(chainID)),
		time:      genesisTime,
		nonces:    make(map[common.Address]uint64),
		code:      make(map[common.Address][]byte),
		contracts: make(map[common.Address]*Contract),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
	c.install(DeterministicDeployer, []byte("create2-factory"), NewContract().Fallback(c.create2))

	return c
}

// Register makes creation code starting with prefix deployable. The rest of
// the creation code is passed to ctor as packed constructor arguments.
func (c *Chain) Register(prefix []byte, ctor Constructor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.factories = append(c.factories, factory{prefix: bytes.Clone(prefix), ctor: ctor})
}

// SetContract installs a contract directly, without a transaction.
func (c *Chain) SetContract(addr common.Address, code []byte, contract *Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.install(addr, code, contract)
}

// RemoveCode drops the code at addr, e.g. to simulate a chain without the
// CREATE2 factory.
func (c *Chain) RemoveCode(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.code, addr)
	delete(c.contracts, addr)
}

// IncreaseTime moves the clock forward; the next block carries the new time.
func (c *Chain) IncreaseTime(_ context.Context, seconds uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time += seconds
	return nil
}

// Mine produces an empty block.
func (c *Chain) Mine(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextBlock()
	return nil
}

// Sent returns every transaction accepted so far.
func (c *Chain) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*types.Transaction(nil), c.sent...)
}

// Calls returns the number of eth_call requests served.
func (c *Chain) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) BlockNumber(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.block, nil
}

func (c *Chain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return &types.Header{Number: new(big.Int).SetUint64(c.block), Time: c.time}, nil
}

func (c *Chain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return bytes.Clone(c.code[account]), nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nonces[account], nil
}

func (c *Chain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if msg.To == nil {
		return nil, errors.New("eth_call without a target is not supported")
	}

	contract, ok := c.contracts[*msg.To]
	if !ok {
		return nil, nil
	}

	call := c.newCall(msg.From, *msg.To, msg.Value, true)
	return contract.execute(call, msg.Data)
}

func (c *Chain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tx.ChainId().Cmp(c.chainID) != 0 {
		return fmt.Errorf("invalid chain id %s", tx.ChainId())
	}

	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}

	switch expected := c.nonces[from]; {
	case tx.Nonce() < expected:
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", expected, tx.Nonce())
	case tx.Nonce() > expected:
		return fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", expected, tx.Nonce())
	}

	c.nonces[from]++
	c.nextBlock()

	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21_000,
		GasUsed:           21_000,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).SetUint64(c.block),
		BlockHash:         crypto.Keccak256Hash(new(big.Int).SetUint64(c.block).Bytes()),
	}

	if err := c.apply(from, tx, receipt); err != nil {
		receipt.Status = types.ReceiptStatusFailed
		receipt.ContractAddress = common.Address{}
	}

	c.receipts[tx.Hash()] = receipt
	c.sent = append(c.sent, tx)

	return nil
}

func (c *Chain) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	receipt, ok := c.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (c *Chain) apply(from common.Address, tx *types.Transaction, receipt *types.Receipt) error {
	call := c.newCall(from, common.Address{}, tx.Value(), false)

	if tx.To() == nil {
		addr := crypto.CreateAddress(from, tx.Nonce())
		call.Self = addr

		code, contract, err := c.construct(call, tx.Data())
		if err != nil {
			return err
		}
		if err := call.Install(addr, code, contract); err != nil {
			return err
		}
		receipt.ContractAddress = addr
		return nil
	}

	call.Self = *tx.To()
	contract, ok := c.contracts[*tx.To()]
	if !ok {
		return nil
	}

	_, err := contract.execute(call, tx.Data())
	return err
}

func (c *Chain) construct(call *Call, initCode []byte) ([]byte, *Contract, error) {
	for _, f := range c.factories {
		if !bytes.HasPrefix(initCode, f.prefix) {
			continue
		}
		contract, err := f.ctor(call, initCode[len(f.prefix):])
		if err != nil {
			return nil, nil, err
		}
		return bytes.Clone(f.prefix), contract, nil
	}

	return nil, nil, Revert("no fake registered for creation code %x", initCode[:min(8, len(initCode))])
}

func (c *Chain) create2(call *Call, input []byte) ([]byte, error) {
	if len(input) < common.HashLength {
		return nil, Revert("create2 factory: calldata shorter than salt")
	}

	salt := common.BytesToHash(input[:common.HashLength])
	initCode := input[common.HashLength:]
	addr := crypto.CreateAddress2(DeterministicDeployer, salt, crypto.Keccak256(initCode))

	inner := *call
	inner.From = DeterministicDeployer
	inner.Self = addr

	code, contract, err := c.construct(&inner, initCode)
	if err != nil {
		return nil, err
	}
	if err := inner.Install(addr, code, contract); err != nil {
		return nil, err
	}

	return addr.Bytes(), nil
}

func (c *Chain) newCall(from, self common.Address, value *big.Int, static bool) *Call {
	if value == nil {
		value = new(big.Int)
	}
	return &Call{
		From:   from,
		Self:   self,
		Value:  value,
		Static: static,
		Block:  c.block,
		Time:   c.time,
		chain:  c,
	}
}

func (c *Chain) install(addr common.Address, code []byte, contract *Contract) {
	if len(code) == 0 {
		code = []byte{0x00}
	}
	c.code[addr] = bytes.Clone(code)
	if contract != nil {
		c.contracts[addr] = contract
	}
}

func (c *Chain) nextBlock() {
	c.block++
	c.time++
}
