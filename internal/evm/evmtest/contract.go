package evmtest

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"
)

type (
	// Call is the execution context a handler runs in.
	Call struct {
		From   common.Address
		Self   common.Address
		Value  *big.Int
		Static bool
		Block  uint64
		Time   uint64

		chain *Chain
	}

	// Handler receives the decoded arguments of fn and returns its outputs.
	Handler func(call *Call, args []any) ([]any, error)

	// RawHandler receives undecoded calldata.
	RawHandler func(call *Call, input []byte) ([]byte, error)

	// Constructor builds a contract from its packed constructor arguments.
	Constructor func(call *Call, ctorArgs []byte) (*Contract, error)

	// Contract is a fake contract dispatching by 4-byte selector.
	Contract struct {
		methods  map[[4]byte]method
		fallback RawHandler
	}

	method struct {
		fn      *w3.Func
		handler Handler
	}

	// RevertError is returned for calls that revert.
	RevertError struct {
		Reason string
	}
)

func (e *RevertError) Error() string {
	return "execution reverted: " + e.Reason
}

// Revert builds a RevertError.
func Revert(format string, args ...any) error {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

func NewContract() *Contract {
	return &Contract{methods: make(map[[4]byte]method)}
}

// Handle registers a handler for fn.
func (c *Contract) Handle(fn *w3.Func, handler Handler) *Contract {
	c.methods[fn.Selector] = method{fn: fn, handler: handler}
	return c
}

// Fallback handles calldata that matches no registered selector.
func (c *Contract) Fallback(handler RawHandler) *Contract {
	c.fallback = handler
	return c
}

func (c *Contract) execute(call *Call, input []byte) ([]byte, error) {
	if len(input) >= 4 {
		var selector [4]byte
		copy(selector[:], input[:4])
		if m, ok := c.methods[selector]; ok {
			args, err := m.fn.Args.Unpack(input[4:])
			if err != nil {
				return nil, Revert("bad calldata for %s: %v", m.fn.Signature, err)
			}

			outputs, err := m.handler(call, args)
			if err != nil {
				return nil, err
			}

			packed, err := m.fn.Returns.Pack(outputs...)
			if err != nil {
				return nil, fmt.Errorf("fake %s returned values that do not match its outputs: %w", m.fn.Signature, err)
			}
			return packed, nil
		}
	}

	if c.fallback != nil {
		return c.fallback(call, input)
	}

	return nil, Revert("unknown selector %x", input[:min(4, len(input))])
}

// Install places a contract created during this call. Static calls only
// report where it would land.
func (c *Call) Install(addr common.Address, code []byte, contract *Contract) error {
	if _, exists := c.chain.contracts[addr]; exists || len(c.chain.code[addr]) > 0 {
		return Revert("contract already exists at %s", addr.Hex())
	}
	if c.Static {
		return nil
	}

	c.chain.install(addr, code, contract)

	return nil
}

// Construct runs the registered constructor matching initCode.
func (c *Call) Construct(initCode []byte) ([]byte, *Contract, error) {
	return c.chain.construct(c, initCode)
}

// HasCode reports whether addr holds code on the chain.
func (c *Call) HasCode(addr common.Address) bool {
	return len(c.chain.code[addr]) > 0
}

// IsRevert reports whether err is a RevertError.
func IsRevert(err error) bool {
	var target *RevertError
	return errors.As(err, &target)
}
