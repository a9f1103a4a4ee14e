package evm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

var ErrNoCode = errors.New("no contract code at address")

type (
	// SimulationError is raised by the dry-run guard before any transaction is
	// sent: the read-only call returned a non-zero status or reverted.
	SimulationError struct {
		Operation string
		Code      *big.Int
		Err       error
	}

	// TransactionError is a mined transaction whose receipt reports failure.
	TransactionError struct {
		Operation string
		Receipt   *types.Receipt
	}

	// PreconditionError rejects invalid caller input before any network call.
	PreconditionError struct {
		Reason string
	}
)

func (e *SimulationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("simulated %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("simulated %s returned error code %s", e.Operation, e.Code)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

func (e *TransactionError) Error() string {
	if e.Receipt == nil {
		return fmt.Sprintf("transaction for %s failed", e.Operation)
	}
	return fmt.Sprintf("transaction %s for %s failed in block %s with status %d (gas used %d)",
		e.Receipt.TxHash.Hex(), e.Operation, e.Receipt.BlockNumber, e.Receipt.Status, e.Receipt.GasUsed)
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// Precondition builds a PreconditionError.
func Precondition(format string, args ...any) error {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}

func IsSimulationError(err error) bool {
	var target *SimulationError
	return errors.As(err, &target)
}

func IsTransactionError(err error) bool {
	var target *TransactionError
	return errors.As(err, &target)
}

func IsPreconditionError(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}
