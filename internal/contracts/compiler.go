package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/compose-network/fuse-deployer/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Runner executes an external command in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

// Compiler compiles the protocol contracts with forge and writes contracts.json.
type Compiler struct {
	contractsRootDir string
	outputDir        string
	run              Runner
	logger           *slog.Logger
}

// NewCompiler creates a new contract compiler
func NewCompiler(contractsRootDir, outputDir string) *Compiler {
	return &Compiler{
		contractsRootDir: contractsRootDir,
		outputDir:        outputDir,
		run:              execRunner,
		logger:           logger.Named("contracts_compiler"),
	}
}

// WithRunner replaces the command runner, mostly for tests.
func (c *Compiler) WithRunner(run Runner) *Compiler {
	c.run = run
	return c
}

// Compile compiles Solidity contracts and persists the output
func (c *Compiler) Compile(ctx context.Context, contractNames []string) error {
	c.logger.
		With("contracts_dir", c.contractsRootDir).
		With("contracts", len(contractNames)).
		Info("starting contract compilation")

	c.logger.Info("installing forge dependencies")
	if _, err := c.run(ctx, c.contractsRootDir, "forge", "install"); err != nil {
		return fmt.Errorf("failed to install dependencies: %w", err)
	}

	jsonContracts := make(map[string]map[string]any, len(contractNames))
	for _, name := range contractNames {
		if _, ok := Names[Name(name)]; !ok {
			return fmt.Errorf("unknown contract %q", name)
		}

		c.logger.With("contract", name).Info("compiling contract")

		abiJSON, bytecodeHex, err := c.compileContractRaw(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to compile %s: %w", name, err)
		}

		jsonContracts[name] = map[string]any{
			"abi":      json.RawMessage(abiJSON),
			"bytecode": bytecodeHex,
		}
	}

	if err := c.writeContractsJSON(jsonContracts); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}

	c.logger.With("output", filepath.Join(c.outputDir, FileName)).Info("contracts compiled successfully")

	return nil
}

func (c *Compiler) compileContractRaw(ctx context.Context, contractName string) ([]byte, string, error) {
	abiOutput, err := c.run(ctx, c.contractsRootDir, "forge", "inspect", contractName, "abi", "--json")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get ABI for %s: %w", contractName, err)
	}

	if _, err := abi.JSON(strings.NewReader(string(abiOutput))); err != nil {
		return nil, "", fmt.Errorf("failed to parse ABI for %s: %w", contractName, err)
	}

	bytecodeOutput, err := c.run(ctx, c.contractsRootDir, "forge", "inspect", contractName, "bytecode")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get bytecode for %s: %w", contractName, err)
	}

	bytecode := strings.TrimSpace(string(bytecodeOutput))
	if bytecode == "" || bytecode == "0x" {
		return nil, "", fmt.Errorf("forge returned empty bytecode for %s", contractName)
	}

	return abiOutput, bytecode, nil
}

func (c *Compiler) writeContractsJSON(contracts map[string]map[string]any) error {
	if err := os.MkdirAll(c.outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(contracts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal contracts: %w", err)
	}

	if err := os.WriteFile(filepath.Join(c.outputDir, FileName), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}

	return nil
}

func execRunner(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr

	return cmd.Output()
}
