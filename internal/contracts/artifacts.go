package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const FileName = "contracts.json"

type (
	// Artifact is the compiled output of one contract.
	Artifact struct {
		Name     Name
		ABI      abi.ABI
		RawABI   string
		Bytecode []byte
	}

	// Set is the collection of compiled artifacts for one deployment.
	Set map[Name]Artifact
)

// Load reads the compiled contracts.json from the artifacts directory.
func Load(dir string) (Set, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled contracts from %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes a {name: {abi, bytecode}} document. Unknown names are ignored.
func Parse(data []byte) (Set, error) {
	var raw map[string]struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode string          `json:"bytecode"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse compiled contracts: %w", err)
	}

	set := make(Set, len(raw))
	for name, contract := range raw {
		if _, ok := Names[Name(name)]; !ok {
			continue
		}

		parsedABI, err := abi.JSON(bytes.NewReader(contract.ABI))
		if err != nil {
			return nil, fmt.Errorf("failed to parse ABI for %s: %w", name, err)
		}

		bytecodeHex := strings.TrimSpace(contract.Bytecode)
		if !strings.HasPrefix(bytecodeHex, "0x") {
			bytecodeHex = "0x" + bytecodeHex
		}
		bytecode, err := hexutil.Decode(bytecodeHex)
		if err != nil {
			return nil, fmt.Errorf("failed to decode bytecode for %s: %w", name, err)
		}

		set[Name(name)] = Artifact{
			Name:     Name(name),
			ABI:      parsedABI,
			RawABI:   string(contract.ABI),
			Bytecode: bytecode,
		}
	}

	return set, nil
}

// Artifact returns the compiled artifact, failing when it has no creation code.
func (s Set) Artifact(name Name) (Artifact, error) {
	a, ok := s[name]
	if !ok {
		return Artifact{}, fmt.Errorf("no compiled artifact for %s", name)
	}
	if len(a.Bytecode) == 0 {
		return Artifact{}, fmt.Errorf("compiled artifact for %s has no bytecode", name)
	}

	return a, nil
}

// InitCode returns creation code with the packed constructor arguments appended.
func (s Set) InitCode(name Name, ctorArgs []byte) ([]byte, error) {
	a, err := s.Artifact(name)
	if err != nil {
		return nil, err
	}

	code := make([]byte, 0, len(a.Bytecode)+len(ctorArgs))
	code = append(code, a.Bytecode...)
	code = append(code, ctorArgs...)

	return code, nil
}

// Missing lists the requested names without a usable artifact.
func (s Set) Missing(names ...Name) []Name {
	var missing []Name
	for _, name := range names {
		if _, err := s.Artifact(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// CodeHash is keccak256 of the creation code plus constructor arguments, as
// used by CREATE2.
func CodeHash(initCode []byte) common.Hash {
	return crypto.Keccak256Hash(initCode)
}
