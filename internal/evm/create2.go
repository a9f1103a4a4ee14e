package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeterministicDeployer is the keyless CREATE2 factory present on most EVM
// chains and pre-installed by anvil. Calldata is salt ++ initcode.
var DeterministicDeployer = common.HexToAddress("0x4e59b44847b379578588920ca78fbf26c0b4956c")

// SaltFor derives the deployment salt from the deployer identity.
func SaltFor(deployer common.Address) common.Hash {
	return crypto.Keccak256Hash(deployer.Bytes())
}

// DeterministicAddress is where initCode lands when sent through
// DeterministicDeployer with the given salt.
func DeterministicAddress(salt common.Hash, initCode []byte) common.Address {
	return crypto.CreateAddress2(DeterministicDeployer, salt, crypto.Keccak256(initCode))
}
