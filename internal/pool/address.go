package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeAddress derives the comptroller proxy address FusePoolDirectory
// creates: CREATE2 from the directory with salt
// keccak256(abi.encodePacked(creator, name, blockNumber)).
func ComputeAddress(directory, creator common.Address, name string, block *big.Int, unitrollerInitCode []byte) common.Address {
	packed := make([]byte, 0, common.AddressLength+len(name)+32)
	packed = append(packed, creator.Bytes()...)
	packed = append(packed, name...)
	packed = append(packed, common.LeftPadBytes(block.Bytes(), 32)...)

	return crypto.CreateAddress2(directory, crypto.Keccak256Hash(packed), crypto.Keccak256(unitrollerInitCode))
}
