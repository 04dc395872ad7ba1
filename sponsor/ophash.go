package sponsor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Kinetic-Labs/kinetic-relay/models"
)

// ABI types used for canonical operation encoding. NewType only fails on
// malformed type strings, so errors here would be programming mistakes.
var (
	abiAddress, _ = abi.NewType("address", "", nil)
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiBytes32, _ = abi.NewType("bytes32", "", nil)
)

var packArguments = abi.Arguments{
	{Type: abiAddress}, // sender
	{Type: abiUint256}, // nonce
	{Type: abiBytes32}, // keccak(initCode)
	{Type: abiBytes32}, // keccak(callData)
	{Type: abiUint256}, // callGasLimit
	{Type: abiUint256}, // verificationGasLimit
	{Type: abiUint256}, // preVerificationGas
	{Type: abiUint256}, // maxFeePerGas
	{Type: abiUint256}, // maxPriorityFeePerGas
}

var hashArguments = abi.Arguments{
	{Type: abiBytes32}, // keccak(packed operation)
	{Type: abiAddress}, // sponsor contract
	{Type: abiUint256}, // chain id
}

// OperationHash computes the deterministic hash the sponsor signs and the
// wallet owner co-signs: keccak256(abi.encode(keccak256(pack(op)), sponsor,
// chainId)). SponsorAndData and Signature are excluded from the packing so
// the hash is stable across the two fill-in passes, and the encoding is
// plain ABI so any independent verifier can reproduce it byte for byte.
func OperationHash(op *models.UserOperation, sponsorContract common.Address, chainID uint64) (common.Hash, error) {
	packed, err := packOperation(op)
	if err != nil {
		return common.Hash{}, err
	}

	encoded, err := hashArguments.Pack(
		crypto.Keccak256Hash(packed),
		sponsorContract,
		new(big.Int).SetUint64(chainID),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode operation hash input: %w", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

func packOperation(op *models.UserOperation) ([]byte, error) {
	nonce, err := op.NonceBig()
	if err != nil {
		return nil, err
	}
	initCode, err := op.InitCodeBytes()
	if err != nil {
		return nil, err
	}
	callData, err := op.CallDataBytes()
	if err != nil {
		return nil, err
	}
	gas, err := op.GasFields()
	if err != nil {
		return nil, err
	}

	packed, err := packArguments.Pack(
		op.Sender,
		nonce,
		crypto.Keccak256Hash(initCode),
		crypto.Keccak256Hash(callData),
		gas[0], gas[1], gas[2], gas[3], gas[4],
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack operation: %w", err)
	}
	return packed, nil
}
