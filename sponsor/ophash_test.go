package sponsor_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/assert"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

var sponsorContract = common.HexToAddress("0x5555555555555555555555555555555555555555")

func validOperation() *models.UserOperation {
	return &models.UserOperation{
		Sender:               common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"),
		Nonce:                "0x7",
		InitCode:             "0x",
		CallData:             "0xdeadbeef",
		CallGasLimit:         "0x30000",
		VerificationGasLimit: "0x20000",
		PreVerificationGas:   "0x10000",
		MaxFeePerGas:         "0x3b9aca00",
		MaxPriorityFeePerGas: "0x3b9aca00",
	}
}

func TestOperationHash_Deterministic(t *testing.T) {
	op := validOperation()

	h1, err := sponsor.OperationHash(op, sponsorContract, 8453)
	assert.NoError(t, err)
	h2, err := sponsor.OperationHash(op, sponsorContract, 8453)
	assert.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.That(t, h1 != (common.Hash{}))
}

func TestOperationHash_IgnoresMutableFields(t *testing.T) {
	op := validOperation()
	base, err := sponsor.OperationHash(op, sponsorContract, 8453)
	assert.NoError(t, err)

	// sponsorAndData and signature are filled in after hashing; they must
	// not shift the hash
	op.SponsorAndData = "0x5555555555555555555555555555555555555555cafe"
	op.Signature = "0xdeadbeef"
	again, err := sponsor.OperationHash(op, sponsorContract, 8453)
	assert.NoError(t, err)
	assert.Equal(t, base, again)
}

func TestOperationHash_SensitiveToEveryPackedField(t *testing.T) {
	base, err := sponsor.OperationHash(validOperation(), sponsorContract, 8453)
	assert.NoError(t, err)

	mutations := []func(op *models.UserOperation){
		func(op *models.UserOperation) { op.Sender = common.HexToAddress("0x01") },
		func(op *models.UserOperation) { op.Nonce = "0x8" },
		func(op *models.UserOperation) { op.InitCode = "0x01" },
		func(op *models.UserOperation) { op.CallData = "0xdeadbeee" },
		func(op *models.UserOperation) { op.CallGasLimit = "0x30001" },
		func(op *models.UserOperation) { op.VerificationGasLimit = "0x20001" },
		func(op *models.UserOperation) { op.PreVerificationGas = "0x10001" },
		func(op *models.UserOperation) { op.MaxFeePerGas = "0x3b9aca01" },
		func(op *models.UserOperation) { op.MaxPriorityFeePerGas = "0x3b9aca01" },
	}
	for i, mutate := range mutations {
		op := validOperation()
		mutate(op)
		h, err := sponsor.OperationHash(op, sponsorContract, 8453)
		assert.NoError(t, err)
		if h == base {
			t.Errorf("mutation %d did not change the hash", i)
		}
	}
}

func TestOperationHash_BindsSponsorAndChain(t *testing.T) {
	op := validOperation()
	base, err := sponsor.OperationHash(op, sponsorContract, 8453)
	assert.NoError(t, err)

	otherSponsor, err := sponsor.OperationHash(op, common.HexToAddress("0x06"), 8453)
	assert.NoError(t, err)
	assert.That(t, base != otherSponsor)

	otherChain, err := sponsor.OperationHash(op, sponsorContract, 1)
	assert.NoError(t, err)
	assert.That(t, base != otherChain)
}

func TestOperationHash_MalformedNonce(t *testing.T) {
	op := validOperation()
	op.Nonce = "0xzz"
	_, err := sponsor.OperationHash(op, sponsorContract, 8453)
	assert.Error(t, err)
}

func TestSigner_RoundTrip(t *testing.T) {
	s, err := sponsor.NewSignerFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	assert.NoError(t, err)
	assert.That(t, s.Address() != (common.Address{}))

	hash, err := sponsor.OperationHash(validOperation(), sponsorContract, 8453)
	assert.NoError(t, err)

	sig, err := s.SignHash(hash)
	assert.NoError(t, err)
	assert.Equal(t, len(sig), 65)
	assert.That(t, sig[64] == 27 || sig[64] == 28)

	// same digest, same signature
	again, err := s.SignHash(hash)
	assert.NoError(t, err)
	assert.DeepEqual(t, sig, again)
}
