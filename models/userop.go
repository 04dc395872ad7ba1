package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperation is the account-abstraction envelope submitted on the user's
// behalf. Numeric fields travel as hex strings, matching what bundlers accept
// on the wire. The envelope is built once per attempt and then filled in two
// passes: the sponsor sets SponsorAndData, the wallet sets Signature.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                string         `json:"nonce"`
	InitCode             string         `json:"initCode"`
	CallData             string         `json:"callData"`
	CallGasLimit         string         `json:"callGasLimit"`
	VerificationGasLimit string         `json:"verificationGasLimit"`
	PreVerificationGas   string         `json:"preVerificationGas"`
	MaxFeePerGas         string         `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string         `json:"maxPriorityFeePerGas"`
	SponsorAndData       string         `json:"sponsorAndData"`
	Signature            string         `json:"signature"`
}

// SponsorAndDataBytes decodes the sponsorAndData hex field.
func (op *UserOperation) SponsorAndDataBytes() ([]byte, error) {
	return decodeHexField("sponsorAndData", op.SponsorAndData)
}

// SponsorAddress returns the sponsor contract embedded in SponsorAndData,
// or the zero address when the field is empty.
func (op *UserOperation) SponsorAddress() (common.Address, error) {
	data, err := op.SponsorAndDataBytes()
	if err != nil {
		return common.Address{}, err
	}
	if len(data) == 0 {
		return common.Address{}, nil
	}
	if len(data) < common.AddressLength {
		return common.Address{}, fmt.Errorf("sponsorAndData too short: %d bytes", len(data))
	}
	return common.BytesToAddress(data[:common.AddressLength]), nil
}

// CallDataBytes decodes the callData hex field.
func (op *UserOperation) CallDataBytes() ([]byte, error) {
	return decodeHexField("callData", op.CallData)
}

// InitCodeBytes decodes the initCode hex field.
func (op *UserOperation) InitCodeBytes() ([]byte, error) {
	return decodeHexField("initCode", op.InitCode)
}

// NonceBig parses the nonce as a big integer.
func (op *UserOperation) NonceBig() (*big.Int, error) {
	return decodeBigField("nonce", op.Nonce)
}

// GasFields parses the five gas/fee fields in envelope order:
// callGasLimit, verificationGasLimit, preVerificationGas, maxFeePerGas,
// maxPriorityFeePerGas.
func (op *UserOperation) GasFields() ([5]*big.Int, error) {
	var out [5]*big.Int
	fields := []struct {
		name  string
		value string
	}{
		{"callGasLimit", op.CallGasLimit},
		{"verificationGasLimit", op.VerificationGasLimit},
		{"preVerificationGas", op.PreVerificationGas},
		{"maxFeePerGas", op.MaxFeePerGas},
		{"maxPriorityFeePerGas", op.MaxPriorityFeePerGas},
	}
	for i, f := range fields {
		v, err := decodeBigField(f.name, f.value)
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func decodeHexField(name, value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(value, "0x") {
		value = "0x" + value
	}
	data, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return data, nil
}

func decodeBigField(name, value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(value, "0x") {
		v, err := hexutil.DecodeBig(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		return v, nil
	}
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: %q is not a number", name, value)
	}
	return v, nil
}
