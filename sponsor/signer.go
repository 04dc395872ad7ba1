package sponsor

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs operation hashes with the sponsor's credential.
type Signer interface {
	// SignHash signs a 32-byte digest and returns a 65-byte signature with
	// v normalized to 27/28.
	SignHash(hash common.Hash) ([]byte, error)
	// Address returns the sponsor signer's address.
	Address() common.Address
}

type ecdsaSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner wraps a secp256k1 private key.
func NewSigner(privateKey *ecdsa.PrivateKey) Signer {
	return &ecdsaSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewSignerFromHex creates a signer from a hex private key.
func NewSignerFromHex(hexKey string) (Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid sponsor private key: %w", err)
	}
	return NewSigner(privateKey), nil
}

// NewSignerFromEnv creates a signer from a private key held in an
// environment variable. A missing variable is an operational
// misconfiguration, not a user-facing failure.
func NewSignerFromEnv(envName string) (Signer, error) {
	hexKey := strings.TrimSpace(os.Getenv(envName))
	if hexKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", envName)
	}
	return NewSignerFromHex(hexKey)
}

func (s *ecdsaSigner) Address() common.Address {
	return s.address
}

func (s *ecdsaSigner) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign operation hash: %w", err)
	}
	// crypto.Sign returns v in {0,1}; contracts expect 27/28.
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
