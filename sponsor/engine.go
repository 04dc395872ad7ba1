// Package sponsor implements the gas-sponsorship policy engine: structural
// validation of user operations, per-wallet sliding-window rate limits, and
// signing of the sponsorship authorization over the canonical operation hash.
package sponsor

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Kinetic-Labs/kinetic-relay/models"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "sponsor").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "sponsor").Logger()
}

// Authorization is a granted sponsorship: the data blob to embed in the
// operation, the hash it covers, and the wallet's remaining quota.
type Authorization struct {
	SponsorAndData string
	OperationHash  common.Hash
	Remaining      Remaining
}

// AuditSink receives a record for every sponsorship decision. Side effect
// only; engine results never depend on it.
type AuditSink interface {
	SponsorshipGranted(sender common.Address, hash common.Hash, chainID uint64, remaining Remaining)
	SponsorshipRejected(sender common.Address, chainID uint64, category Category)
}

// Engine evaluates sponsorship requests. Each gate short-circuits: a request
// failing validation never reaches the rate limiter, one failing the rate
// limiter is never signed.
type Engine struct {
	sponsorContracts map[uint64]common.Address
	limiter          *SlidingLimiter
	signer           Signer
	audit            AuditSink
}

// NewEngine builds a policy engine for the given per-chain sponsor
// contracts.
func NewEngine(sponsorContracts map[uint64]common.Address, limiter *SlidingLimiter, signer Signer, audit AuditSink) *Engine {
	return &Engine{
		sponsorContracts: sponsorContracts,
		limiter:          limiter,
		signer:           signer,
		audit:            audit,
	}
}

// SignerAddress returns the identity of the sponsor signing key.
func (e *Engine) SignerAddress() common.Address {
	return e.signer.Address()
}

// Chains returns the chain ids the engine sponsors on, ascending.
func (e *Engine) Chains() []uint64 {
	chains := make([]uint64, 0, len(e.sponsorContracts))
	for id := range e.sponsorContracts {
		chains = append(chains, id)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// Limiter exposes the rate limiter for introspection endpoints.
func (e *Engine) Limiter() *SlidingLimiter {
	return e.limiter
}

// EvaluateAndSign runs the policy gates over an operation and, when all
// pass, returns the signed sponsorship authorization.
func (e *Engine) EvaluateAndSign(ctx context.Context, op *models.UserOperation, chainID uint64) (*Authorization, error) {
	auditID := uuid.NewString()

	sponsorContract, ok := e.sponsorContracts[chainID]
	if !ok {
		return nil, e.rejected(op, chainID, reject(CategoryInfrastructure,
			"no sponsor contract configured for chain %d", chainID))
	}

	// Gate 1: structural validation.
	if err := e.validateStructure(op, sponsorContract); err != nil {
		return nil, e.rejected(op, chainID, err)
	}

	// Gate 2: hashability. Still validation: an unparsable nonce or gas
	// field is a malformed request and must not touch the wallet's quota.
	hash, err := OperationHash(op, sponsorContract, chainID)
	if err != nil {
		return nil, e.rejected(op, chainID, reject(CategoryValidation, "operation not hashable: %v", err))
	}

	// Gate 3: rate limit. Check-then-record is atomic per wallet inside the
	// limiter.
	remaining, err := e.limiter.Reserve(op.Sender.Hex())
	if err != nil {
		return nil, e.rejected(op, chainID, err)
	}

	// Gate 4: sign.
	signature, err := e.signer.SignHash(hash)
	if err != nil {
		return nil, e.rejected(op, chainID, reject(CategoryInfrastructure, "signing failed: %v", err))
	}

	sponsorAndData := make([]byte, 0, common.AddressLength+len(signature))
	sponsorAndData = append(sponsorAndData, sponsorContract.Bytes()...)
	sponsorAndData = append(sponsorAndData, signature...)

	auth := &Authorization{
		SponsorAndData: hexutil.Encode(sponsorAndData),
		OperationHash:  hash,
		Remaining:      remaining,
	}

	log.Info().
		Str("auditId", auditID).
		Str("sender", op.Sender.Hex()).
		Str("hash", hash.Hex()).
		Uint64("chainId", chainID).
		Int("remainingDaily", remaining.Daily).
		Int("remainingHourly", remaining.Hourly).
		Msg("Sponsorship granted")
	if e.audit != nil {
		e.audit.SponsorshipGranted(op.Sender, hash, chainID, remaining)
	}

	return auth, nil
}

// validateStructure checks the invariants the operation must satisfy before
// any policy is consulted.
func (e *Engine) validateStructure(op *models.UserOperation, sponsorContract common.Address) *RejectionError {
	if op == nil {
		return reject(CategoryValidation, "missing user operation")
	}
	if op.Sender == (common.Address{}) {
		return reject(CategoryValidation, "sender address is zero")
	}
	callData, err := op.CallDataBytes()
	if err != nil {
		return reject(CategoryValidation, "malformed callData: %v", err)
	}
	if len(callData) == 0 {
		return reject(CategoryValidation, "callData is empty")
	}
	// An operation may arrive with sponsor data from a previous pass; the
	// embedded sponsor must be ours, not some other paymaster.
	embedded, err := op.SponsorAddress()
	if err != nil {
		return reject(CategoryValidation, "malformed sponsorAndData: %v", err)
	}
	if embedded != (common.Address{}) && embedded != sponsorContract {
		return reject(CategoryValidation, "invalid sponsor address %s", embedded.Hex())
	}
	return nil
}

func (e *Engine) rejected(op *models.UserOperation, chainID uint64, err error) error {
	sender := common.Address{}
	if op != nil {
		sender = op.Sender
	}
	category := CategoryInfrastructure
	if rej, ok := err.(*RejectionError); ok {
		category = rej.Category
	}
	log.Warn().
		Str("sender", sender.Hex()).
		Uint64("chainId", chainID).
		Str("category", string(category)).
		Err(err).
		Msg("Sponsorship rejected")
	if e.audit != nil {
		e.audit.SponsorshipRejected(sender, chainID, category)
	}
	return err
}
