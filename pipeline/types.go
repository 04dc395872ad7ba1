package pipeline

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/sponsor"
)

// State is a pipeline stage. Each non-terminal state is a suspension point
// where the pipeline waits on an external system.
type State string

const (
	StateBuilding            State = "BUILDING"
	StateSponsoring          State = "SPONSORING"
	StateSigning             State = "SIGNING"
	StateSubmitting          State = "SUBMITTING"
	StatePendingConfirmation State = "PENDING_CONFIRMATION"
	StateSuccess             State = "SUCCESS"
	StateFailed              State = "FAILED"
	StateTimedOut            State = "TIMED_OUT"
)

// Terminal reports whether the state is final. Terminal states are never
// re-entered; retrying means a new pipeline with a fresh nonce.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateTimedOut:
		return true
	}
	return false
}

// SponsorService is the policy engine boundary.
type SponsorService interface {
	EvaluateAndSign(ctx context.Context, op *models.UserOperation, chainID uint64) (*sponsor.Authorization, error)
}

// OwnerSigner supplies the operation owner's signature over the sponsored
// hash. Implementations typically round-trip to a wallet, so calls may
// block until the user acts or the context ends.
type OwnerSigner interface {
	SignOperation(ctx context.Context, hash common.Hash) ([]byte, error)
}

// Receipt is the bundler's view of a submitted operation.
type Receipt struct {
	OperationHash string
	TxHash        common.Hash
	BlockNumber   uint64
	Success       bool
	// RevertReason is set when the settlement reverted on-chain.
	RevertReason string
	// ActualOutput is the gross output observed at settlement, when known.
	ActualOutput *big.Int
}

// BundlerClient is the external bundler boundary. GetReceipt returns
// (nil, nil) while the operation is still pending.
type BundlerClient interface {
	SendOperation(ctx context.Context, op *models.UserOperation, chainID uint64) (opHash string, err error)
	GetReceipt(ctx context.Context, opHash string) (*Receipt, error)
}

// OperationBuilder assembles the UserOperation envelope for a chosen route.
// The account and calldata details live with the wallet integration, so the
// pipeline takes the builder as a collaborator.
type OperationBuilder interface {
	BuildOperation(ctx context.Context, intent *models.Intent, calldata []byte) (*models.UserOperation, error)
}

// Result is the pipeline's terminal outcome.
type Result struct {
	State         State
	Reason        string
	OperationHash string
	Receipt       *Receipt
}
