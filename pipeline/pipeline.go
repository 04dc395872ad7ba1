// Package pipeline drives a sponsored operation from a chosen route to a
// terminal outcome: BUILDING -> SPONSORING -> SIGNING -> SUBMITTING ->
// PENDING_CONFIRMATION -> {SUCCESS | FAILED | TIMED_OUT}. Every waiting
// stage uses explicit timers and honors context cancellation; a submitted
// operation is never retracted and never resubmitted with mutated fields.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/planner"
	"github.com/Kinetic-Labs/kinetic-relay/settlement"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "pipeline").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "pipeline").Logger()
}

// Config bounds the pipeline's waiting stages.
type Config struct {
	// SignTimeout bounds the wait for the owner's signature.
	SignTimeout time.Duration
	// ConfirmTimeout bounds receipt polling after submission.
	ConfirmTimeout time.Duration
	// PollInterval is the receipt polling cadence.
	PollInterval time.Duration
}

// DefaultConfig returns the standard 120 s bounds.
func DefaultConfig() Config {
	return Config{
		SignTimeout:    120 * time.Second,
		ConfirmTimeout: 120 * time.Second,
		PollInterval:   2 * time.Second,
	}
}

// Pipeline executes one submission attempt. A Pipeline is single-use:
// construct a fresh one (with a fresh nonce) to retry.
type Pipeline struct {
	builder     OperationBuilder
	sponsorSvc  SponsorService
	ownerSigner OwnerSigner
	bundler     BundlerClient
	fees        settlement.FeeConfig
	cfg         Config

	state State
	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

// New creates a single-use pipeline.
func New(
	builder OperationBuilder,
	sponsorSvc SponsorService,
	ownerSigner OwnerSigner,
	bundler BundlerClient,
	fees settlement.FeeConfig,
	cfg Config,
) *Pipeline {
	return &Pipeline{
		builder:     builder,
		sponsorSvc:  sponsorSvc,
		ownerSigner: ownerSigner,
		bundler:     bundler,
		fees:        fees,
		cfg:         cfg,
		state:       StateBuilding,
	}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	return p.state
}

func (p *Pipeline) transition(to State) {
	from := p.state
	p.state = to
	log.Info().Str("from", string(from)).Str("to", string(to)).Msg("Pipeline transition")
	if p.OnTransition != nil {
		p.OnTransition(from, to)
	}
}

func (p *Pipeline) fail(reason string) *Result {
	p.transition(StateFailed)
	return &Result{State: StateFailed, Reason: reason}
}

func (p *Pipeline) timedOut(reason, opHash string) *Result {
	p.transition(StateTimedOut)
	return &Result{State: StateTimedOut, Reason: reason, OperationHash: opHash}
}

// Run drives the chosen candidate to a terminal state. Cancelling ctx
// before submission yields FAILED (nothing is in flight); cancelling after
// submission yields TIMED_OUT, because the operation's fate is no longer
// under this system's control and needs reconciliation.
func (p *Pipeline) Run(ctx context.Context, intent *models.Intent, candidate *planner.RouteCandidate) *Result {
	// BUILDING
	if err := intent.Validate(time.Now()); err != nil {
		return p.fail(err.Error())
	}
	// The settlement fee comes out of the gross output; a minOut the
	// expected net cannot clear would only fail later on-chain, so reject
	// the attempt before spending anyone's signature.
	_, expectedNet := p.fees.NetOutput(candidate.NetUserOutput)
	if expectedNet.Cmp(intent.MinOut) < 0 {
		return p.fail(fmt.Sprintf(
			"expected net output %s cannot clear min_out %s after settlement fee; lower min_out or pick another route",
			expectedNet, intent.MinOut))
	}

	calldata, err := EncodeRouteCalldata(intent, candidate)
	if err != nil {
		return p.fail(fmt.Sprintf("calldata encoding failed: %v", err))
	}
	op, err := p.builder.BuildOperation(ctx, intent, calldata)
	if err != nil {
		return p.fail(fmt.Sprintf("operation build failed: %v", err))
	}

	// SPONSORING
	p.transition(StateSponsoring)
	auth, err := p.sponsorSvc.EvaluateAndSign(ctx, op, intent.DestinationChainID)
	if err != nil {
		return p.fail(fmt.Sprintf("sponsorship rejected: %v", err))
	}
	op.SponsorAndData = auth.SponsorAndData

	// SIGNING
	p.transition(StateSigning)
	signCtx, cancelSign := context.WithTimeout(ctx, p.cfg.SignTimeout)
	signature, err := p.ownerSigner.SignOperation(signCtx, auth.OperationHash)
	cancelSign()
	if err != nil {
		if ctx.Err() != nil {
			return p.fail("canceled while waiting for owner signature")
		}
		if signCtx.Err() == context.DeadlineExceeded {
			return p.timedOut("owner signature not supplied in time", "")
		}
		return p.fail(fmt.Sprintf("owner signing failed: %v", err))
	}
	op.Signature = hexutil.Encode(signature)

	// SUBMITTING
	p.transition(StateSubmitting)
	opHash, err := p.bundler.SendOperation(ctx, op, intent.DestinationChainID)
	if err != nil {
		return p.fail(fmt.Sprintf("bundler submission failed: %v", err))
	}

	// PENDING_CONFIRMATION
	p.transition(StatePendingConfirmation)
	return p.awaitReceipt(ctx, opHash)
}

// awaitReceipt polls the bundler until the operation succeeds, reverts, or
// the confirmation window closes. The operation is already submitted, so
// cancellation and timeout both end as TIMED_OUT: the outcome is unknown,
// not failed.
func (p *Pipeline) awaitReceipt(ctx context.Context, opHash string) *Result {
	deadline := time.NewTimer(p.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.timedOut("canceled while awaiting confirmation; outcome unknown", opHash)
		case <-deadline.C:
			return p.timedOut("no receipt within confirmation window; outcome unknown", opHash)
		case <-ticker.C:
			receipt, err := p.bundler.GetReceipt(ctx, opHash)
			if err != nil {
				// Transient polling errors are retried until the window
				// closes.
				log.Warn().Err(err).Str("opHash", opHash).Msg("Receipt poll failed")
				continue
			}
			if receipt == nil {
				continue
			}
			if receipt.Success {
				p.transition(StateSuccess)
				return &Result{State: StateSuccess, OperationHash: opHash, Receipt: receipt}
			}
			p.transition(StateFailed)
			reason := receipt.RevertReason
			if reason == "" {
				reason = "operation reverted on-chain"
			}
			return &Result{State: StateFailed, Reason: reason, OperationHash: opHash, Receipt: receipt}
		}
	}
}
