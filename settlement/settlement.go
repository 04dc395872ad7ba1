// Package settlement models the on-chain settlement routine the relay relies
// on: adapter whitelisting, protocol fee skim, and minimum-output
// enforcement. The planner sizes candidates against this model and the
// pipeline pre-checks intents against it, so its arithmetic must match the
// deployed contract exactly.
package settlement

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeeBasisPoints is the hard ceiling on the protocol fee (2%).
// Configuration above the ceiling is rejected, never clamped.
const MaxFeeBasisPoints = 200

const bpsDenominator = 10000

var (
	// ErrAdapterNotAllowed - execution attempted against a non-whitelisted
	// adapter. Fails before any token movement.
	ErrAdapterNotAllowed = errors.New("adapter not whitelisted")
	// ErrInsufficientOutput - net output fell below the intent's minimum.
	// The whole execution reverts; no partial settlement.
	ErrInsufficientOutput = errors.New("output below minimum")
)

// FeeConfig is the settlement-side fee schedule. A zero FeeRecipient
// disables the fee regardless of FeeBasisPoints.
type FeeConfig struct {
	FeeBasisPoints uint32
	FeeRecipient   common.Address
}

// NewFeeConfig validates the fee schedule at configuration time.
func NewFeeConfig(bps uint32, recipient common.Address) (FeeConfig, error) {
	if bps > MaxFeeBasisPoints {
		return FeeConfig{}, fmt.Errorf("fee %d bps exceeds ceiling of %d bps", bps, MaxFeeBasisPoints)
	}
	return FeeConfig{FeeBasisPoints: bps, FeeRecipient: recipient}, nil
}

// Enabled reports whether a fee is actually taken.
func (f FeeConfig) Enabled() bool {
	return f.FeeRecipient != (common.Address{}) && f.FeeBasisPoints > 0
}

// ComputeFee splits a gross output into (fee, net). Integer division
// truncates, so the fee rounds down in the user's favor.
func ComputeFee(gross *big.Int, bps uint32) (fee, net *big.Int) {
	fee = new(big.Int).Mul(gross, big.NewInt(int64(bps)))
	fee.Div(fee, big.NewInt(bpsDenominator))
	net = new(big.Int).Sub(gross, fee)
	return fee, net
}

// NetOutput applies the fee config to a gross output.
func (f FeeConfig) NetOutput(gross *big.Int) (fee, net *big.Int) {
	if !f.Enabled() {
		return big.NewInt(0), new(big.Int).Set(gross)
	}
	return ComputeFee(gross, f.FeeBasisPoints)
}

// TokenTransferer performs token transfers during settlement. The production
// implementation is the chain itself; tests use a recording fake to observe
// the exact split.
type TokenTransferer interface {
	Transfer(token, to common.Address, amount *big.Int) error
}

// Result describes a completed settlement.
type Result struct {
	GrossOutput *big.Int
	Fee         *big.Int
	NetOutput   *big.Int
}

// Executor reproduces the settlement contract's control flow.
type Executor struct {
	fees      FeeConfig
	whitelist map[common.Address]bool
	transfers TokenTransferer
}

// NewExecutor builds an executor over a whitelist of allowed adapters.
func NewExecutor(fees FeeConfig, allowedAdapters []common.Address, transfers TokenTransferer) *Executor {
	wl := make(map[common.Address]bool, len(allowedAdapters))
	for _, a := range allowedAdapters {
		wl[a] = true
	}
	return &Executor{fees: fees, whitelist: wl, transfers: transfers}
}

// Execute settles an adapter call that produced grossOutput of tokenOut.
// Order is load-bearing: the whitelist check runs before any transfer, and
// the minOut check runs before any transfer, so a failing execution moves
// no tokens at all.
func (e *Executor) Execute(
	adapter common.Address,
	tokenOut common.Address,
	grossOutput *big.Int,
	minOut *big.Int,
	user common.Address,
) (*Result, error) {
	if !e.whitelist[adapter] {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotAllowed, adapter.Hex())
	}

	fee, net := e.fees.NetOutput(grossOutput)
	if net.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("%w: net %s < min %s", ErrInsufficientOutput, net, minOut)
	}

	// Fee and net are two separate transfers, not one combined transfer
	// with later reconciliation.
	if fee.Sign() > 0 {
		if err := e.transfers.Transfer(tokenOut, e.fees.FeeRecipient, fee); err != nil {
			return nil, fmt.Errorf("fee transfer failed: %w", err)
		}
	}
	if err := e.transfers.Transfer(tokenOut, user, net); err != nil {
		return nil, fmt.Errorf("user transfer failed: %w", err)
	}

	return &Result{
		GrossOutput: new(big.Int).Set(grossOutput),
		Fee:         fee,
		NetOutput:   net,
	}, nil
}
