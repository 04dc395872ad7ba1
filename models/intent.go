package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeMode selects who carries the network cost of executing an intent.
type FeeMode string

const (
	// FeeModeSponsored means gas is paid by the sponsor, never skimmed from output.
	FeeModeSponsored FeeMode = "sponsored"
	// FeeModeUser means the user pays gas from their own account.
	FeeModeUser FeeMode = "user"
)

// Intent is the user-signed description of a desired swap. It is immutable
// once signed; the planner reads it and the settlement calldata embeds it.
type Intent struct {
	User               common.Address `json:"user"`
	TokenIn            common.Address `json:"token_in"`
	AmountIn           *big.Int       `json:"amount_in"`
	TokenOut           common.Address `json:"token_out"`
	MinOut             *big.Int       `json:"min_out"`
	SourceChainID      uint64         `json:"source_chain_id"`
	DestinationChainID uint64         `json:"destination_chain_id"`
	FeeMode            FeeMode        `json:"fee_mode"`
	FeeCap             *big.Int       `json:"fee_cap"`
	Deadline           int64          `json:"deadline"` // unix seconds
	Nonce              uint64         `json:"nonce"`
}

// SameChain reports whether the intent settles on its source chain.
func (i *Intent) SameChain() bool {
	return i.SourceChainID == i.DestinationChainID
}

// Validate checks the structural invariants of an intent. Violations are
// permanent: callers must not retry an unchanged intent.
func (i *Intent) Validate(now time.Time) error {
	if i.User == (common.Address{}) {
		return fmt.Errorf("intent: user address is zero")
	}
	if i.AmountIn == nil || i.AmountIn.Sign() <= 0 {
		return fmt.Errorf("intent: amount_in must be positive")
	}
	if i.MinOut == nil || i.MinOut.Sign() <= 0 {
		return fmt.Errorf("intent: min_out must be positive")
	}
	if i.TokenIn == i.TokenOut && i.SameChain() {
		return fmt.Errorf("intent: token_in and token_out are identical on chain %d", i.SourceChainID)
	}
	if i.SourceChainID == 0 || i.DestinationChainID == 0 {
		return fmt.Errorf("intent: chain ids must be non-zero")
	}
	switch i.FeeMode {
	case FeeModeSponsored, FeeModeUser:
	default:
		return fmt.Errorf("intent: unknown fee mode %q", i.FeeMode)
	}
	if i.Deadline != 0 && i.Deadline <= now.Unix() {
		return fmt.Errorf("intent: deadline %d already passed", i.Deadline)
	}
	return nil
}
