// Package adapters defines the uniform interfaces the planner uses to talk
// to swap venues and bridges. Each protocol (a DEX aggregator API, a bridge
// relayer API) implements the matching interface.
package adapters

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Quote is a standardized swap quote from any venue.
type Quote struct {
	// AmountOut is the expected output for the requested input.
	AmountOut *big.Int
	// Path is the token path the venue would route through.
	Path []common.Address
}

// SwapVenueClient quotes swaps on a single venue on a single chain.
type SwapVenueClient interface {
	// GetQuote returns the expected output for swapping amountIn of tokenIn
	// into tokenOut. A zero AmountOut means the venue cannot serve the pair.
	GetQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*Quote, error)

	// ProtocolName returns the venue identifier (e.g. "uniswap-v3").
	ProtocolName() string
}

// BridgeClient estimates fees for moving a token between two chains.
type BridgeClient interface {
	// EstimateFee returns the bridge fee, denominated in the bridged token,
	// for moving amount from src to dst.
	EstimateFee(ctx context.Context, src, dst uint64, token common.Address, amount *big.Int) (*big.Int, error)

	// ProtocolName returns the bridge identifier (e.g. "stargate").
	ProtocolName() string
}
