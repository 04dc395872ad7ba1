package planner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RouteKind discriminates same-chain and cross-chain candidates.
type RouteKind string

const (
	KindSameChain  RouteKind = "same-chain"
	KindCrossChain RouteKind = "cross-chain"
)

// StepKind discriminates swap and bridge steps.
type StepKind string

const (
	StepSwap   StepKind = "swap"
	StepBridge StepKind = "bridge"
)

// RouteStep is one hop of a candidate. Steps are ordered and each step's
// TokenOut equals the next step's TokenIn.
type RouteStep struct {
	Kind        StepKind       `json:"kind"`
	Protocol    string         `json:"protocol"`
	Adapter     common.Address `json:"adapter"`
	TokenIn     common.Address `json:"token_in"`
	TokenOut    common.Address `json:"token_out"`
	ChainID     uint64         `json:"chain_id"`
	GasEstimate uint64         `json:"gas_estimate"`
}

// RouteCandidate is one scored execution path. Candidates are produced fresh
// per planning call and never persisted.
type RouteCandidate struct {
	RouteID           string          `json:"route_id"`
	Kind              RouteKind       `json:"kind"`
	Steps             []RouteStep     `json:"steps"`
	AmountIn          *big.Int        `json:"amount_in"`
	ExpectedAmountOut *big.Int        `json:"expected_amount_out"`
	// BridgeFee is the bridge's own fee, taken from the bridged amount.
	// Zero for same-chain candidates.
	BridgeFee *big.Int `json:"bridge_fee"`
	// TotalGasCost and OracleUpdateFee are sponsor-paid and informational:
	// they rank candidates but are never subtracted from the user's output.
	TotalGasCost    *big.Int `json:"total_gas_cost_estimate"`
	OracleUpdateFee *big.Int `json:"oracle_update_fee_estimate"`
	// NetUserOutput is what the user is expected to receive before the
	// settlement fee: expected output minus the bridge fee.
	NetUserOutput *big.Int        `json:"net_user_output_estimate"`
	Score         decimal.Decimal `json:"score"`
}
