package pipeline

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/planner"
)

// executeRouteSelector is the 4-byte selector of the settlement entry point
// executeRoute(address,address,address,uint256,uint256).
var executeRouteSelector = crypto.Keccak256([]byte("executeRoute(address,address,address,uint256,uint256)"))[:4]

var (
	abiAddress, _ = abi.NewType("address", "", nil)
	abiUint256, _ = abi.NewType("uint256", "", nil)
)

var executeRouteArgs = abi.Arguments{
	{Type: abiAddress}, // adapter
	{Type: abiAddress}, // tokenIn
	{Type: abiAddress}, // tokenOut
	{Type: abiUint256}, // amountIn
	{Type: abiUint256}, // minOut
}

// EncodeRouteCalldata encodes the settlement call for the candidate's first
// step. The adapter executes the swap or bridge; the settlement routine
// applies the fee skim and enforces the intent's minOut.
func EncodeRouteCalldata(intent *models.Intent, candidate *planner.RouteCandidate) ([]byte, error) {
	if len(candidate.Steps) == 0 {
		return nil, fmt.Errorf("candidate %s has no steps", candidate.RouteID)
	}
	step := candidate.Steps[0]

	packed, err := executeRouteArgs.Pack(
		step.Adapter,
		intent.TokenIn,
		intent.TokenOut,
		intent.AmountIn,
		intent.MinOut,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack route calldata: %w", err)
	}
	return append(append([]byte{}, executeRouteSelector...), packed...), nil
}
