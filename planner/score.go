package planner

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ValueFunc converts an on-chain amount of a token into the comparison
// currency. The zero token address means the chain's native token. The
// conversion rate is a correctness-sensitive assumption, so it is injected
// rather than hardcoded; production wires it to a price API, tests vary it.
type ValueFunc func(ctx context.Context, chainID uint64, token common.Address, amount *big.Int) (decimal.Decimal, error)

// GasPriceFunc returns the chain's current gas price in wei.
type GasPriceFunc func(ctx context.Context, chainID uint64) (*big.Int, error)

// FixedValue returns a ValueFunc that prices every token at a flat rate per
// whole 18-decimal unit. Useful for tests and as a last-resort fallback.
func FixedValue(rate decimal.Decimal) ValueFunc {
	unit := decimal.New(1, 18)
	return func(_ context.Context, _ uint64, _ common.Address, amount *big.Int) (decimal.Decimal, error) {
		return decimal.NewFromBigInt(amount, 0).Div(unit).Mul(rate), nil
	}
}

// FixedGasPrice returns a GasPriceFunc that always reports the given price.
func FixedGasPrice(wei *big.Int) GasPriceFunc {
	return func(context.Context, uint64) (*big.Int, error) {
		return new(big.Int).Set(wei), nil
	}
}

// gasUnitsByProtocol is the static per-protocol gas-unit table. Unknown
// protocols fall back to defaultGasUnits, a deliberately pessimistic figure.
var gasUnitsByProtocol = map[string]uint64{
	"uniswap-v2": 150_000,
	"uniswap-v3": 185_000,
	"curve":      260_000,
	"balancer":   220_000,
	"stargate":   380_000,
	"across":     320_000,
	"hop":        350_000,
}

const defaultGasUnits = 450_000

// GasUnitsFor returns the gas-unit estimate for a protocol.
func GasUnitsFor(protocol string) uint64 {
	if units, ok := gasUnitsByProtocol[protocol]; ok {
		return units
	}
	return defaultGasUnits
}

// Scorer turns a raw candidate into a scored one. Score is the monetary
// value of the net user output minus the monetary value of the gas and
// oracle-update costs, all in one comparison currency.
type Scorer struct {
	value    ValueFunc
	gasPrice GasPriceFunc
	// oracleUpdateFeeWei is the fixed per-chain price-oracle freshening
	// cost; a route pays it once per chain it touches.
	oracleUpdateFeeWei *big.Int
}

// NewScorer builds a scorer.
func NewScorer(value ValueFunc, gasPrice GasPriceFunc, oracleUpdateFeeWei *big.Int) *Scorer {
	return &Scorer{
		value:              value,
		gasPrice:           gasPrice,
		oracleUpdateFeeWei: oracleUpdateFeeWei,
	}
}

// scoreCandidate fills the cost estimates and score of a candidate in
// place. Gas and oracle costs are valued in each chain's native token; the
// user output is valued as the destination-chain output token.
// chainsTouched lists every chain whose price oracle the route freshens:
// one entry for same-chain routes, two for cross-chain ones.
func (s *Scorer) scoreCandidate(ctx context.Context, c *RouteCandidate, tokenOut common.Address, destChain uint64, chainsTouched []uint64) error {
	totalGasWei := new(big.Int)
	gasValue := decimal.Zero
	for _, step := range c.Steps {
		price, err := s.gasPrice(ctx, step.ChainID)
		if err != nil {
			return fmt.Errorf("gas price for chain %d: %w", step.ChainID, err)
		}
		cost := new(big.Int).Mul(new(big.Int).SetUint64(step.GasEstimate), price)
		totalGasWei.Add(totalGasWei, cost)

		v, err := s.value(ctx, step.ChainID, common.Address{}, cost)
		if err != nil {
			return fmt.Errorf("valuing gas on chain %d: %w", step.ChainID, err)
		}
		gasValue = gasValue.Add(v)
	}

	oracleWei := new(big.Int)
	oracleValue := decimal.Zero
	for _, chainID := range chainsTouched {
		oracleWei.Add(oracleWei, s.oracleUpdateFeeWei)
		v, err := s.value(ctx, chainID, common.Address{}, s.oracleUpdateFeeWei)
		if err != nil {
			return fmt.Errorf("valuing oracle fee on chain %d: %w", chainID, err)
		}
		oracleValue = oracleValue.Add(v)
	}

	outputValue, err := s.value(ctx, destChain, tokenOut, c.NetUserOutput)
	if err != nil {
		return fmt.Errorf("valuing output: %w", err)
	}

	c.TotalGasCost = totalGasWei
	c.OracleUpdateFee = oracleWei
	c.Score = outputValue.Sub(gasValue).Sub(oracleValue)
	return nil
}
