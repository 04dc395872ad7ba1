package planner_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/planner"
	"github.com/Kinetic-Labs/kinetic-relay/planner/adapters"
	"github.com/Kinetic-Labs/kinetic-relay/registry"
)

var (
	tokenIn  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenOut = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	userAddr = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type stubVenue struct {
	protocol string
	out      *big.Int
	err      error
	delay    time.Duration
}

func (s *stubVenue) ProtocolName() string { return s.protocol }

func (s *stubVenue) GetQuote(ctx context.Context, in, out common.Address, amountIn *big.Int) (*adapters.Quote, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &adapters.Quote{AmountOut: new(big.Int).Set(s.out)}, nil
}

type stubBridge struct {
	protocol string
	fee      *big.Int
	err      error
}

func (s *stubBridge) ProtocolName() string { return s.protocol }

func (s *stubBridge) EstimateFee(ctx context.Context, src, dst uint64, token common.Address, amount *big.Int) (*big.Int, error) {
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.fee), nil
}

func endpoint(kind registry.Kind, protocol string, addrByte byte) registry.Endpoint {
	var addr common.Address
	addr[19] = addrByte
	return registry.Endpoint{
		Kind:     kind,
		Protocol: protocol,
		Address:  addr,
		URL:      "https://q.example.com/" + protocol,
	}
}

func sameChainIntent() *models.Intent {
	return &models.Intent{
		User:               userAddr,
		TokenIn:            tokenIn,
		AmountIn:           tokens(100),
		TokenOut:           tokenOut,
		MinOut:             tokens(90),
		SourceChainID:      1,
		DestinationChainID: 1,
		FeeMode:            models.FeeModeSponsored,
	}
}

func crossChainIntent() *models.Intent {
	i := sameChainIntent()
	i.DestinationChainID = 8453
	return i
}

// testScorer values every token 1:1 per 18-decimal unit with free gas, so
// the score equals the net output in whole tokens.
func testScorer() *planner.Scorer {
	return planner.NewScorer(
		planner.FixedValue(decimal.NewFromInt(1)),
		planner.FixedGasPrice(big.NewInt(0)),
		big.NewInt(0),
	)
}

func newSameChainPlanner(t *testing.T, venues ...*stubVenue) *planner.Planner {
	t.Helper()
	endpoints := make([]registry.Endpoint, 0, len(venues))
	clients := make(map[string]adapters.SwapVenueClient, len(venues))
	for i, v := range venues {
		endpoints = append(endpoints, endpoint(registry.KindSwap, v.protocol, byte(i+1)))
		clients[v.protocol] = v
	}
	reg, err := registry.New(map[uint64][]registry.Endpoint{1: endpoints}, []uint64{1})
	assert.NoError(t, err)
	return planner.New(reg, clients, nil, testScorer())
}

func TestPlanRoutes_RanksByScore(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", out: tokens(95)},
		&stubVenue{protocol: "uniswap-v3", out: tokens(98)},
		&stubVenue{protocol: "curve", out: tokens(96)},
	)

	candidates, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 3)
	assert.Equal(t, candidates[0].Steps[0].Protocol, "uniswap-v3")
	assert.Equal(t, candidates[1].Steps[0].Protocol, "curve")
	assert.Equal(t, candidates[2].Steps[0].Protocol, "uniswap-v2")

	best := candidates[0]
	assert.Equal(t, best.Kind, planner.KindSameChain)
	assert.Equal(t, best.ExpectedAmountOut.Cmp(tokens(98)), 0)
	assert.Equal(t, best.NetUserOutput.Cmp(tokens(98)), 0)
	assert.Equal(t, best.BridgeFee.Sign(), 0)
}

func TestPlanRoutes_Deterministic(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", out: tokens(95)},
		&stubVenue{protocol: "uniswap-v3", out: tokens(98)},
	)

	first, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.PlanRoutes(context.Background(), sameChainIntent())
		assert.NoError(t, err)
		assert.Equal(t, len(again), len(first))
		for j := range again {
			assert.Equal(t, again[j].Steps[0].Protocol, first[j].Steps[0].Protocol)
		}
	}
}

func TestPlanRoutes_TiesKeepRegistryOrder(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "curve", out: tokens(95)},
		&stubVenue{protocol: "balancer", out: tokens(95)},
	)

	candidates, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 2)
	assert.Equal(t, candidates[0].Steps[0].Protocol, "curve")
	assert.Equal(t, candidates[1].Steps[0].Protocol, "balancer")
}

func TestPlanRoutes_OneFailingVenueDropsOnlyItself(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", out: tokens(95)},
		&stubVenue{protocol: "uniswap-v3", err: errors.New("venue down")},
		&stubVenue{protocol: "curve", out: tokens(96)},
	)

	candidates, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 2)
	for _, c := range candidates {
		assert.That(t, c.Steps[0].Protocol != "uniswap-v3")
	}
}

func TestPlanRoutes_ZeroOutputDropped(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", out: big.NewInt(0)},
		&stubVenue{protocol: "curve", out: tokens(96)},
	)

	candidates, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 1)
	assert.Equal(t, candidates[0].Steps[0].Protocol, "curve")
}

func TestPlanRoutes_AllVenuesFailingYieldsEmptyNotError(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", err: errors.New("down")},
		&stubVenue{protocol: "curve", err: errors.New("down")},
	)

	candidates, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 0)
}

func TestPlanRoutes_NoAdaptersIsFatal(t *testing.T) {
	reg, err := registry.New(map[uint64][]registry.Endpoint{
		2: {endpoint(registry.KindSwap, "curve", 1)},
	}, []uint64{2})
	assert.NoError(t, err)
	p := planner.New(reg, map[string]adapters.SwapVenueClient{}, nil, testScorer())

	_, err = p.PlanRoutes(context.Background(), sameChainIntent())
	assert.True(t, errors.Is(err, planner.ErrNoAdaptersConfigured))
}

func TestPlanRoutes_SlowVenueTimesOutAlone(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", out: tokens(95)},
		&stubVenue{protocol: "curve", out: tokens(99), delay: time.Second},
	)
	p.SetQuoteTimeout(20 * time.Millisecond)

	candidates, err := p.PlanRoutes(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 1)
	assert.Equal(t, candidates[0].Steps[0].Protocol, "uniswap-v2")
}

func newCrossChainPlanner(t *testing.T, bridges ...*stubBridge) *planner.Planner {
	t.Helper()
	srcEndpoints := make([]registry.Endpoint, 0, len(bridges))
	dstEndpoints := make([]registry.Endpoint, 0, len(bridges))
	clients := make(map[string]adapters.BridgeClient, len(bridges))
	for i, b := range bridges {
		srcEndpoints = append(srcEndpoints, endpoint(registry.KindBridge, b.protocol, byte(i+1)))
		dstEndpoints = append(dstEndpoints, endpoint(registry.KindBridge, b.protocol, byte(i+101)))
		clients[b.protocol] = b
	}
	reg, err := registry.New(map[uint64][]registry.Endpoint{
		1:    srcEndpoints,
		8453: dstEndpoints,
	}, []uint64{1, 8453})
	assert.NoError(t, err)
	return planner.New(reg, nil, clients, testScorer())
}

func TestPlanRoutes_CrossChain(t *testing.T) {
	p := newCrossChainPlanner(t,
		&stubBridge{protocol: "stargate", fee: tokens(2)},
		&stubBridge{protocol: "hop", fee: tokens(1)},
	)

	candidates, err := p.PlanRoutes(context.Background(), crossChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 2)

	// lower bridge fee means more net output, so hop ranks first
	best := candidates[0]
	assert.Equal(t, best.Steps[0].Protocol, "hop")
	assert.Equal(t, best.Kind, planner.KindCrossChain)
	assert.Equal(t, best.BridgeFee.Cmp(tokens(1)), 0)
	assert.Equal(t, best.NetUserOutput.Cmp(tokens(99)), 0)
}

func TestPlanRoutes_BridgeFeeSwallowingAmountDropped(t *testing.T) {
	p := newCrossChainPlanner(t,
		&stubBridge{protocol: "stargate", fee: tokens(100)}, // fee == amount
		&stubBridge{protocol: "hop", fee: tokens(1)},
	)

	candidates, err := p.PlanRoutes(context.Background(), crossChainIntent())
	assert.NoError(t, err)
	assert.Equal(t, len(candidates), 1)
	assert.Equal(t, candidates[0].Steps[0].Protocol, "hop")
}

func TestPlanRoutes_NoBridgeSpansChains(t *testing.T) {
	// both chains configured, but no shared bridge protocol
	reg, err := registry.New(map[uint64][]registry.Endpoint{
		1:    {endpoint(registry.KindBridge, "stargate", 1)},
		8453: {endpoint(registry.KindBridge, "hop", 2)},
	}, []uint64{1, 8453})
	assert.NoError(t, err)
	p := planner.New(reg, nil, map[string]adapters.BridgeClient{
		"stargate": &stubBridge{protocol: "stargate", fee: tokens(1)},
		"hop":      &stubBridge{protocol: "hop", fee: tokens(1)},
	}, testScorer())

	_, err = p.PlanRoutes(context.Background(), crossChainIntent())
	assert.True(t, errors.Is(err, planner.ErrNoAdaptersConfigured))
}

func TestBestRoute(t *testing.T) {
	p := newSameChainPlanner(t,
		&stubVenue{protocol: "uniswap-v2", out: tokens(95)},
		&stubVenue{protocol: "uniswap-v3", out: tokens(98)},
	)

	best, err := p.BestRoute(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.NotNil(t, best)
	assert.Equal(t, best.Steps[0].Protocol, "uniswap-v3")

	// all failing: nil, not an error
	p = newSameChainPlanner(t, &stubVenue{protocol: "curve", err: errors.New("down")})
	best, err = p.BestRoute(context.Background(), sameChainIntent())
	assert.NoError(t, err)
	assert.Nil(t, best)
}
