// Package planner enumerates and scores candidate execution paths for a
// swap intent: swap venues on the intent's chain when source and destination
// match, bridges configured on both chains when they differ. A single
// failing adapter never aborts planning; candidates that could not be quoted
// are dropped and the rest are ranked.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Kinetic-Labs/kinetic-relay/models"
	"github.com/Kinetic-Labs/kinetic-relay/planner/adapters"
	"github.com/Kinetic-Labs/kinetic-relay/registry"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "planner").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "planner").Logger()
}

// ErrNoAdaptersConfigured means the registry has nothing at all for the
// intent's chain pair. That is a setup bug, not transient venue
// unavailability, so it is fatal rather than an empty result.
var ErrNoAdaptersConfigured = errors.New("no adapters configured for chain pair")

// Planner turns intents into ranked route candidates.
type Planner struct {
	registry *registry.Registry
	venues   map[string]adapters.SwapVenueClient // protocol -> client
	bridges  map[string]adapters.BridgeClient    // protocol -> client
	scorer   *Scorer
	// quoteTimeout bounds each individual adapter call.
	quoteTimeout time.Duration
}

// New creates a planner over a validated registry. venues and bridges map
// protocol names to their clients; registry entries without a client are
// skipped at planning time with a warning.
func New(reg *registry.Registry, venues map[string]adapters.SwapVenueClient, bridges map[string]adapters.BridgeClient, scorer *Scorer) *Planner {
	return &Planner{
		registry:     reg,
		venues:       venues,
		bridges:      bridges,
		scorer:       scorer,
		quoteTimeout: 10 * time.Second,
	}
}

// SetQuoteTimeout overrides the per-adapter quote timeout.
func (p *Planner) SetQuoteTimeout(d time.Duration) {
	p.quoteTimeout = d
}

// PlanRoutes enumerates candidates for the intent and returns them sorted by
// score descending. Ties keep enumeration order, which is the registry's
// configuration order, so the ranking is deterministic for fixed quotes.
// An empty slice with a nil error means every configured adapter failed
// transiently; callers must handle "no route".
func (p *Planner) PlanRoutes(ctx context.Context, intent *models.Intent) ([]RouteCandidate, error) {
	log.Info().
		Uint64("srcChain", intent.SourceChainID).
		Uint64("dstChain", intent.DestinationChainID).
		Str("tokenIn", intent.TokenIn.Hex()).
		Str("tokenOut", intent.TokenOut.Hex()).
		Str("amountIn", intent.AmountIn.String()).
		Msg("Planning routes")

	var (
		candidates []RouteCandidate
		err        error
	)
	if intent.SameChain() {
		candidates, err = p.planSameChain(ctx, intent)
	} else {
		candidates, err = p.planCrossChain(ctx, intent)
	}
	if err != nil {
		return nil, err
	}

	candidates = p.scoreAll(ctx, intent, candidates)

	// Stable sort preserves discovery order among equal scores.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score.GreaterThan(candidates[j].Score)
	})

	log.Info().Int("candidates", len(candidates)).Msg("Planning complete")
	return candidates, nil
}

// BestRoute returns the top-ranked candidate, or nil when no route exists.
func (p *Planner) BestRoute(ctx context.Context, intent *models.Intent) (*RouteCandidate, error) {
	candidates, err := p.PlanRoutes(ctx, intent)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// quoteOutcome carries one adapter's result back from its goroutine. The
// slot index pins results to enumeration order regardless of completion
// order.
type quoteOutcome struct {
	candidate *RouteCandidate
	err       error
	protocol  string
}

// planSameChain quotes every configured swap venue on the intent's chain
// concurrently, then collects the results in registry order. Scoring only
// starts after every outstanding quote has resolved or failed.
func (p *Planner) planSameChain(ctx context.Context, intent *models.Intent) ([]RouteCandidate, error) {
	endpoints := p.registry.SwapVenues(intent.SourceChainID)
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: chain %d has no swap venues", ErrNoAdaptersConfigured, intent.SourceChainID)
	}

	outcomes := make([]quoteOutcome, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		client, ok := p.venues[ep.Protocol]
		if !ok {
			outcomes[i] = quoteOutcome{protocol: ep.Protocol, err: fmt.Errorf("no client configured for venue %s", ep.Protocol)}
			continue
		}
		wg.Add(1)
		go func(i int, ep registry.Endpoint, client adapters.SwapVenueClient) {
			defer wg.Done()
			outcomes[i] = p.quoteVenue(ctx, intent, ep, client)
		}(i, ep, client)
	}
	wg.Wait()

	var candidates []RouteCandidate
	for _, out := range outcomes {
		if out.err != nil {
			log.Warn().Err(out.err).Str("venue", out.protocol).Msg("Skipping venue")
			continue
		}
		candidates = append(candidates, *out.candidate)
	}
	return candidates, nil
}

func (p *Planner) quoteVenue(ctx context.Context, intent *models.Intent, ep registry.Endpoint, client adapters.SwapVenueClient) quoteOutcome {
	quoteCtx, cancel := context.WithTimeout(ctx, p.quoteTimeout)
	defer cancel()

	quote, err := client.GetQuote(quoteCtx, intent.TokenIn, intent.TokenOut, intent.AmountIn)
	if err != nil {
		return quoteOutcome{protocol: ep.Protocol, err: fmt.Errorf("quote failed: %w", err)}
	}
	if quote.AmountOut == nil || quote.AmountOut.Sign() <= 0 {
		return quoteOutcome{protocol: ep.Protocol, err: fmt.Errorf("venue returned zero output")}
	}

	candidate := &RouteCandidate{
		RouteID: uuid.NewString(),
		Kind:    KindSameChain,
		Steps: []RouteStep{{
			Kind:        StepSwap,
			Protocol:    ep.Protocol,
			Adapter:     ep.Address,
			TokenIn:     intent.TokenIn,
			TokenOut:    intent.TokenOut,
			ChainID:     intent.SourceChainID,
			GasEstimate: GasUnitsFor(ep.Protocol),
		}},
		AmountIn:          new(big.Int).Set(intent.AmountIn),
		ExpectedAmountOut: quote.AmountOut,
		BridgeFee:         big.NewInt(0),
		NetUserOutput:     new(big.Int).Set(quote.AmountOut),
	}
	return quoteOutcome{candidate: candidate, protocol: ep.Protocol}
}

// planCrossChain estimates fees for every bridge protocol configured on
// both the source and destination chain. Bridges lacking either endpoint
// are never attempted. The bridge hop is modeled as a single pass-through
// step carrying the token across.
func (p *Planner) planCrossChain(ctx context.Context, intent *models.Intent) ([]RouteCandidate, error) {
	pairs := p.registry.BridgePairs(intent.SourceChainID, intent.DestinationChainID)
	if len(pairs) == 0 {
		if !p.registry.IsConfigured(intent.SourceChainID) || !p.registry.IsConfigured(intent.DestinationChainID) {
			return nil, fmt.Errorf("%w: chains %d -> %d", ErrNoAdaptersConfigured,
				intent.SourceChainID, intent.DestinationChainID)
		}
		// Both chains configured but no bridge spans them: also a setup
		// bug, since the pair cannot ever be served.
		return nil, fmt.Errorf("%w: no bridge spans chains %d -> %d", ErrNoAdaptersConfigured,
			intent.SourceChainID, intent.DestinationChainID)
	}

	outcomes := make([]quoteOutcome, len(pairs))
	var wg sync.WaitGroup
	for i, pair := range pairs {
		client, ok := p.bridges[pair.Protocol]
		if !ok {
			outcomes[i] = quoteOutcome{protocol: pair.Protocol, err: fmt.Errorf("no client configured for bridge %s", pair.Protocol)}
			continue
		}
		wg.Add(1)
		go func(i int, pair registry.BridgePair, client adapters.BridgeClient) {
			defer wg.Done()
			outcomes[i] = p.quoteBridge(ctx, intent, pair, client)
		}(i, pair, client)
	}
	wg.Wait()

	var candidates []RouteCandidate
	for _, out := range outcomes {
		if out.err != nil {
			log.Warn().Err(out.err).Str("bridge", out.protocol).Msg("Skipping bridge")
			continue
		}
		candidates = append(candidates, *out.candidate)
	}
	return candidates, nil
}

func (p *Planner) quoteBridge(ctx context.Context, intent *models.Intent, pair registry.BridgePair, client adapters.BridgeClient) quoteOutcome {
	quoteCtx, cancel := context.WithTimeout(ctx, p.quoteTimeout)
	defer cancel()

	fee, err := client.EstimateFee(quoteCtx, intent.SourceChainID, intent.DestinationChainID, intent.TokenIn, intent.AmountIn)
	if err != nil {
		return quoteOutcome{protocol: pair.Protocol, err: fmt.Errorf("bridge fee estimate failed: %w", err)}
	}
	if fee == nil || fee.Sign() < 0 || fee.Cmp(intent.AmountIn) >= 0 {
		return quoteOutcome{protocol: pair.Protocol, err: fmt.Errorf("bridge fee %v unusable for amount %s", fee, intent.AmountIn)}
	}

	expectedOut := new(big.Int).Sub(intent.AmountIn, fee)
	candidate := &RouteCandidate{
		RouteID: uuid.NewString(),
		Kind:    KindCrossChain,
		Steps: []RouteStep{{
			Kind:        StepBridge,
			Protocol:    pair.Protocol,
			Adapter:     pair.Source.Address,
			TokenIn:     intent.TokenIn,
			TokenOut:    intent.TokenOut,
			ChainID:     intent.SourceChainID,
			GasEstimate: GasUnitsFor(pair.Protocol),
		}},
		AmountIn:          new(big.Int).Set(intent.AmountIn),
		ExpectedAmountOut: new(big.Int).Set(intent.AmountIn),
		BridgeFee:         fee,
		NetUserOutput:     expectedOut,
	}
	return quoteOutcome{candidate: candidate, protocol: pair.Protocol}
}

// scoreAll scores candidates, dropping any whose price conversion fails;
// a broken price feed for one candidate should not sink the others.
func (p *Planner) scoreAll(ctx context.Context, intent *models.Intent, candidates []RouteCandidate) []RouteCandidate {
	chainsTouched := []uint64{intent.SourceChainID}
	if !intent.SameChain() {
		chainsTouched = append(chainsTouched, intent.DestinationChainID)
	}

	scored := candidates[:0]
	for i := range candidates {
		c := &candidates[i]
		if err := p.scorer.scoreCandidate(ctx, c, intent.TokenOut, intent.DestinationChainID, chainsTouched); err != nil {
			log.Warn().Err(err).Str("routeId", c.RouteID).Msg("Dropping unscorable candidate")
			continue
		}
		scored = append(scored, *c)
	}
	return scored
}
