// Package registry holds the static adapter registry: which swap venues and
// bridges are configured on which chain. It is loaded once at startup and
// never mutated afterwards, so lookups need no locking. Enumeration order
// follows the config file, which keeps route planning deterministic.
package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Kind discriminates adapter endpoints.
type Kind string

const (
	KindSwap   Kind = "swap"
	KindBridge Kind = "bridge"
)

// Endpoint is one configured adapter on a specific chain.
type Endpoint struct {
	Kind     Kind
	Protocol string // e.g. "uniswap-v3", "stargate"
	Address  common.Address
	URL      string
}

// BridgePair is a bridge protocol with endpoints configured on both the
// source and the destination chain. Bridges missing either side are never
// offered as pairs.
type BridgePair struct {
	Protocol    string
	Source      Endpoint
	Destination Endpoint
}

// Registry maps chain id -> ordered adapter endpoints.
type Registry struct {
	chains map[uint64][]Endpoint
	order  []uint64
}

// New builds a registry from per-chain endpoint lists and validates every
// entry. Missing or malformed entries fail fast; a half-configured registry
// signals a setup bug, not a transient condition.
func New(chains map[uint64][]Endpoint, order []uint64) (*Registry, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("registry: no chains configured")
	}
	seen := make(map[string]bool)
	for chainID, endpoints := range chains {
		if chainID == 0 {
			return nil, fmt.Errorf("registry: chain id 0 is not valid")
		}
		if len(endpoints) == 0 {
			return nil, fmt.Errorf("registry: chain %d has no adapters", chainID)
		}
		for _, ep := range endpoints {
			if ep.Kind != KindSwap && ep.Kind != KindBridge {
				return nil, fmt.Errorf("registry: chain %d adapter %q has unknown kind %q", chainID, ep.Protocol, ep.Kind)
			}
			if ep.Protocol == "" {
				return nil, fmt.Errorf("registry: chain %d has an adapter without a protocol name", chainID)
			}
			if ep.Address == (common.Address{}) {
				return nil, fmt.Errorf("registry: chain %d adapter %q has a zero address", chainID, ep.Protocol)
			}
			if ep.URL == "" {
				return nil, fmt.Errorf("registry: chain %d adapter %q has no endpoint URL", chainID, ep.Protocol)
			}
			key := fmt.Sprintf("%d/%s/%s", chainID, ep.Kind, ep.Protocol)
			if seen[key] {
				return nil, fmt.Errorf("registry: duplicate adapter %s", key)
			}
			seen[key] = true
		}
	}
	return &Registry{chains: chains, order: order}, nil
}

// SwapVenues returns the swap-venue endpoints configured on a chain, in
// configuration order.
func (r *Registry) SwapVenues(chainID uint64) []Endpoint {
	return r.byKind(chainID, KindSwap)
}

// Bridges returns the bridge endpoints configured on a chain.
func (r *Registry) Bridges(chainID uint64) []Endpoint {
	return r.byKind(chainID, KindBridge)
}

// BridgePairs returns the bridge protocols that have endpoints configured on
// both src and dst, ordered by the source chain's configuration order.
func (r *Registry) BridgePairs(src, dst uint64) []BridgePair {
	dstByProtocol := make(map[string]Endpoint)
	for _, ep := range r.byKind(dst, KindBridge) {
		dstByProtocol[ep.Protocol] = ep
	}
	var pairs []BridgePair
	for _, ep := range r.byKind(src, KindBridge) {
		dstEp, ok := dstByProtocol[ep.Protocol]
		if !ok {
			continue
		}
		pairs = append(pairs, BridgePair{Protocol: ep.Protocol, Source: ep, Destination: dstEp})
	}
	return pairs
}

// IsConfigured reports whether the chain has any adapters at all.
func (r *Registry) IsConfigured(chainID uint64) bool {
	return len(r.chains[chainID]) > 0
}

// Chains returns the configured chain ids in configuration order.
func (r *Registry) Chains() []uint64 {
	out := make([]uint64, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) byKind(chainID uint64, kind Kind) []Endpoint {
	var out []Endpoint
	for _, ep := range r.chains[chainID] {
		if ep.Kind == kind {
			out = append(out, ep)
		}
	}
	return out
}
