package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
)

// adapterFile is the on-disk registry shape (TOML, JSON fallback).
type adapterFile struct {
	Chains []chainEntry `toml:"chains" json:"chains"`
}

type chainEntry struct {
	ID       uint64         `toml:"id" json:"id"`
	Adapters []adapterEntry `toml:"adapters" json:"adapters"`
}

type adapterEntry struct {
	Kind     string `toml:"kind" json:"kind"`
	Protocol string `toml:"protocol" json:"protocol"`
	Address  string `toml:"address" json:"address"`
	URL      string `toml:"url" json:"url"`
}

// Load reads an adapter registry file and returns a validated Registry.
// The file is TOML unless the path ends in .json.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter registry file: %w", err)
	}

	var file adapterFile
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON registry: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML registry: %w", err)
		}
	}

	return fromFileFormat(&file)
}

// fromFileFormat converts the raw file shape into a Registry, validating
// every address before the registry is constructed.
func fromFileFormat(file *adapterFile) (*Registry, error) {
	if file == nil || len(file.Chains) == 0 {
		return nil, fmt.Errorf("no chains in adapter registry")
	}

	chains := make(map[uint64][]Endpoint, len(file.Chains))
	order := make([]uint64, 0, len(file.Chains))

	for _, chain := range file.Chains {
		if _, dup := chains[chain.ID]; dup {
			return nil, fmt.Errorf("chain %d appears twice in the registry", chain.ID)
		}
		endpoints := make([]Endpoint, 0, len(chain.Adapters))
		for _, a := range chain.Adapters {
			if !common.IsHexAddress(a.Address) {
				return nil, fmt.Errorf("chain %d adapter %q: %q is not a valid address", chain.ID, a.Protocol, a.Address)
			}
			endpoints = append(endpoints, Endpoint{
				Kind:     Kind(a.Kind),
				Protocol: a.Protocol,
				Address:  common.HexToAddress(a.Address),
				URL:      a.URL,
			})
		}
		chains[chain.ID] = endpoints
		order = append(order, chain.ID)
	}

	return New(chains, order)
}
