package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Manifest links a run to its per-chain feature artifacts. Chains maps
// chain ID to the artifact prefix holding that chain's features.pkl.
// FullProtein, when set, points at precomputed whole-assembly features
// and lets the merge step pass them through unchanged.
type Manifest struct {
	Chains      map[string]string `json:"chains"`
	FullProtein string            `json:"full_protein,omitempty"`
}

// NewManifest builds a manifest for the given chains, keyed under the
// run prefix.
func NewManifest(chains []Chain, prefixFor func(chainID string) string) *Manifest {
	m := &Manifest{Chains: make(map[string]string, len(chains))}
	for _, c := range chains {
		m.Chains[c.ID] = prefixFor(c.ID)
	}
	return m
}

// ParseManifest decodes a manifest artifact.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadManifest, err)
	}
	if m.Chains == nil {
		m.Chains = map[string]string{}
	}
	return &m, nil
}

// Encode renders the manifest as JSON. Map keys marshal sorted, so the
// encoding is deterministic.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

// ChainPrefix returns the artifact prefix for one chain.
func (m *Manifest) ChainPrefix(chainID string) (string, error) {
	prefix, ok := m.Chains[chainID]
	if !ok || prefix == "" {
		return "", &ChainPathError{ChainID: chainID}
	}
	return prefix, nil
}

// ChainIDs returns the manifest's chain identifiers in sorted order.
func (m *Manifest) ChainIDs() []string {
	out := make([]string, 0, len(m.Chains))
	for id := range m.Chains {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NumChains returns the chain count.
func (m *Manifest) NumChains() int { return len(m.Chains) }
