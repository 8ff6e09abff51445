// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package peer defines the identity and static classification types shared
// by the transport layer and the shared-mempool runtime (§3), kept
// dependency-free so both sides can import it without a cycle.
package peer

// ID is an opaque, equality-and-hash-comparable peer identity.
type ID string

// NetworkScope distinguishes the validator-only network from the
// full-node network a peer was seen on.
type NetworkScope int

const (
	FullNodeNetwork NetworkScope = iota
	ValidatorNetwork
)

func (s NetworkScope) String() string {
	if s == ValidatorNetwork {
		return "validator"
	}
	return "full_node"
}

// NetworkID is (network-scope, ID): the key PeerInfo is indexed by.
type NetworkID struct {
	Scope NetworkScope
	ID    ID
}

// SyncState is the per-peer liveness/cursor record (§3). TimelineID is
// non-decreasing across the lifetime of an entry and is retained across
// liveness transitions so a recovering peer resumes where it stopped.
type SyncState struct {
	TimelineID uint64
	IsAlive    bool
}

// UpstreamConfig statically classifies peers into primary/fallback
// upstreams and lists validator-network peers used for the NonQualified
// re-broadcast-loop rule (§4.3).
type UpstreamConfig struct {
	primary   map[NetworkID]struct{}
	fallback  map[NetworkID]struct{}
	validator map[NetworkID]struct{}
}

// NewUpstreamConfig builds a static classification from configuration.
func NewUpstreamConfig(primary, fallback, validator []NetworkID) UpstreamConfig {
	cfg := UpstreamConfig{
		primary:   make(map[NetworkID]struct{}, len(primary)),
		fallback:  make(map[NetworkID]struct{}, len(fallback)),
		validator: make(map[NetworkID]struct{}, len(validator)),
	}
	for _, p := range primary {
		cfg.primary[p] = struct{}{}
	}
	for _, f := range fallback {
		cfg.fallback[f] = struct{}{}
	}
	for _, v := range validator {
		cfg.validator[v] = struct{}{}
	}
	return cfg
}

// IsUpstreamPeer reports whether p is a configured primary or fallback.
func (c UpstreamConfig) IsUpstreamPeer(p NetworkID) bool {
	return c.IsPrimaryUpstreamPeer(p) || c.IsFallbackUpstreamPeer(p)
}

// IsPrimaryUpstreamPeer reports whether p is a configured primary.
func (c UpstreamConfig) IsPrimaryUpstreamPeer(p NetworkID) bool {
	_, ok := c.primary[p]
	return ok
}

// IsFallbackUpstreamPeer reports whether p is a configured fallback.
func (c UpstreamConfig) IsFallbackUpstreamPeer(p NetworkID) bool {
	_, ok := c.fallback[p]
	return ok
}

// IsValidatorPeer reports whether p is a member of the validator network
// peer list (§4.3, §6 validator_network.peers).
func (c UpstreamConfig) IsValidatorPeer(p NetworkID) bool {
	_, ok := c.validator[p]
	return ok
}
