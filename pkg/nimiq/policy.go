package nimiq

import (
	"fmt"
	"strings"
)

// Network selects the chain the indexer follows.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// ParseNetwork accepts anything containing "main" as mainnet, mirroring the NETWORK env convention.
func ParseNetwork(s string) (Network, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return Testnet, nil
	case strings.Contains(s, "main"):
		return Mainnet, nil
	case strings.Contains(s, "test"):
		return Testnet, nil
	}
	return "", fmt.Errorf("unknown network %q", s)
}

const (
	BlocksPerBatch  = 60
	BatchesPerEpoch = 720
	BlocksPerEpoch  = BlocksPerBatch * BatchesPerEpoch

	// TransitionVotes is recorded for the first election block, which has no justification.
	TransitionVotes = 512
)

// Policy carries the per-network consensus constants needed to classify heights.
type Policy struct {
	Network Network
	// TransitionBlock is the first Albatross height (the PoS genesis election block).
	TransitionBlock uint64
}

func PolicyFor(n Network) Policy {
	if n == Mainnet {
		return Policy{Network: n, TransitionBlock: 3_456_000}
	}
	return Policy{Network: Testnet, TransitionBlock: 3_032_010}
}

// IsAlbatross reports whether h belongs to the proof-of-stake phase.
func (p Policy) IsAlbatross(h uint64) bool {
	return h >= p.TransitionBlock
}

// BatchIndexAt is the position of h within its batch; before the transition it is h itself.
func (p Policy) BatchIndexAt(h uint64) uint64 {
	if h < p.TransitionBlock {
		return h
	}
	return (h - p.TransitionBlock + BlocksPerBatch - 1) % BlocksPerBatch
}

// IsMacroBlockAt reports whether h closes a batch.
func (p Policy) IsMacroBlockAt(h uint64) bool {
	if h < p.TransitionBlock {
		return false
	}
	return p.BatchIndexAt(h) == BlocksPerBatch-1
}

// IsElectionBlockAt reports whether h closes an epoch. The transition block counts.
func (p Policy) IsElectionBlockAt(h uint64) bool {
	if h < p.TransitionBlock {
		return false
	}
	return (h-p.TransitionBlock)%BlocksPerEpoch == 0
}

// EpochAt returns the epoch number h belongs to, counting the transition block as epoch 0.
func (p Policy) EpochAt(h uint64) uint64 {
	if h <= p.TransitionBlock {
		return 0
	}
	return (h - p.TransitionBlock + BlocksPerEpoch - 1) / BlocksPerEpoch
}
