// Package reorg finds where a live chain and the stored chain part ways.
package reorg

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/pkg/rpc"
)

// BlockSource is the part of the chain client the resolver walks.
type BlockSource interface {
	BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*rpc.Block, error)
}

// HashStore exposes stored block hashes.
type HashStore interface {
	BlockHashAt(ctx context.Context, height uint64) (string, bool, error)
}

// Resolution is the range to (re)write: heights From through the live height.
type Resolution struct {
	From   uint64
	Forked bool
	// Depth is the number of stored heights that have to be rewritten.
	Depth uint64
}

type Resolver struct {
	chain  BlockSource
	store  HashStore
	logger *zap.Logger
}

func NewResolver(chain BlockSource, store HashStore, logger *zap.Logger) *Resolver {
	return &Resolver{chain: chain, store: store, logger: logger}
}

// Resolve walks back from the first height to write until a stored hash matches the live
// parent pointer above it. Height 0 always matches, so the walk is bounded.
func (r *Resolver) Resolve(ctx context.Context, local, live uint64) (Resolution, error) {
	if live == 0 {
		return Resolution{From: 1}, nil
	}

	firstNew := min(local+1, live)
	// The live chain did not grow past the stored tip, so the tip itself is suspect.
	forked := firstNew <= local

	above, err := r.chain.BlockByNumber(ctx, firstNew, false)
	if err != nil {
		return Resolution{}, fmt.Errorf("fetch block #%d: %w", firstNew, err)
	}

	ancestor := firstNew - 1
	for ancestor > 0 {
		hash, found, err := r.store.BlockHashAt(ctx, ancestor)
		if err != nil {
			return Resolution{}, fmt.Errorf("stored hash at #%d: %w", ancestor, err)
		}
		if found && above != nil && hash == above.ParentHash {
			break
		}

		r.logger.Debug("Stored block does not match live chain",
			zap.Uint64("height", ancestor),
			zap.String("stored_hash", hash),
			zap.Bool("live_block_found", above != nil))

		above, err = r.chain.BlockByNumber(ctx, ancestor, false)
		if err != nil {
			return Resolution{}, fmt.Errorf("fetch block #%d: %w", ancestor, err)
		}
		forked = true
		ancestor--
	}

	res := Resolution{From: ancestor + 1, Forked: forked}
	if forked && res.From <= local {
		res.Depth = local - res.From + 1
	}
	return res, nil
}
