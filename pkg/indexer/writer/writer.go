// Package writer turns fetched heights into committed row sets.
package writer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/pkg/db"
	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/db/transform"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/utils"
)

// ErrMissingBlockData means the node returned neither a block nor any transactions or
// inherents for a height it reports as part of the chain.
var ErrMissingBlockData = errors.New("writer: node returned no data for height")

// Chain is the part of the node client the writer reads.
type Chain interface {
	BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*rpc.Block, error)
	TransactionsByHeight(ctx context.Context, height uint64) ([]rpc.Transaction, error)
	InherentsByHeight(ctx context.Context, height uint64) ([]rpc.Inherent, error)
	Account(ctx context.Context, address string) (*rpc.AccountSnapshot, error)
}

// Confirmer is told which transaction hashes a committed height included.
type Confirmer interface {
	Confirm(height uint64, hashes []string)
}

// Affected is the set of fork-affected addresses whose last_sent/last_received still have
// to be rebuilt. Entries are removed once the height that resolved them is committed.
type Affected map[string]struct{}

func NewAffected(addresses []string) Affected {
	a := make(Affected, len(addresses))
	for _, addr := range addresses {
		a[addr] = struct{}{}
	}
	return a
}

// Addresses lists the set in order.
func (a Affected) Addresses() []string {
	out := make([]string, 0, len(a))
	for addr := range a {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

type Writer struct {
	chain     Chain
	store     db.ChainStore
	policy    nimiq.Policy
	pool      pond.Pool
	confirmer Confirmer
	logger    *zap.Logger
}

// New builds a Writer. Balance lookups for one height run on pool.
func New(chain Chain, store db.ChainStore, policy nimiq.Policy, pool pond.Pool, logger *zap.Logger) *Writer {
	return &Writer{
		chain:  chain,
		store:  store,
		policy: policy,
		pool:   pool,
		logger: logger.With(zap.String("component", "writer")),
	}
}

// SetConfirmer registers the mempool view to notify after each commit.
func (w *Writer) SetConfirmer(c Confirmer) {
	w.confirmer = c
}

// WriteRange writes heights from..to in ascending order, stopping at the first failure.
func (w *Writer) WriteRange(ctx context.Context, from, to uint64, affected Affected) error {
	for h := from; h <= to; h++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.WriteHeight(ctx, h, affected); err != nil {
			return err
		}
	}
	return nil
}

// WriteHeight fetches, derives and commits one height.
func (w *Writer) WriteHeight(ctx context.Context, height uint64, affected Affected) (*chainmodels.RowSet, error) {
	start := time.Now()

	in, err := w.fetch(ctx, height)
	if err != nil {
		return nil, err
	}
	rows := transform.Derive(w.policy, in)

	if err := w.fillBalances(ctx, rows); err != nil {
		return nil, err
	}
	var resolved []string
	if len(affected) > 0 {
		if resolved, err = w.recomputeAffected(ctx, rows, affected); err != nil {
			return nil, err
		}
	}

	if err := w.store.Commit(ctx, rows); err != nil {
		return nil, fmt.Errorf("commit #%d: %w", height, err)
	}
	// only a committed recomputation resolves an address
	for _, addr := range resolved {
		delete(affected, addr)
	}
	if w.confirmer != nil {
		w.confirmer.Confirm(height, rows.IncludedHashes)
	}

	w.logger.Info("Wrote block",
		zap.Uint64("height", height),
		zap.Int("transactions", len(rows.Transactions)),
		zap.Int("inherents", len(rows.Inherents)),
		zap.Int("accounts", len(rows.Accounts)),
		zap.Duration("duration", time.Since(start)))
	return rows, nil
}

func (w *Writer) fetch(ctx context.Context, height uint64) (transform.Input, error) {
	in := transform.Input{Height: height}

	block, err := w.chain.BlockByNumber(ctx, height, true)
	if err != nil {
		return in, fmt.Errorf("fetch block #%d: %w", height, err)
	}
	in.Block = block

	if block != nil && block.TransactionsIncluded {
		in.Transactions = block.Transactions
	} else {
		in.Transactions, err = w.chain.TransactionsByHeight(ctx, height)
		if err != nil {
			return in, fmt.Errorf("fetch transactions #%d: %w", height, err)
		}
	}

	in.Inherents, err = w.chain.InherentsByHeight(ctx, height)
	if err != nil {
		return in, fmt.Errorf("fetch inherents #%d: %w", height, err)
	}

	if block == nil && len(in.Transactions) == 0 && len(in.Inherents) == 0 {
		return in, fmt.Errorf("%w: #%d", ErrMissingBlockData, height)
	}
	return in, nil
}

// fillBalances sets every touched account's balance from the node, one lookup per address.
func (w *Writer) fillBalances(ctx context.Context, rows *chainmodels.RowSet) error {
	group := w.pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, addr := range rows.Addresses() {
		acc := rows.Accounts[addr]
		group.SubmitErr(func() error {
			balance, err := w.balance(groupCtx, addr)
			if err != nil {
				return err
			}
			acc.Balance = balance
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("fetch balances #%d: %w", rows.Height, err)
	}
	return nil
}

func (w *Writer) balance(ctx context.Context, address string) (uint64, error) {
	snap, err := w.chain.Account(ctx, address)
	if err != nil {
		return 0, fmt.Errorf("account %s: %w", address, err)
	}
	if snap == nil {
		return 0, nil
	}
	return snap.Balance, nil
}

// recomputeAffected rebuilds last_sent/last_received for fork-affected addresses from the
// surviving rows and returns the addresses it resolved. affected is left untouched.
func (w *Writer) recomputeAffected(ctx context.Context, rows *chainmodels.RowSet, affected Affected) ([]string, error) {
	var resolved []string
	for _, addr := range affected.Addresses() {
		entry, inDelta := rows.Accounts[addr]
		if !inDelta {
			stored, err := w.store.GetAccount(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("load fork-affected account %s: %w", addr, err)
			}
			if stored == nil {
				w.logger.Error("Fork-affected account not found",
					zap.String("address", addr),
					zap.Uint64("height", rows.Height),
					zap.Bool("invariant", true))
				continue
			}
			if stored.Balance, err = w.balance(ctx, addr); err != nil {
				return nil, err
			}
			entry = stored
			rows.Accounts[addr] = entry
		}

		if entry.LastSent == nil {
			h, found, err := w.store.MostRecentTxHeight(ctx, addr, db.RoleSender)
			if err != nil {
				return nil, fmt.Errorf("last sent of %s: %w", addr, err)
			}
			if found {
				entry.LastSent = utils.Ptr(h)
			}
		}
		if entry.LastReceived == nil {
			received, _, err := w.store.MostRecentTxHeight(ctx, addr, db.RoleRecipient)
			if err != nil {
				return nil, fmt.Errorf("last received of %s: %w", addr, err)
			}
			mined, _, err := w.store.MostRecentMinedHeight(ctx, addr)
			if err != nil {
				return nil, fmt.Errorf("last mined of %s: %w", addr, err)
			}
			if latest := max(received, mined); latest > 0 {
				entry.LastReceived = utils.Ptr(latest)
			}
		}
		entry.Recomputed = true
		resolved = append(resolved, addr)

		w.logger.Debug("Recomputed fork-affected account",
			zap.String("address", addr),
			zap.Uint64("height", rows.Height))
	}
	return resolved, nil
}
