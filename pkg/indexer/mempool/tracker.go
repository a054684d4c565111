// Package mempool keeps pending transactions in the store in line with the node's mempool.
package mempool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/db/transform"
	"github.com/canopy-network/nimiqx/pkg/rpc"
)

// Mode selects how the live mempool is listed.
type Mode string

const (
	// ModeHashes lists hashes and fetches each new body separately.
	ModeHashes Mode = "hashes"
	// ModeFull lists full pending transactions in one call.
	ModeFull Mode = "full"
)

// DefaultConfirmedTTL is how long a confirmed hash is kept out of the pending set.
const DefaultConfirmedTTL = 2 * time.Minute

type Chain interface {
	MempoolHashes(ctx context.Context) ([]string, error)
	MempoolTransactions(ctx context.Context) ([]rpc.Transaction, error)
	TransactionByHash(ctx context.Context, hash string) (*rpc.Transaction, error)
}

type Store interface {
	InsertPendingTransactions(ctx context.Context, txs []*chainmodels.Transaction) error
	DeletePendingTransaction(ctx context.Context, hash string) (bool, error)
}

// Result summarises one reconciliation.
type Result struct {
	Added   int
	Removed int
	Size    int
}

// Tracker owns the set of tracked pending hashes. Reconcile and Confirm are called from
// the sync loop only; the set itself is safe for concurrent readers such as metrics.
type Tracker struct {
	chain  Chain
	store  Store
	mode   Mode
	pool   pond.Pool
	logger *zap.Logger

	tracked   *xsync.Map[string, struct{}]
	// confirmed maps a recently included hash to its block height.
	confirmed *ttlcache.Cache[string, uint64]
}

func New(chain Chain, store Store, mode Mode, pool pond.Pool, logger *zap.Logger) *Tracker {
	return &Tracker{
		chain:  chain,
		store:  store,
		mode:   mode,
		pool:   pool,
		logger: logger.With(zap.String("component", "mempool")),

		tracked: xsync.NewMap[string, struct{}](),
		confirmed: ttlcache.New[string, uint64](
			ttlcache.WithTTL[string, uint64](DefaultConfirmedTTL),
			ttlcache.WithDisableTouchOnHit[string, uint64](),
		),
	}
}

// Size is the number of tracked pending hashes.
func (t *Tracker) Size() int {
	return t.tracked.Size()
}

// Tracked reports whether hash is in the pending set.
func (t *Tracker) Tracked(hash string) bool {
	_, ok := t.tracked.Load(hash)
	return ok
}

// Confirm drops hashes included in the block at height from the pending set. Their store rows
// were already promoted by the block commit.
func (t *Tracker) Confirm(height uint64, hashes []string) {
	for _, h := range hashes {
		t.tracked.Delete(h)
		t.confirmed.Set(h, height, ttlcache.DefaultTTL)
	}
}

// Unconfirm forgets confirmations of blocks at or above from, which a fork removed. Their
// transactions are pending again if the node puts them back into its mempool.
func (t *Tracker) Unconfirm(from uint64) int {
	var orphaned []string
	t.confirmed.Range(func(item *ttlcache.Item[string, uint64]) bool {
		if item.Value() >= from {
			orphaned = append(orphaned, item.Key())
		}
		return true
	})
	for _, h := range orphaned {
		t.confirmed.Delete(h)
	}
	if len(orphaned) > 0 {
		t.logger.Debug("Forgot confirmations rolled back by fork",
			zap.Uint64("from", from),
			zap.Int("count", len(orphaned)))
	}
	return len(orphaned)
}

// Reconcile brings the tracked set and the store's pending rows in line with the live mempool.
func (t *Tracker) Reconcile(ctx context.Context) (Result, error) {
	var res Result
	t.confirmed.DeleteExpired()

	live, listed, bodies, err := t.listLive(ctx)
	if err != nil {
		return res, err
	}

	var fresh []string
	for h := range live {
		if _, ok := t.tracked.Load(h); ok {
			continue
		}
		fresh = append(fresh, h)
	}

	if len(fresh) > 0 {
		if bodies == nil {
			if bodies, err = t.fetchBodies(ctx, fresh); err != nil {
				return res, err
			}
		}
		rows := make([]*chainmodels.Transaction, 0, len(fresh))
		for _, h := range fresh {
			tx, ok := bodies[h]
			if !ok {
				// evicted between listing and fetch
				delete(live, h)
				listed--
				continue
			}
			rows = append(rows, transform.PendingRow(tx))
		}
		if len(rows) > 0 {
			if err := t.store.InsertPendingTransactions(ctx, rows); err != nil {
				return res, fmt.Errorf("insert pending transactions: %w", err)
			}
		}
		for _, row := range rows {
			t.tracked.Store(row.Hash, struct{}{})
		}
		res.Added = len(rows)
	}

	var gone []string
	t.tracked.Range(func(h string, _ struct{}) bool {
		if _, ok := live[h]; !ok {
			gone = append(gone, h)
		}
		return true
	})
	for _, h := range gone {
		if _, err := t.store.DeletePendingTransaction(ctx, h); err != nil {
			return res, fmt.Errorf("delete pending transaction %s: %w", h, err)
		}
		t.tracked.Delete(h)
	}
	res.Removed = len(gone)
	res.Size = t.tracked.Size()

	if res.Size != listed {
		t.logger.Error("Tracked mempool size differs from live mempool",
			zap.Int("tracked", res.Size),
			zap.Int("live", listed),
			zap.Int("recently_confirmed", listed-len(live)),
			zap.Bool("invariant", true))
	}
	if res.Added > 0 || res.Removed > 0 {
		t.logger.Debug("Reconciled mempool",
			zap.Int("added", res.Added),
			zap.Int("removed", res.Removed),
			zap.Int("size", res.Size))
	}
	return res, nil
}

// listLive returns the live pending hashes minus recently confirmed ones, and the size of the
// unfiltered listing. In full mode the bodies come along.
func (t *Tracker) listLive(ctx context.Context) (map[string]struct{}, int, map[string]*rpc.Transaction, error) {
	live := map[string]struct{}{}
	switch t.mode {
	case ModeFull:
		txs, err := t.chain.MempoolTransactions(ctx)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("list mempool transactions: %w", err)
		}
		bodies := make(map[string]*rpc.Transaction, len(txs))
		for i := range txs {
			if t.confirmed.Has(txs[i].Hash) {
				continue
			}
			live[txs[i].Hash] = struct{}{}
			bodies[txs[i].Hash] = &txs[i]
		}
		return live, len(txs), bodies, nil
	default:
		hashes, err := t.chain.MempoolHashes(ctx)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("list mempool hashes: %w", err)
		}
		for _, h := range hashes {
			if t.confirmed.Has(h) {
				continue
			}
			live[h] = struct{}{}
		}
		return live, len(hashes), nil, nil
	}
}

func (t *Tracker) fetchBodies(ctx context.Context, hashes []string) (map[string]*rpc.Transaction, error) {
	var mu sync.Mutex
	bodies := make(map[string]*rpc.Transaction, len(hashes))

	group := t.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, h := range hashes {
		group.SubmitErr(func() error {
			tx, err := t.chain.TransactionByHash(groupCtx, h)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", h, err)
			}
			if tx == nil {
				return nil
			}
			mu.Lock()
			bodies[h] = tx
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("fetch mempool bodies: %w", err)
	}
	return bodies, nil
}
