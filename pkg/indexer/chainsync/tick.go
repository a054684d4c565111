package chainsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/pkg/indexer/writer"
	"github.com/canopy-network/nimiqx/pkg/metrics"
)

// Tick runs one steady-state pass: block work when the live height moved, then mempool
// reconciliation. A failed tick leaves the store at the last fully committed height.
func (e *Engine) Tick(ctx context.Context) error {
	if !e.machine.Is(StateSteady) {
		return fmt.Errorf("tick from state %s", e.State())
	}
	start := time.Now()

	moved, err := e.syncBlocks(ctx)
	if err == nil {
		err = e.reconcileMempool(ctx)
	}

	status := metrics.StatusSuccess
	switch {
	case err != nil:
		status = metrics.StatusError
	case !moved:
		status = metrics.StatusIdle
	}
	e.Metrics.RecordTick(status, time.Since(start).Seconds(), err)
	return err
}

// syncBlocks reports whether the live height differed from the local tip.
func (e *Engine) syncBlocks(ctx context.Context) (bool, error) {
	live, err := e.Chain.CurrentHeight(ctx)
	if err != nil {
		return false, fmt.Errorf("current height: %w", err)
	}
	e.Metrics.SetHeights(e.tip, live)
	// a replaced tip block at an unchanged height is picked up once the chain grows
	if live == e.tip {
		return false, nil
	}

	res, err := e.Resolver.Resolve(ctx, e.tip, live)
	if err != nil {
		return true, fmt.Errorf("resolve #%d..#%d: %w", e.tip, live, err)
	}

	if res.Forked {
		addrs, err := e.Store.AffectedAddresses(ctx, res.From)
		if err != nil {
			return true, fmt.Errorf("affected addresses from #%d: %w", res.From, err)
		}
		if err := e.Store.DeleteBlocksFrom(ctx, res.From); err != nil {
			return true, fmt.Errorf("delete blocks from #%d: %w", res.From, err)
		}
		for _, addr := range addrs {
			e.affected[addr] = struct{}{}
		}
		if e.Mempool != nil {
			e.Mempool.Unconfirm(res.From)
		}
		if e.tip >= res.From {
			e.tip = res.From - 1
		}
		e.Metrics.RecordReorg(res.Depth)
		e.Logger.Warn("Fork detected",
			zap.Uint64("from", res.From),
			zap.Uint64("depth", res.Depth),
			zap.Uint64("live", live),
			zap.Int("affected_accounts", len(addrs)))
	}

	if res.From <= live {
		mode := "extended"
		if res.Forked {
			mode = "forked"
		}
		e.Logger.Info("Writing new blocks",
			zap.Uint64("from", res.From),
			zap.Uint64("to", live),
			zap.String("mode", mode))

		prev := e.tip
		err = e.Writer.WriteRange(ctx, res.From, live, e.affected)
		if reloadErr := e.loadTip(ctx); reloadErr != nil && err == nil {
			err = reloadErr
		}
		if e.tip > prev {
			e.Metrics.AddBlocksWritten(int(e.tip - prev))
		}
		if err != nil {
			return true, err
		}
		if len(e.affected) > 0 {
			// every height was written, so these accounts are missing from the store
			e.Logger.Error("Fork-affected accounts left unresolved",
				zap.Strings("addresses", e.affected.Addresses()),
				zap.Uint64("tip", live),
				zap.Bool("invariant", true))
			e.affected = writer.Affected{}
		}
	}

	e.tip = live
	e.Metrics.SetHeights(e.tip, live)
	if e.Notifier != nil {
		e.Notifier.Notify(ctx, live)
	}
	return true, nil
}

func (e *Engine) reconcileMempool(ctx context.Context) error {
	if e.Mempool == nil {
		return nil
	}
	res, err := e.Mempool.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("mempool: %w", err)
	}
	e.Metrics.RecordMempool(res.Size, res.Added, res.Removed)
	return nil
}
