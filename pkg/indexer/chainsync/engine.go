// Package chainsync drives the indexer: a bulk catch-up to near the live tip, then a steady
// poll loop that resolves forks, writes new heights and reconciles the mempool.
package chainsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/pkg/db"
	"github.com/canopy-network/nimiqx/pkg/indexer/mempool"
	"github.com/canopy-network/nimiqx/pkg/indexer/reorg"
	"github.com/canopy-network/nimiqx/pkg/indexer/writer"
	"github.com/canopy-network/nimiqx/pkg/metrics"
)

var ErrInvalidConfig = errors.New("chainsync: invalid config")

const (
	StateIdle       = "idle"
	StateCatchingUp = "catching_up"
	StateSteady     = "steady"

	EventCatchUp  = "catch_up"
	EventCaughtUp = "caught_up"
	EventStop     = "stop"
)

const DefaultCatchUpLag = 100

type Config struct {
	// PollInterval is the pause between the end of one tick and the start of the next.
	PollInterval time.Duration
	// CatchUpLag is how far behind the live height bulk catch-up stops.
	CatchUpLag uint64
}

func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.CatchUpLag == 0 {
		return fmt.Errorf("%w: catch-up lag must be positive", ErrInvalidConfig)
	}
	return nil
}

// Chain is the node surface the engine polls directly.
type Chain interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// Mempool is reconciled at the end of every tick.
type Mempool interface {
	Reconcile(ctx context.Context) (mempool.Result, error)
	// Unconfirm forgets inclusions of blocks at or above from after a fork removed them.
	Unconfirm(from uint64) int
}

// Notifier is told every new tip.
type Notifier interface {
	Notify(ctx context.Context, height uint64)
}

// Deps are the engine's collaborators. Mempool, Notifier and Metrics are optional.
type Deps struct {
	Chain    Chain
	Store    db.ChainStore
	Writer   *writer.Writer
	Resolver *reorg.Resolver
	Mempool  Mempool
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Engine is single-threaded: Run, CatchUp and Tick must not be called concurrently.
type Engine struct {
	cfg Config
	Deps

	machine *fsm.FSM

	tip uint64
	// affected survives failed ticks so a fork rollback is always followed by recomputation.
	affected writer.Affected
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Chain == nil || deps.Store == nil || deps.Writer == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("%w: chain, store, writer and resolver are required", ErrInvalidConfig)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.String("component", "chainsync"))

	e := &Engine{cfg: cfg, Deps: deps, affected: writer.Affected{}}
	e.machine = newStateMachine(func(_ context.Context, ev *fsm.Event) {
		e.Logger.Info("Sync state changed", zap.String("from", ev.Src), zap.String("to", ev.Dst))
		e.Metrics.SetState(ev.Dst)
	})
	e.Metrics.SetState(StateIdle)
	return e, nil
}

func newStateMachine(onEnter fsm.Callback) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventCatchUp, Src: []string{StateIdle}, Dst: StateCatchingUp},
			{Name: EventCaughtUp, Src: []string{StateCatchingUp}, Dst: StateSteady},
			{Name: EventStop, Src: []string{StateCatchingUp, StateSteady}, Dst: StateIdle},
		},
		fsm.Callbacks{"enter_state": onEnter},
	)
}

// State is the current state name.
func (e *Engine) State() string {
	return e.machine.Current()
}

// Tip is the highest height the engine knows to be stored.
func (e *Engine) Tip() uint64 {
	return e.tip
}

// Run catches up, then ticks until ctx ends. Tick failures are logged and retried on the
// next tick.
func (e *Engine) Run(ctx context.Context) error {
	defer e.stop()

	for {
		err := e.CatchUp(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		e.Logger.Error("Catch-up failed", zap.Error(err))
		if !e.sleep(ctx) {
			return nil
		}
	}

	for {
		if err := e.Tick(ctx); err != nil && ctx.Err() == nil {
			e.Logger.Error("Sync tick failed", zap.Uint64("tip", e.tip), zap.Error(err))
		}
		if !e.sleep(ctx) {
			return nil
		}
	}
}

func (e *Engine) sleep(ctx context.Context) bool {
	timer := time.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) stop() {
	if e.machine.Can(EventStop) {
		_ = e.machine.Event(context.Background(), EventStop)
	}
}

// CatchUp bulk-writes historical heights until the local tip is within CatchUpLag of the
// live height, then removes pending transactions left over from a previous run. Forks are
// not checked for: heights this deep are treated as final.
func (e *Engine) CatchUp(ctx context.Context) error {
	if e.machine.Is(StateIdle) {
		if err := e.machine.Event(ctx, EventCatchUp); err != nil {
			return fmt.Errorf("enter catch-up: %w", err)
		}
	}
	if !e.machine.Is(StateCatchingUp) {
		return fmt.Errorf("catch-up from state %s", e.State())
	}

	if err := e.loadTip(ctx); err != nil {
		return err
	}
	for {
		live, err := e.Chain.CurrentHeight(ctx)
		if err != nil {
			return fmt.Errorf("current height: %w", err)
		}
		e.Metrics.SetHeights(e.tip, live)
		if live < e.tip+e.cfg.CatchUpLag {
			break
		}

		target := live - e.cfg.CatchUpLag + 1
		start := time.Now()
		e.Logger.Info("Catching up",
			zap.Uint64("from", e.tip+1),
			zap.Uint64("to", target),
			zap.Uint64("live", live))
		prev := e.tip
		err = e.Writer.WriteRange(ctx, e.tip+1, target, nil)
		if reloadErr := e.loadTip(ctx); reloadErr != nil && err == nil {
			err = reloadErr
		}
		if e.tip > prev {
			e.Metrics.AddBlocksWritten(int(e.tip - prev))
		}
		if err != nil {
			return fmt.Errorf("catch-up write: %w", err)
		}
		e.Logger.Info("Catch-up pass done",
			zap.Uint64("tip", e.tip),
			zap.Duration("duration", time.Since(start)))
	}

	removed, err := e.Store.DeletePendingTransactions(ctx)
	if err != nil {
		return fmt.Errorf("clear pending transactions: %w", err)
	}
	if removed > 0 {
		e.Logger.Info("Removed stale pending transactions", zap.Int64("count", removed))
	}

	if e.Notifier != nil && e.tip > 0 {
		e.Notifier.Notify(ctx, e.tip)
	}
	return e.machine.Event(ctx, EventCaughtUp)
}

func (e *Engine) loadTip(ctx context.Context) error {
	tip, _, err := e.Store.CurrentTip(ctx)
	if err != nil {
		return fmt.Errorf("current tip: %w", err)
	}
	e.tip = tip
	return nil
}
