package chainsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/canopy-network/nimiqx/pkg/db/memory"
	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/indexer/mempool"
	"github.com/canopy-network/nimiqx/pkg/indexer/reorg"
	"github.com/canopy-network/nimiqx/pkg/indexer/writer"
	"github.com/canopy-network/nimiqx/pkg/metrics"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/rpc/rpctest"
)

const (
	miner = "NQ11 MINER"
	alice = "NQ22 ALICE"
	bob   = "NQ33 BOB"
)

type heights struct {
	mu   sync.Mutex
	seen []uint64
}

func (h *heights) Notify(_ context.Context, height uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, height)
}

func (h *heights) all() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint64(nil), h.seen...)
}

// flakyStore fails the next failures commits.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
}

var errCommit = errors.New("commit refused")

func (s *flakyStore) failNext(n int) {
	s.mu.Lock()
	s.failures = n
	s.mu.Unlock()
}

func (s *flakyStore) Commit(ctx context.Context, rows *chainmodels.RowSet) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errCommit
	}
	s.mu.Unlock()
	return s.Store.Commit(ctx, rows)
}

type harness struct {
	chain    *rpctest.Chain
	store    *memory.Store
	flaky    *flakyStore
	tracker  *mempool.Tracker
	notified *heights
	metrics  *metrics.Metrics
	engine   *Engine
}

func newHarness(t *testing.T, lag uint64) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	chain := rpctest.NewChain(miner)
	store := memory.New(logger)
	flaky := &flakyStore{Store: store}
	pool := pond.NewPool(4)
	t.Cleanup(pool.StopAndWait)

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	tracker := mempool.New(chain, store, mempool.ModeHashes, pool, logger)
	w := writer.New(chain, flaky, nimiq.PolicyFor(nimiq.Testnet), pool, logger)
	w.SetConfirmer(tracker)

	notified := &heights{}
	engine, err := New(Config{PollInterval: 5 * time.Millisecond, CatchUpLag: lag}, Deps{
		Chain:    chain,
		Store:    flaky,
		Writer:   w,
		Resolver: reorg.NewResolver(chain, store, logger),
		Mempool:  tracker,
		Notifier: notified,
		Metrics:  m,
		Logger:   logger,
	})
	require.NoError(t, err)
	return &harness{chain: chain, store: store, flaky: flaky, tracker: tracker, notified: notified, metrics: m, engine: engine}
}

func transfer(hash, from, to string) rpc.Transaction {
	return rpc.Transaction{Hash: hash, From: from, To: to, Value: 1, Fee: 1}
}

func assertAscending(t *testing.T, log []uint64) {
	t.Helper()
	for i := 1; i < len(log); i++ {
		assert.Equal(t, log[i-1]+1, log[i], "commit %d out of order", i)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{PollInterval: time.Second, CatchUpLag: 100}.Validate())
	require.ErrorIs(t, Config{CatchUpLag: 100}.Validate(), ErrInvalidConfig)
	require.ErrorIs(t, Config{PollInterval: time.Second}.Validate(), ErrInvalidConfig)

	_, err := New(Config{PollInterval: time.Second, CatchUpLag: 1}, Deps{})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCatchUpThenSteady(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultCatchUpLag)
	h.chain.MineN(250)

	stale := &chainmodels.Transaction{Hash: "stale", SenderAddress: alice, RecipientAddress: bob, Value: 1}
	require.NoError(t, h.store.InsertPendingTransactions(ctx, []*chainmodels.Transaction{stale}))

	assert.Equal(t, StateIdle, h.engine.State())
	require.NoError(t, h.engine.CatchUp(ctx))
	assert.Equal(t, StateSteady, h.engine.State())
	assert.Equal(t, uint64(151), h.engine.Tip(), "catch-up stops within the lag")
	_, ok := h.store.Transaction("stale")
	assert.False(t, ok, "pending rows of a previous run are dropped")

	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, uint64(250), h.engine.Tip())

	log := h.store.CommitLog()
	require.Len(t, log, 250)
	assertAscending(t, log)
	assert.Equal(t, []uint64{151, 250}, h.notified.all())

	view := h.metrics.Status().View()
	assert.Equal(t, StateSteady, view.State)
	assert.Equal(t, uint64(250), view.LocalTip)
}

func TestCatchUpNothingToDo(t *testing.T) {
	h := newHarness(t, DefaultCatchUpLag)
	h.chain.MineN(20)

	require.NoError(t, h.engine.CatchUp(context.Background()))
	assert.Zero(t, h.engine.Tip())
	assert.Empty(t, h.store.CommitLog())
	assert.Empty(t, h.notified.all())
}

func TestTickRequiresSteadyState(t *testing.T) {
	h := newHarness(t, DefaultCatchUpLag)
	require.Error(t, h.engine.Tick(context.Background()))
}

func TestTickSkipsUnchangedHeight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	h.chain.MineN(5)
	require.NoError(t, h.engine.CatchUp(ctx))
	require.Equal(t, uint64(5), h.engine.Tip())

	calls := h.chain.Calls("BlockByNumber")
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, calls, h.chain.Calls("BlockByNumber"))
	assert.Equal(t, 1, h.chain.Calls("MempoolHashes"), "the mempool is reconciled on idle ticks")
}

func TestTickRollsBackFork(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	for i := uint64(1); i <= 100; i++ {
		switch i {
		case 50:
			h.chain.Mine(transfer("t50", alice, bob))
		case 99:
			h.chain.Mine(transfer("t99", alice, bob))
		default:
			h.chain.Mine()
		}
	}
	require.NoError(t, h.engine.CatchUp(ctx))
	require.Equal(t, uint64(100), h.engine.Tip())

	h.chain.Reorg(98, "fork", nil)
	h.chain.Mine()
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, uint64(101), h.engine.Tip())

	for height := uint64(98); height <= 101; height++ {
		hash, ok, err := h.store.BlockHashAt(ctx, height)
		require.NoError(t, err)
		require.True(t, ok)
		if height <= 100 {
			assert.Equal(t, fmt.Sprintf("fork-%d", height), hash)
		}
	}
	hash, _, err := h.store.BlockHashAt(ctx, 97)
	require.NoError(t, err)
	assert.Equal(t, "main-97", hash)

	_, ok := h.store.Transaction("t99")
	assert.False(t, ok, "abandoned branch transactions are gone")

	a, err := h.store.GetAccount(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, a.LastSent)
	assert.Equal(t, uint64(50), *a.LastSent)
	b, err := h.store.GetAccount(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), *b.LastReceived)
	m, err := h.store.GetAccount(ctx, miner)
	require.NoError(t, err)
	assert.Equal(t, uint64(101), *m.LastReceived)

	log := h.store.CommitLog()
	assert.Equal(t, []uint64{98, 99, 100, 101}, log[len(log)-4:])
}

func TestForkAffectedAccountsSurviveFailedCommit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	for i := uint64(1); i <= 100; i++ {
		switch i {
		case 50:
			h.chain.Mine(transfer("t50", alice, bob))
		case 99:
			h.chain.Mine(transfer("t99", alice, bob))
		default:
			h.chain.Mine()
		}
	}
	require.NoError(t, h.engine.CatchUp(ctx))

	h.chain.Reorg(98, "fork", nil)
	h.chain.Mine()
	h.flaky.failNext(1)
	require.ErrorIs(t, h.engine.Tick(ctx), errCommit)
	assert.Equal(t, uint64(97), h.engine.Tip())

	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, uint64(101), h.engine.Tip())

	a, err := h.store.GetAccount(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, a.LastSent, "sender recomputed after the retried commit")
	assert.Equal(t, uint64(50), *a.LastSent)
	b, err := h.store.GetAccount(ctx, bob)
	require.NoError(t, err)
	require.NotNil(t, b.LastReceived)
	assert.Equal(t, uint64(50), *b.LastReceived)
}

func TestUnresolvedAffectedAccountIsReportedAndDropped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	h.chain.MineN(3)
	require.NoError(t, h.engine.CatchUp(ctx))

	core, logs := observer.New(zapcore.ErrorLevel)
	h.engine.Logger = zap.New(core)
	h.engine.affected = writer.NewAffected([]string{"NQ99 GONE"})

	h.chain.Mine()
	require.NoError(t, h.engine.Tick(ctx))
	assert.Empty(t, h.engine.affected)

	entries := logs.FilterMessage("Fork-affected accounts left unresolved").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, true, fields["invariant"])
	assert.Equal(t, []any{"NQ99 GONE"}, fields["addresses"])

	h.chain.Mine()
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, 1, logs.FilterMessage("Fork-affected accounts left unresolved").Len())
}

func TestTickFailureIsRetried(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	h.chain.MineN(3)
	require.NoError(t, h.engine.CatchUp(ctx))

	h.chain.MineN(2)
	boom := errors.New("node unavailable")
	h.chain.FailWith("InherentsByHeight", boom)
	require.ErrorIs(t, h.engine.Tick(ctx), boom)
	assert.Equal(t, uint64(3), h.engine.Tip())

	h.chain.FailWith("InherentsByHeight", nil)
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, uint64(5), h.engine.Tip())
	assert.Equal(t, "", h.metrics.Status().View().LastError)
}

func TestPendingTransactionIsConfirmedInPlace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	h.chain.MineN(2)
	require.NoError(t, h.engine.CatchUp(ctx))

	tx := transfer("T", miner, alice)
	h.chain.SetMempool(tx)
	h.chain.Mine()
	require.NoError(t, h.engine.Tick(ctx))
	row, ok := h.store.Transaction("T")
	require.True(t, ok)
	assert.True(t, row.Pending())
	assert.True(t, h.tracker.Tracked("T"))

	h.chain.SetMempool()
	height := h.chain.Mine(tx)
	require.NoError(t, h.engine.Tick(ctx))

	row, ok = h.store.Transaction("T")
	require.True(t, ok)
	require.NotNil(t, row.BlockHeight)
	assert.Equal(t, height, *row.BlockHeight)
	assert.NotNil(t, row.Timestamp)
	assert.False(t, h.tracker.Tracked("T"))
	assert.Equal(t, 1, h.store.Counts()["transactions"])
}

func TestForkReturnsTransactionToMempool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 1)
	h.chain.MineN(5)
	require.NoError(t, h.engine.CatchUp(ctx))

	tx := transfer("T", miner, alice)
	require.Equal(t, uint64(6), h.chain.Mine(tx))
	require.NoError(t, h.engine.Tick(ctx))
	row, ok := h.store.Transaction("T")
	require.True(t, ok)
	require.False(t, row.Pending())

	// the block including T is orphaned and T goes back to the mempool
	h.chain.Reorg(6, "fork", nil)
	h.chain.Mine()
	h.chain.SetMempool(tx)
	require.NoError(t, h.engine.Tick(ctx))
	assert.Equal(t, uint64(7), h.engine.Tip())

	row, ok = h.store.Transaction("T")
	require.True(t, ok)
	assert.True(t, row.Pending())
	assert.True(t, h.tracker.Tracked("T"))
	assert.Equal(t, 1, h.tracker.Size())
}

func TestRunUntilCancelled(t *testing.T) {
	h := newHarness(t, DefaultCatchUpLag)
	h.chain.MineN(120)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	require.Eventually(t, func() bool {
		tip, _, err := h.store.CurrentTip(context.Background())
		return err == nil && tip == 120
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, StateIdle, h.engine.State())
}
