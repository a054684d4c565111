package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/canopy-network/nimiqx/pkg/db"
	"github.com/canopy-network/nimiqx/pkg/db/memory"
	"github.com/canopy-network/nimiqx/pkg/db/postgres"
	pgchain "github.com/canopy-network/nimiqx/pkg/db/postgres/chain"
	"github.com/canopy-network/nimiqx/pkg/indexer/chainsync"
	"github.com/canopy-network/nimiqx/pkg/indexer/mempool"
	"github.com/canopy-network/nimiqx/pkg/indexer/reorg"
	"github.com/canopy-network/nimiqx/pkg/indexer/writer"
	"github.com/canopy-network/nimiqx/pkg/metrics"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/notify"
	"github.com/canopy-network/nimiqx/pkg/redis"
	"github.com/canopy-network/nimiqx/pkg/rpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	Config Config
	Logger *zap.Logger

	Chain    rpc.Client
	Store    db.ChainStore
	Pool     pond.Pool
	Tracker  *mempool.Tracker
	Engine   *chainsync.Engine
	Notifier *notify.Multi

	WebSocket *notify.WebSocketNotifier
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Server    *metrics.Server
}

// Initialize validates cfg and builds every component. Nothing runs until Start.
func Initialize(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	network, _ := nimiq.ParseNetwork(string(cfg.Network))
	cfg.Network = network

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var err error
	if a.Metrics, err = metrics.New(a.Registry); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	chain, err := rpc.New(cfg.RPC, logger)
	if err != nil {
		return nil, fmt.Errorf("rpc: %w", err)
	}
	a.Chain = rpc.Instrument(chain, a.Metrics)

	if a.Store, err = openStore(ctx, cfg, logger); err != nil {
		_ = a.Chain.Close()
		return nil, err
	}

	a.Pool = pond.NewPool(cfg.BalanceConcurrency)
	policy := nimiq.PolicyFor(network)

	a.Tracker = mempool.New(a.Chain, a.Store, cfg.MempoolMode, a.Pool, logger)
	w := writer.New(a.Chain, a.Store, policy, a.Pool, logger)
	w.SetConfirmer(a.Tracker)

	a.Notifier = notify.NewMulti(logger, a.Metrics, a.notifiers(ctx)...)
	if a.WebSocket != nil {
		if tip, ok, err := a.Store.CurrentTip(ctx); err == nil && ok {
			a.WebSocket.SetHeight(tip)
		}
	}

	a.Engine, err = chainsync.New(
		chainsync.Config{PollInterval: cfg.PollInterval, CatchUpLag: cfg.CatchUpLag},
		chainsync.Deps{
			Chain:    a.Chain,
			Store:    a.Store,
			Writer:   w,
			Resolver: reorg.NewResolver(a.Chain, a.Store, logger.With(zap.String("component", "reorg"))),
			Mempool:  a.Tracker,
			Notifier: a.Notifier,
			Metrics:  a.Metrics,
			Logger:   logger,
		})
	if err != nil {
		a.Stop()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		a.Server = metrics.NewServer(cfg.MetricsAddr, a.Registry, a.Metrics.Status())
	}

	logger.Info("Indexer initialized",
		zap.String("network", string(network)),
		zap.String("protocol", string(cfg.RPC.Protocol)),
		zap.String("store", cfg.Store),
		zap.String("mempool_mode", string(cfg.MempoolMode)),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("notifiers", a.Notifier.Len()))
	return a, nil
}

func openStore(ctx context.Context, cfg Config, logger *zap.Logger) (db.ChainStore, error) {
	if cfg.Store == StoreMemory {
		logger.Warn("Using the in-memory store; nothing is persisted")
		return memory.New(logger), nil
	}
	store, err := pgchain.NewWithPoolConfig(ctx, logger, cfg.PostgresURL, string(cfg.Network),
		postgres.DefaultPoolConfig("indexer", cfg.BalanceConcurrency))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return store, nil
}

// notifiers builds the configured tip notifiers. A notifier that cannot be set up is
// skipped with a warning; notifications are never required for indexing.
func (a *App) notifiers(ctx context.Context) []notify.Notifier {
	var out []notify.Notifier
	if a.Config.RedisEnabled {
		client, err := redis.NewClient(ctx, a.Logger, a.Config.Redis)
		if err != nil {
			a.Logger.Warn("Redis notifications disabled", zap.Error(err))
		} else {
			out = append(out, notify.NewRedisNotifier(client, string(a.Config.Network)))
		}
	}
	if a.Config.WebSocketURL != "" {
		a.WebSocket = notify.NewWebSocketNotifier(a.Config.WebSocketURL, a.Config.WebSocketPassword, a.Logger)
		out = append(out, a.WebSocket)
	} else {
		a.Logger.Info("WEBSOCKET_URL not set, websocket notifications disabled")
	}
	return out
}

// Start runs the sync engine, the websocket notifier and the metrics server until ctx ends
// or one of them fails.
func (a *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Engine.Run(gctx)
	})

	if a.WebSocket != nil {
		g.Go(func() error {
			if err := a.WebSocket.Run(gctx); err != nil {
				a.Logger.Warn("Websocket notifier stopped", zap.Error(err))
			}
			return nil
		})
	}

	if a.Server != nil {
		errCh := a.Server.Start()
		a.Logger.Info("Serving metrics", zap.String("addr", a.Server.Addr()))
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case err := <-errCh:
				return err
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// Stop releases every resource. It is safe to call on a partially initialized App.
func (a *App) Stop() {
	if a.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("Metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}
	if a.WebSocket != nil && !a.WebSocket.Connected() {
		a.Logger.Warn("Websocket subscriber was not connected at shutdown")
	}
	if a.Notifier != nil {
		_ = a.Notifier.Close()
	}
	if a.Pool != nil {
		a.Pool.StopAndWait()
	}
	if a.Store != nil {
		if mem, ok := a.Store.(*memory.Store); ok {
			fields := make([]zap.Field, 0, 8)
			for table, n := range mem.Counts() {
				fields = append(fields, zap.Int(table, n))
			}
			a.Logger.Info("In-memory store totals", fields...)
		}
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("Store close error", zap.Error(err))
		}
	}
	if a.Chain != nil {
		_ = a.Chain.Close()
	}
	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}
