package indexer

import (
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/nimiqx/pkg/indexer/chainsync"
	"github.com/canopy-network/nimiqx/pkg/indexer/mempool"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/redis"
	"github.com/canopy-network/nimiqx/pkg/rpc"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

var ErrConfig = errors.New("invalid configuration")

type Config struct {
	Network nimiq.Network
	RPC     rpc.Config

	Store       string
	PostgresURL string

	PollInterval       time.Duration
	CatchUpLag         uint64
	BalanceConcurrency int
	MempoolMode        mempool.Mode

	WebSocketURL      string
	WebSocketPassword string

	RedisEnabled bool
	Redis        redis.Options

	// MetricsAddr is left empty to disable the metrics server.
	MetricsAddr string
}

// DefaultPollInterval is the tick pause for protocol: PoW blocks come roughly once a
// minute, Albatross micro blocks once a second.
func DefaultPollInterval(p rpc.Protocol) time.Duration {
	if p == rpc.ProtocolPoW {
		return time.Second
	}
	return 200 * time.Millisecond
}

// DefaultMempoolMode lists full transactions on Albatross and hashes on PoW.
func DefaultMempoolMode(p rpc.Protocol) mempool.Mode {
	if p == rpc.ProtocolPoW {
		return mempool.ModeHashes
	}
	return mempool.ModeFull
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.RPC.Protocol == "" {
		c.RPC.Protocol = rpc.ProtocolAlbatross
	}
	if c.Store == "" {
		c.Store = StorePostgres
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval(c.RPC.Protocol)
	}
	if c.CatchUpLag == 0 {
		c.CatchUpLag = chainsync.DefaultCatchUpLag
	}
	if c.BalanceConcurrency <= 0 {
		c.BalanceConcurrency = 16
	}
	if c.MempoolMode == "" {
		c.MempoolMode = DefaultMempoolMode(c.RPC.Protocol)
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := nimiq.ParseNetwork(string(c.Network)); err != nil {
		errs = append(errs, err)
	}
	if c.RPC.URL == "" {
		errs = append(errs, errors.New("rpc url is required"))
	}
	switch c.RPC.Protocol {
	case rpc.ProtocolAlbatross, rpc.ProtocolPoW:
	default:
		errs = append(errs, fmt.Errorf("unknown protocol %q", c.RPC.Protocol))
	}
	switch c.RPC.Transport {
	case "", rpc.TransportHTTP, rpc.TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("unknown rpc transport %q", c.RPC.Transport))
	}
	switch c.Store {
	case StorePostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("postgres url is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.MempoolMode {
	case mempool.ModeHashes, mempool.ModeFull:
	default:
		errs = append(errs, fmt.Errorf("unknown mempool mode %q", c.MempoolMode))
	}
	if err := (chainsync.Config{PollInterval: c.PollInterval, CatchUpLag: c.CatchUpLag}).Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}
