package main

import (
	"github.com/urfave/cli/v2"

	"github.com/canopy-network/nimiqx/app/indexer"
	"github.com/canopy-network/nimiqx/pkg/indexer/mempool"
	"github.com/canopy-network/nimiqx/pkg/nimiq"
	"github.com/canopy-network/nimiqx/pkg/redis"
	"github.com/canopy-network/nimiqx/pkg/rpc"
)

func buildConfig(c *cli.Context) (indexer.Config, error) {
	network, err := nimiq.ParseNetwork(c.String("network"))
	if err != nil {
		return indexer.Config{}, err
	}

	cfg := indexer.Config{
		Network: network,
		RPC: rpc.Config{
			URL:       c.String("rpc-url"),
			Username:  c.String("rpc-username"),
			Password:  c.String("rpc-password"),
			Protocol:  rpc.Protocol(c.String("protocol")),
			Transport: rpc.Transport(c.String("rpc-transport")),
			RPS:       c.Int("rpc-rps"),
			Timeout:   c.Duration("rpc-timeout"),
		},
		Store:              c.String("store"),
		PostgresURL:        c.String("postgres-url"),
		PollInterval:       c.Duration("poll-interval"),
		CatchUpLag:         c.Uint64("catchup-lag"),
		BalanceConcurrency: c.Int("balance-concurrency"),
		MempoolMode:        mempool.Mode(c.String("mempool-mode")),
		WebSocketURL:       c.String("websocket-url"),
		WebSocketPassword:  c.String("websocket-password"),
		RedisEnabled:       c.Bool("redis-enabled"),
		MetricsAddr:        c.String("metrics-addr"),
	}
	if cfg.RedisEnabled {
		cfg.Redis = redis.OptionsFromEnv()
	}
	cfg.ApplyDefaults()
	return cfg, cfg.Validate()
}
