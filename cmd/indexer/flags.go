package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/canopy-network/nimiqx/pkg/indexer/chainsync"
)

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "network",
			Aliases: []string{"n"},
			Usage:   "Network name; anything containing \"main\" is mainnet, everything else testnet",
			EnvVars: []string{"NETWORK"},
			Value:   "test",
		},
		&cli.StringFlag{
			Name:    "protocol",
			Usage:   "Node protocol: albatross or pow",
			EnvVars: []string{"PROTOCOL"},
			Value:   "albatross",
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The node RPC URL",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "rpc-transport",
			Usage:   "RPC transport: http or ws",
			EnvVars: []string{"RPC_TRANSPORT"},
			Value:   "http",
		},
		&cli.StringFlag{
			Name:    "rpc-username",
			Usage:   "Basic auth user for the node",
			EnvVars: []string{"RPC_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "rpc-password",
			Usage:   "Basic auth password for the node",
			EnvVars: []string{"RPC_PASSWORD"},
		},
		&cli.IntFlag{
			Name:    "rpc-rps",
			Usage:   "Maximum node requests per second (0 disables the limit)",
			EnvVars: []string{"RPC_RPS"},
		},
		&cli.DurationFlag{
			Name:    "rpc-timeout",
			Usage:   "Per request timeout",
			EnvVars: []string{"RPC_TIMEOUT"},
			Value:   30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "store",
			Usage:   "Storage backend: postgres or memory",
			EnvVars: []string{"STORE"},
			Value:   "postgres",
		},
		&cli.StringFlag{
			Name:    "postgres-url",
			Aliases: []string{"d"},
			Usage:   "Postgres connection string",
			EnvVars: []string{"POSTGRES_URL", "DATABASE_URL"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "Pause between ticks (defaults to 1s on PoW, 200ms on Albatross)",
			EnvVars: []string{"POLL_INTERVAL"},
		},
		&cli.Uint64Flag{
			Name:    "catchup-lag",
			Usage:   "Catch-up stops this many blocks behind the node",
			EnvVars: []string{"CATCHUP_LAG"},
			Value:   chainsync.DefaultCatchUpLag,
		},
		&cli.IntFlag{
			Name:    "balance-concurrency",
			Aliases: []string{"c"},
			Usage:   "Concurrent account balance requests",
			EnvVars: []string{"BALANCE_CONCURRENCY"},
			Value:   16,
		},
		&cli.StringFlag{
			Name:    "mempool-mode",
			Usage:   "How the mempool is listed: hashes or full (defaults by protocol)",
			EnvVars: []string{"MEMPOOL_MODE"},
		},
		&cli.StringFlag{
			Name:    "websocket-url",
			Usage:   "Subscriber that receives the indexed tip",
			EnvVars: []string{"WEBSOCKET_URL"},
		},
		&cli.StringFlag{
			Name:    "websocket-password",
			Usage:   "Password sent when greeting the subscriber",
			EnvVars: []string{"WEBSOCKET_PASSWORD"},
		},
		&cli.BoolFlag{
			Name:    "redis-enabled",
			Usage:   "Publish indexed tips to Redis (REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB)",
			EnvVars: []string{"REDIS_ENABLED"},
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Listen address for /metrics, /healthz and /status; empty disables it",
			EnvVars: []string{"METRICS_ADDR"},
			Value:   ":9090",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"LOG_LEVEL"},
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "log-encoding",
			Usage:   "json or console",
			EnvVars: []string{"LOG_ENCODING"},
			Value:   "json",
		},
	}
}
