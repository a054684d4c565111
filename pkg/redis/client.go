package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/canopy-network/nimiqx/pkg/utils"
)

const (
	DefaultStreamMaxLen = 10000
)

// Options configures the connection. Zero values fall back to the REDIS_* environment.
type Options struct {
	Host         string
	Port         string
	Password     string
	DB           int
	StreamMaxLen int64
}

// OptionsFromEnv reads REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB and REDIS_STREAM_MAXLEN.
func OptionsFromEnv() Options {
	return Options{
		Host:         utils.Env("REDIS_HOST", "localhost"),
		Port:         utils.Env("REDIS_PORT", "6379"),
		Password:     utils.Env("REDIS_PASSWORD", ""),
		DB:           utils.EnvInt("REDIS_DB", 0),
		StreamMaxLen: utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen),
	}
}

func (o Options) Addr() string {
	return fmt.Sprintf("%s:%s", o.Host, o.Port)
}

// Client wraps the Redis client used for tip notifications.
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64
}

// NewClient connects and pings.
func NewClient(ctx context.Context, logger *zap.Logger, opts Options) (*Client, error) {
	addr := opts.Addr()
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,

		PoolSize:     4,
		MinIdleConns: 1,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", opts.DB),
		zap.Int64("streamMaxLen", opts.StreamMaxLen))

	return &Client{
		client:       rdb,
		logger:       logger,
		streamMaxLen: opts.StreamMaxLen,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Publish publishes message on a Pub/Sub channel.
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	return c.client.Publish(ctx, channel, message).Err()
}

// XAdd appends an entry to stream, capped approximately at the configured length.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]any) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}
	return c.client.XAdd(ctx, args).Result()
}

func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
