package redis

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_STREAM_MAXLEN", "0")

	opts := OptionsFromEnv()
	assert.Equal(t, "cache:6380", opts.Addr())
	assert.Equal(t, 3, opts.DB)
	assert.Zero(t, opts.StreamMaxLen)
}

func TestNewClientUnreachable(t *testing.T) {
	_, err := NewClient(context.Background(), zaptest.NewLogger(t), Options{Host: "127.0.0.1", Port: "1"})
	require.Error(t, err)
}

// TestPublishLive runs against REDIS_TEST_HOST when set.
func TestPublishLive(t *testing.T) {
	host := os.Getenv("REDIS_TEST_HOST")
	if host == "" {
		t.Skip("REDIS_TEST_HOST not set")
	}
	ctx := context.Background()
	c, err := NewClient(ctx, zaptest.NewLogger(t), Options{Host: host, Port: "6379", StreamMaxLen: 10})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Health(ctx))
	require.NoError(t, c.Publish(ctx, "nimiq:test:block.indexed", `{"height":1}`))
	id, err := c.XAdd(ctx, "nimiq:test:blocks", map[string]any{"height": 1})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
