package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/redis"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: "http://localhost"})
	assert.ErrorIs(t, err, redis.ErrFailedToParseRedisConnString)
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := redis.Connect(context.Background(), redis.Config{
		ConnectionURL:  "redis://127.0.0.1:1/0",
		RetryAttempts:  2,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, err, redis.ErrRedisNotReady)
}

func TestConnect_Healthcheck(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}

	client, err := redis.Connect(context.Background(), redis.Config{ConnectionURL: url, RetryAttempts: 1, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, redis.Healthcheck(client)(context.Background()))
}
