package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}

	first, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.True(t, first)

	second, err := client.SetNX(ctx, "k", "1", time.Minute)
	require.NoError(t, err)
	require.False(t, second)

	require.NoError(t, client.Del(ctx, "k"))
	_, err = client.Get(ctx, "k")
	require.ErrorIs(t, err, redis.Nil)
}

func TestPublishRecordsChannel(t *testing.T) {
	mock := newMockCmdable()
	client := &Client{store: mock}

	receivers, err := client.Publish(context.Background(), UserChannel("u-1"), []byte(`{"type":"order_created"}`))
	require.NoError(t, err)
	require.Equal(t, int64(1), receivers)
	require.Equal(t, []string{"user:u-1"}, mock.published)
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	_, err := client.Publish(context.Background(), "c", nil)
	require.Error(t, err)
	require.Error(t, client.Ping(context.Background()))
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "fl:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	require.Equal(t, "fl:idempotency:scope", client.IdempotencyKey("scope", " "))
	require.Equal(t, "fl:lock:cron", client.LockKey("cron"))
}

type mockCmdable struct {
	data      map[string]string
	published []string
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (m *mockCmdable) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	m.published = append(m.published, channel)
	return redis.NewIntResult(1, nil)
}
