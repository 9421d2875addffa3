package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys    map[string]time.Duration
	setErr  error
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{keys: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if _, ok := m.keys[key]; ok {
		return "1", nil
	}
	return "", nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "fl:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func TestNewGuardValidatesInput(t *testing.T) {
	_, err := NewGuard(nil, time.Hour)
	assert.Error(t, err)

	_, err = NewGuard(newMemoryStore(), 0)
	assert.Error(t, err)
}

func TestClaimOnlyOnce(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, 24*time.Hour)
	require.NoError(t, err)

	first, err := guard.Claim(context.Background(), "notifications", "evt-1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := guard.Claim(context.Background(), "notifications", "evt-1")
	require.NoError(t, err)
	assert.False(t, second)

	assert.Equal(t, 24*time.Hour, store.keys["fl:idempotency:evt:notifications:evt-1"])
}

func TestClaimIsScopedPerConsumer(t *testing.T) {
	guard, err := NewGuard(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	ok, err := guard.Claim(context.Background(), "notifications", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = guard.Claim(context.Background(), "analytics", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClaimRequiresIdentifiers(t *testing.T) {
	guard, err := NewGuard(newMemoryStore(), time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "", "evt-1")
	assert.Error(t, err)
	_, err = guard.Claim(context.Background(), "notifications", " ")
	assert.Error(t, err)
}

func TestClaimPropagatesStoreError(t *testing.T) {
	store := newMemoryStore()
	store.setErr = errors.New("redis down")
	guard, err := NewGuard(store, time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "notifications", "evt-1")
	assert.EqualError(t, err, "redis down")
}

func TestReleaseAllowsReclaim(t *testing.T) {
	store := newMemoryStore()
	guard, err := NewGuard(store, time.Hour)
	require.NoError(t, err)

	_, err = guard.Claim(context.Background(), "notifications", "evt-1")
	require.NoError(t, err)
	require.NoError(t, guard.Release(context.Background(), "notifications", "evt-1"))
	assert.Equal(t, []string{"fl:idempotency:evt:notifications:evt-1"}, store.deleted)

	ok, err := guard.Claim(context.Background(), "notifications", "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
