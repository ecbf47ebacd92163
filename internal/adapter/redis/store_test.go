package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cybert47/sistema-resilencia-climatica/internal/cache"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, "rcu:aiZoneColors"), mr
}

func TestStore_LoadEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestStore_SaveLoad(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, []byte(`{"la-maria":{"probability":60}}`)))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"la-maria":{"probability":60}}`, string(got))

	stored, err := mr.Get("rcu:aiZoneColors")
	require.NoError(t, err)
	assert.JSONEq(t, `{"la-maria":{"probability":60}}`, stored)
}

func TestStore_ServerDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	err := s.Save(context.Background(), []byte(`{}`))
	assert.Error(t, err)
	assert.Error(t, s.CheckReadiness(context.Background()))
}

func TestNewClient_EmptyAddress(t *testing.T) {
	_, err := NewClient(context.Background(), "", "", 0)
	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), addr, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestStore_WithCache(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	c := cache.New(s, discardLogger(), metricsForTesting())
	require.NoError(t, c.Load(ctx))
	c.Apply(ctx, eventFor("la-maria", 72))

	reloaded := cache.New(s, discardLogger(), metricsForTesting())
	require.NoError(t, reloaded.Load(ctx))
	zp, ok := reloaded.Get("la-maria")
	require.True(t, ok)
	assert.Equal(t, 72.0, *zp.Probability)
}
