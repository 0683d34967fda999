package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/reachlab/campaign-server-go/internal/redis"
	"github.com/reachlab/campaign-server-go/internal/model"
)

func newTestRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &redisclient.Client{Client: client}, mr
}

func TestStateStore_IssueAndConsume(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewStateStore(client, 10*time.Minute)
	ctx := context.Background()

	state, err := store.Issue(ctx, model.PlatformX, "verifier-abc")
	require.NoError(t, err)
	require.NotEmpty(t, state)

	entry, err := store.Consume(ctx, model.PlatformX, state)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.PlatformX, entry.Platform)
	assert.Equal(t, "verifier-abc", entry.CodeVerifier)
}

func TestStateStore_SingleUse(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewStateStore(client, 10*time.Minute)
	ctx := context.Background()

	state, err := store.Issue(ctx, model.PlatformX, "verifier")
	require.NoError(t, err)

	first, err := store.Consume(ctx, model.PlatformX, state)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.Consume(ctx, model.PlatformX, state)
	require.NoError(t, err)
	assert.Nil(t, second, "a state must not be consumable twice")
}

func TestStateStore_UnknownState(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewStateStore(client, 10*time.Minute)

	entry, err := store.Consume(context.Background(), model.PlatformX, "never-issued")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStateStore_Expiry(t *testing.T) {
	client, mr := newTestRedis(t)
	store := NewStateStore(client, time.Minute)
	ctx := context.Background()

	state, err := store.Issue(ctx, model.PlatformX, "verifier")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	entry, err := store.Consume(ctx, model.PlatformX, state)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestStateStore_PlatformMismatch(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewStateStore(client, time.Minute)
	ctx := context.Background()

	state, err := store.Issue(ctx, model.PlatformX, "verifier")
	require.NoError(t, err)

	// Keys are scoped per platform, so a TikTok consume misses entirely.
	entry, err := store.Consume(ctx, model.PlatformTikTok, state)
	require.NoError(t, err)
	assert.Nil(t, entry)
}
