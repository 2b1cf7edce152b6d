package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/call-scanner/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, "calls:snapshot:test", nil)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func sampleRecords() map[string]*types.CallRecord {
	initial := 1000.0
	high := 1500.0
	roiValue := 50.0
	symbol := "SOL"
	name := "Wrapped SOL"

	return map[string]*types.CallRecord{
		"So11111111111111111111111111111111111111112": {
			Address:         "So11111111111111111111111111111111111111112",
			Caller:          types.Caller{UserID: "user-1", Username: "alice"},
			FirstSeenAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			OriginChannelID: "channel-1",
			Mentions: []types.Mention{
				{ID: "m-1", ChannelID: "channel-1", Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
			},
			TokenName:        &name,
			TokenSymbol:      &symbol,
			InitialMarketCap: &initial,
			AllTimeHigh:      &high,
			IsWin:            true,
			ROI:              &roiValue,
		},
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": {
			Address:         "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			Caller:          types.Caller{UserID: "user-2", Username: "bob"},
			FirstSeenAt:     time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
			OriginChannelID: "channel-2",
			Mentions: []types.Mention{
				{ID: "m-2", ChannelID: "channel-2", Timestamp: time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)},
			},
		},
	}
}

func TestRedisStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	records := sampleRecords()
	require.NoError(t, store.Save(ctx, records))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	sol := loaded["So11111111111111111111111111111111111111112"]
	require.NotNil(t, sol)
	assert.Equal(t, "alice", sol.Caller.Username)
	assert.True(t, sol.IsWin)
	require.NotNil(t, sol.ROI)
	assert.InDelta(t, 50.0, *sol.ROI, 1e-9)
	assert.True(t, sol.FirstSeenAt.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))

	usdc := loaded["EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"]
	require.NotNil(t, usdc)
	assert.Nil(t, usdc.InitialMarketCap)
	assert.False(t, usdc.IsWin)
}

func TestRedisStore_SaveOverwritesPrevious(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecords()))
	require.NoError(t, store.Save(ctx, map[string]*types.CallRecord{}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRedisStore_LoadMissingKey(t *testing.T) {
	store, _ := setupRedisStore(t)

	loaded, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.NotNil(t, loaded)
	assert.Empty(t, loaded)
}

func TestRedisStore_LoadCorruptSnapshot(t *testing.T) {
	store, mr := setupRedisStore(t)

	require.NoError(t, mr.Set("calls:snapshot:test", "{not valid json"))

	loaded, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRedisStore_SaveFailureSurfaces(t *testing.T) {
	store, mr := setupRedisStore(t)
	mr.Close()

	err := store.Save(context.Background(), sampleRecords())

	require.Error(t, err)
}

func TestRedisStore_Ping(t *testing.T) {
	store, mr := setupRedisStore(t)

	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.Error(t, store.Ping(context.Background()))
}
