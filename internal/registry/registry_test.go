package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "So11111111111111111111111111111111111111112"

func mentionAt(id, channelID string, ts time.Time) types.Mention {
	return types.Mention{ID: id, ChannelID: channelID, Timestamp: ts}
}

func TestRegister_FirstCallerOwns(t *testing.T) {
	reg := New()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	record, err := reg.Register(testAddress,
		types.Caller{UserID: "user-1", Username: "alice"},
		"channel-1",
		mentionAt("m-1", "channel-1", ts))

	require.NoError(t, err)
	assert.Equal(t, testAddress, record.Address)
	assert.Equal(t, "alice", record.Caller.Username)
	assert.Equal(t, ts, record.FirstSeenAt)
	assert.Equal(t, "channel-1", record.OriginChannelID)
	assert.Len(t, record.Mentions, 1)
	assert.Equal(t, 1, reg.Len())
}

func TestRegister_SecondCallerAppendsMention(t *testing.T) {
	reg := New()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := reg.Register(testAddress,
		types.Caller{UserID: "user-1", Username: "alice"},
		"channel-1",
		mentionAt("m-1", "channel-1", ts))
	require.NoError(t, err)

	owner, err := reg.Register(testAddress,
		types.Caller{UserID: "user-2", Username: "bob"},
		"channel-2",
		mentionAt("m-2", "channel-2", ts.Add(time.Minute)))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyTracked))
	assert.Equal(t, apperrors.CodeAlreadyTracked, apperrors.Code(err))

	// Ownership stays with alice; bob's mention is recorded.
	assert.Equal(t, "user-1", owner.Caller.UserID)
	assert.Len(t, owner.Mentions, 2)
	assert.Equal(t, "m-2", owner.Mentions[1].ID)

	stored, ok := reg.Get(testAddress)
	require.True(t, ok)
	assert.Equal(t, "user-1", stored.Caller.UserID)
	assert.Len(t, stored.Mentions, 2)
}

func TestRegister_Concurrent(t *testing.T) {
	reg := New()
	ts := time.Now().UTC()

	const callers = 32
	var wg sync.WaitGroup
	var winners atomic.Int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Register(testAddress,
				types.Caller{UserID: "user", Username: "user"},
				"channel-1",
				mentionAt("m", "channel-1", ts))
			if err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	assert.Equal(t, 1, reg.Len())

	record, ok := reg.Get(testAddress)
	require.True(t, ok)
	assert.Len(t, record.Mentions, callers)
}

func TestGet_ReturnsCopy(t *testing.T) {
	reg := New()
	_, err := reg.Register(testAddress,
		types.Caller{UserID: "user-1", Username: "alice"},
		"channel-1",
		mentionAt("m-1", "channel-1", time.Now().UTC()))
	require.NoError(t, err)

	record, ok := reg.Get(testAddress)
	require.True(t, ok)
	record.Caller.Username = "mallory"
	record.Mentions = nil

	stored, ok := reg.Get(testAddress)
	require.True(t, ok)
	assert.Equal(t, "alice", stored.Caller.Username)
	assert.Len(t, stored.Mentions, 1)
}

func TestEvict_Idempotent(t *testing.T) {
	reg := New()
	_, err := reg.Register(testAddress,
		types.Caller{UserID: "user-1", Username: "alice"},
		"channel-1",
		mentionAt("m-1", "channel-1", time.Now().UTC()))
	require.NoError(t, err)

	assert.True(t, reg.Evict(testAddress))
	assert.False(t, reg.Evict(testAddress))
	assert.Equal(t, 0, reg.Len())

	_, ok := reg.Get(testAddress)
	assert.False(t, ok)
}

func TestAddresses_Restartable(t *testing.T) {
	reg := New()
	addresses := []string{
		"So11111111111111111111111111111111111111112",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
	for _, address := range addresses {
		_, err := reg.Register(address,
			types.Caller{UserID: "user-1", Username: "alice"},
			"channel-1",
			mentionAt("m-"+address, "channel-1", time.Now().UTC()))
		require.NoError(t, err)
	}

	seq := reg.Addresses()

	first := make(map[string]bool)
	for address := range seq {
		first[address] = true
	}
	assert.Len(t, first, 2)

	// Re-ranging the same sequence reflects current state.
	reg.Evict(addresses[0])
	second := make(map[string]bool)
	for address := range seq {
		second[address] = true
	}
	assert.Len(t, second, 1)
	assert.True(t, second[addresses[1]])
}

func TestApplyMarketCap_MissingRecord(t *testing.T) {
	reg := New()

	_, record, ok := reg.ApplyMarketCap(testAddress, 1000)

	assert.False(t, ok)
	assert.Nil(t, record)
}

func TestApplyMarketCap_UpdatesRecord(t *testing.T) {
	reg := New()
	_, err := reg.Register(testAddress,
		types.Caller{UserID: "user-1", Username: "alice"},
		"channel-1",
		mentionAt("m-1", "channel-1", time.Now().UTC()))
	require.NoError(t, err)

	update, record, ok := reg.ApplyMarketCap(testAddress, 1000)
	require.True(t, ok)
	assert.True(t, update.Mutated)
	assert.False(t, update.NewHigh)

	update, record, ok = reg.ApplyMarketCap(testAddress, 1500)
	require.True(t, ok)
	assert.True(t, update.NewHigh)
	assert.True(t, record.IsWin)
	require.NotNil(t, record.ROI)
	assert.InDelta(t, 50.0, *record.ROI, 1e-9)
}

func TestSetTokenData_MissingRecord(t *testing.T) {
	reg := New()

	_, _, ok := reg.SetTokenData(testAddress, types.TokenData{Name: "Token", Symbol: "TKN"})

	assert.False(t, ok)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	reg := New()
	_, err := reg.Register(testAddress,
		types.Caller{UserID: "user-1", Username: "alice"},
		"channel-1",
		mentionAt("m-1", "channel-1", time.Now().UTC()))
	require.NoError(t, err)
	reg.ApplyMarketCap(testAddress, 1000)
	reg.ApplyMarketCap(testAddress, 1500)

	snapshot := reg.Snapshot()

	restored := New()
	restored.Restore(snapshot)

	original, ok := reg.Get(testAddress)
	require.True(t, ok)
	loaded, ok := restored.Get(testAddress)
	require.True(t, ok)
	assert.Equal(t, original, loaded)

	// The snapshot is detached from both registries.
	*snapshot[testAddress].AllTimeHigh = 0
	fromRestored, _ := restored.Get(testAddress)
	assert.Equal(t, 1500.0, *fromRestored.AllTimeHigh)
}
