package report

import (
	"testing"
	"time"

	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// seedCall registers a record and optionally drives it to a win with the
// given ROI percentage.
func seedCall(t *testing.T, reg *registry.Registry, address, userID, username, channelID string, firstSeen time.Time, winROI *float64) {
	t.Helper()

	_, err := reg.Register(address,
		types.Caller{UserID: userID, Username: username},
		channelID,
		types.Mention{ID: "m-" + address, ChannelID: channelID, Timestamp: firstSeen})
	require.NoError(t, err)

	_, _, ok := reg.ApplyMarketCap(address, 1000)
	require.True(t, ok)

	if winROI != nil {
		_, _, ok = reg.ApplyMarketCap(address, 1000*(1+*winROI/100))
		require.True(t, ok)
	}
}

func roi(v float64) *float64 { return &v }

func TestPerformanceOf_UnknownUser(t *testing.T) {
	reg := registry.New()

	perf := PerformanceOf(reg, "nobody")

	assert.Equal(t, "nobody", perf.UserID)
	assert.Equal(t, 0, perf.TotalCalls)
	assert.Equal(t, 0.0, perf.WinRate)
	assert.Empty(t, perf.RecentCalls)
	assert.Empty(t, perf.Channels)
}

func TestPerformanceOf_MixedRecord(t *testing.T) {
	reg := registry.New()
	seedCall(t, reg, "So11111111111111111111111111111111111111112", "user-1", "alice", "channel-1", baseTime, roi(50))
	seedCall(t, reg, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "user-1", "alice", "channel-2", baseTime.Add(time.Hour), nil)

	perf := PerformanceOf(reg, "user-1")

	assert.Equal(t, "alice", perf.Username)
	assert.Equal(t, 2, perf.TotalCalls)
	assert.Equal(t, 1, perf.Wins)
	assert.Equal(t, 1, perf.Losses)
	assert.InDelta(t, 50.0, perf.WinRate, 1e-9)
	// The losing record contributes 0 to the average, dragging it down.
	assert.InDelta(t, 25.0, perf.AverageROI, 1e-9)
	assert.ElementsMatch(t, []string{"channel-1", "channel-2"}, perf.Channels)
}

func TestPerformanceOf_RecentCallsNewestFirstCapped(t *testing.T) {
	reg := registry.New()
	addresses := []string{
		"So11111111111111111111111111111111111111112",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263",
		"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN",
	}
	for i, address := range addresses {
		seedCall(t, reg, address, "user-1", "alice", "channel-1", baseTime.Add(time.Duration(i)*time.Hour), nil)
	}

	perf := PerformanceOf(reg, "user-1")

	assert.Equal(t, 4, perf.TotalCalls)
	require.Len(t, perf.RecentCalls, 3)
	assert.Equal(t, addresses[3], perf.RecentCalls[0].Address)
	assert.Equal(t, addresses[2], perf.RecentCalls[1].Address)
	assert.Equal(t, addresses[1], perf.RecentCalls[2].Address)
}

func TestTotalCalls(t *testing.T) {
	reg := registry.New()
	seedCall(t, reg, "So11111111111111111111111111111111111111112", "user-1", "alice", "channel-1", baseTime, nil)
	seedCall(t, reg, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "user-1", "alice", "channel-1", baseTime, nil)
	seedCall(t, reg, "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "user-2", "bob", "channel-1", baseTime, nil)

	assert.Equal(t, 2, TotalCalls(reg, "user-1"))
	assert.Equal(t, 1, TotalCalls(reg, "user-2"))
	assert.Equal(t, 0, TotalCalls(reg, "user-3"))
}

func TestLeaderboard_SortsByWinRate(t *testing.T) {
	reg := registry.New()
	// bob: 1/1 wins. alice: 1/2 wins.
	seedCall(t, reg, "So11111111111111111111111111111111111111112", "user-1", "alice", "channel-1", baseTime, roi(50))
	seedCall(t, reg, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "user-1", "alice", "channel-1", baseTime, nil)
	seedCall(t, reg, "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", "user-2", "bob", "channel-1", baseTime, roi(200))

	board := Leaderboard(reg)

	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Username)
	assert.InDelta(t, 100.0, board[0].WinRate, 1e-9)
	assert.Equal(t, "alice", board[1].Username)
	assert.InDelta(t, 50.0, board[1].WinRate, 1e-9)
}

func TestLeaderboard_TieBreaksByEarliestCall(t *testing.T) {
	reg := registry.New()
	seedCall(t, reg, "So11111111111111111111111111111111111111112", "user-1", "alice", "channel-1", baseTime.Add(time.Hour), roi(50))
	seedCall(t, reg, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "user-2", "bob", "channel-1", baseTime, roi(50))

	board := Leaderboard(reg)

	require.Len(t, board, 2)
	assert.Equal(t, "bob", board[0].Username)
	assert.Equal(t, "alice", board[1].Username)
}

func TestLeaderboard_EmptyRegistry(t *testing.T) {
	board := Leaderboard(registry.New())

	assert.Empty(t, board)
}
