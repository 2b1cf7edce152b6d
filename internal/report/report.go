// Package report computes read-only rollups over the call registry for the
// leaderboard and per-user performance queries. Nothing here mutates records.
package report

import (
	"sort"
	"time"

	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/types"
)

// recentCallLimit caps the most-recent-calls list in a performance rollup.
const recentCallLimit = 3

// Performance is the derived per-caller aggregate. It is computed on demand
// and never stored.
type Performance struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	TotalCalls int    `json:"totalCalls"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	// WinRate is wins/(wins+losses)*100, and 0 for a caller with no calls.
	WinRate float64 `json:"winRate"`
	// AverageROI averages ROI over all of the caller's records; a record
	// that has not won yet contributes 0 rather than being excluded, so
	// non-performing calls drag the average down.
	AverageROI  float64             `json:"averageRoi"`
	RecentCalls []*types.CallRecord `json:"recentCalls"`
	Channels    []string            `json:"channels"`

	firstSeen time.Time
}

// PerformanceOf computes the aggregate for a single caller.
func PerformanceOf(reg *registry.Registry, userID string) Performance {
	perf, ok := performanceIndex(reg)[userID]
	if !ok {
		return Performance{UserID: userID, RecentCalls: []*types.CallRecord{}, Channels: []string{}}
	}
	return *perf
}

// TotalCalls counts the records owned by a caller.
func TotalCalls(reg *registry.Registry, userID string) int {
	count := 0
	for _, record := range reg.Snapshot() {
		if record.Caller.UserID == userID {
			count++
		}
	}
	return count
}

// Leaderboard returns every caller's performance sorted by win rate
// descending; ties go to the caller whose first call is older.
func Leaderboard(reg *registry.Registry) []Performance {
	index := performanceIndex(reg)

	board := make([]Performance, 0, len(index))
	for _, perf := range index {
		board = append(board, *perf)
	}

	sort.Slice(board, func(i, j int) bool {
		if board[i].WinRate != board[j].WinRate {
			return board[i].WinRate > board[j].WinRate
		}
		return board[i].firstSeen.Before(board[j].firstSeen)
	})

	return board
}

func performanceIndex(reg *registry.Registry) map[string]*Performance {
	index := make(map[string]*Performance)

	for _, record := range reg.Snapshot() {
		perf, ok := index[record.Caller.UserID]
		if !ok {
			perf = &Performance{
				UserID:    record.Caller.UserID,
				Username:  record.Caller.Username,
				firstSeen: record.FirstSeenAt,
			}
			index[record.Caller.UserID] = perf
		}

		if record.FirstSeenAt.Before(perf.firstSeen) {
			perf.firstSeen = record.FirstSeenAt
		}

		perf.TotalCalls++
		if record.IsWin {
			perf.Wins++
		} else {
			perf.Losses++
		}
		if record.ROI != nil {
			perf.AverageROI += *record.ROI
		}

		perf.RecentCalls = append(perf.RecentCalls, record)
	}

	for _, perf := range index {
		if perf.TotalCalls > 0 {
			perf.WinRate = float64(perf.Wins) / float64(perf.TotalCalls) * 100
			perf.AverageROI /= float64(perf.TotalCalls)
		}

		sort.Slice(perf.RecentCalls, func(i, j int) bool {
			return perf.RecentCalls[i].FirstSeenAt.After(perf.RecentCalls[j].FirstSeenAt)
		})

		perf.Channels = distinctChannels(perf.RecentCalls)

		if len(perf.RecentCalls) > recentCallLimit {
			perf.RecentCalls = perf.RecentCalls[:recentCallLimit]
		}
	}

	return index
}

// distinctChannels collects every channel the caller's records were mentioned
// in, origin channels first.
func distinctChannels(records []*types.CallRecord) []string {
	seen := make(map[string]struct{})
	channels := make([]string, 0)

	add := func(channelID string) {
		if channelID == "" {
			return
		}
		if _, ok := seen[channelID]; ok {
			return
		}
		seen[channelID] = struct{}{}
		channels = append(channels, channelID)
	}

	for _, record := range records {
		add(record.OriginChannelID)
	}
	for _, record := range records {
		for _, mention := range record.Mentions {
			add(mention.ChannelID)
		}
	}

	return channels
}
