package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property-based checks over arbitrary market cap observation sequences.
func TestApplyMarketCapProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	caps := gen.SliceOfN(20, gen.Float64Range(0.01, 1e12))

	properties.Property("all-time high never decreases", prop.ForAll(
		func(observations []float64) bool {
			record := &CallRecord{Address: "addr"}
			var prevHigh float64
			for i, mc := range observations {
				record.ApplyMarketCap(mc)
				if record.AllTimeHigh == nil {
					return false
				}
				if i > 0 && *record.AllTimeHigh < prevHigh {
					return false
				}
				prevHigh = *record.AllTimeHigh
			}
			return true
		},
		caps,
	))

	properties.Property("initial market cap is set once", prop.ForAll(
		func(observations []float64) bool {
			record := &CallRecord{Address: "addr"}
			for _, mc := range observations {
				record.ApplyMarketCap(mc)
			}
			return len(observations) == 0 ||
				(record.InitialMarketCap != nil && *record.InitialMarketCap == observations[0])
		},
		caps,
	))

	properties.Property("win flag never reverts", prop.ForAll(
		func(observations []float64) bool {
			record := &CallRecord{Address: "addr"}
			wasWin := false
			for _, mc := range observations {
				record.ApplyMarketCap(mc)
				if wasWin && !record.IsWin {
					return false
				}
				wasWin = record.IsWin
			}
			return true
		},
		caps,
	))

	properties.Property("roi is positive exactly when the record is a win", prop.ForAll(
		func(observations []float64) bool {
			record := &CallRecord{Address: "addr"}
			for _, mc := range observations {
				record.ApplyMarketCap(mc)
			}
			if record.IsWin {
				return record.ROI != nil && *record.ROI > 0
			}
			return record.ROI == nil
		},
		caps,
	))

	properties.Property("high equals the maximum observation at or above initial", prop.ForAll(
		func(observations []float64) bool {
			record := &CallRecord{Address: "addr"}
			for _, mc := range observations {
				record.ApplyMarketCap(mc)
			}
			if len(observations) == 0 {
				return record.AllTimeHigh == nil
			}
			max := observations[0]
			for _, mc := range observations {
				if mc > max {
					max = mc
				}
			}
			return *record.AllTimeHigh == max
		},
		caps,
	))

	properties.TestingRun(t)
}
