package resolver

import "fmt"

// FormatMarketCap renders a market cap with a magnitude suffix: 2.10B, 1.50M,
// 935.00K, or the plain value below a thousand. A nil or non-positive market
// cap has no rendering; ok is false and the string is empty.
func FormatMarketCap(marketCap *float64) (formatted string, ok bool) {
	if marketCap == nil || *marketCap <= 0 {
		return "", false
	}

	mc := *marketCap
	switch {
	case mc >= 1e9:
		return fmt.Sprintf("%.2fB", mc/1e9), true
	case mc >= 1e6:
		return fmt.Sprintf("%.2fM", mc/1e6), true
	case mc >= 1e3:
		return fmt.Sprintf("%.2fK", mc/1e3), true
	default:
		return fmt.Sprintf("%.2f", mc), true
	}
}
