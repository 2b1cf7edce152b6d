// Package notify delivers call and ATH alerts. The chat platform itself is
// out of scope; a webhook is the delivery boundary.
package notify

import (
	"context"

	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/types"
)

// CallAlert announces a newly registered and enriched call.
type CallAlert struct {
	Record             types.CallRecord
	TotalCallsByUser   int
	FormattedMarketCap string
}

// ATHAlert announces a tracked token reaching a new all-time-high market cap.
type ATHAlert struct {
	Record           types.CallRecord
	MarketCap        float64
	TotalCallsByUser int
}

// Notifier is the outbound alert collaborator.
type Notifier interface {
	NotifyNewCall(ctx context.Context, alert CallAlert) error
	NotifyATH(ctx context.Context, alert ATHAlert) error
}

// LogNotifier writes alerts to the log. Used when no webhook is configured
// and as the fallback in tests.
type LogNotifier struct {
	logger *logging.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LogNotifier{logger: logger}
}

// NotifyNewCall logs a new call alert.
func (n *LogNotifier) NotifyNewCall(_ context.Context, alert CallAlert) error {
	n.logger.WithFields(map[string]interface{}{
		"address":   alert.Record.Address,
		"caller":    alert.Record.Caller.Username,
		"marketCap": alert.FormattedMarketCap,
	}).Info("New call tracked")
	return nil
}

// NotifyATH logs an all-time-high alert.
func (n *LogNotifier) NotifyATH(_ context.Context, alert ATHAlert) error {
	n.logger.WithFields(map[string]interface{}{
		"address":   alert.Record.Address,
		"caller":    alert.Record.Caller.Username,
		"marketCap": alert.MarketCap,
	}).Info("New all-time high")
	return nil
}
