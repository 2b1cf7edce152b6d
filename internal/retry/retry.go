// Package retry implements the retry policy shared by every resolver call
// site: a bounded number of attempts with a fixed inter-attempt delay,
// retrying only errors classified as transient.
package retry

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/logging"
)

// Policy configures retry behavior
type Policy struct {
	MaxAttempts int           // Total attempts including the first
	Delay       time.Duration // Fixed delay between attempts
}

// DefaultPolicy returns the resolver default: 3 attempts, 2s apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
	}
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// Do executes fn under the policy. Permanent failures short-circuit
// immediately; transient failures are retried until the attempt budget is
// exhausted. Context cancellation stops the loop.
func Do(ctx context.Context, policy Policy, fn Func) error {
	logger := logging.FromContext(ctx)

	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !apperrors.IsTransient(err) {
			return err
		}

		if attempt >= policy.MaxAttempts {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": policy.MaxAttempts,
			"delay":       policy.Delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, retrying")

		select {
		case <-time.After(policy.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", policy.MaxAttempts, lastErr)
}
