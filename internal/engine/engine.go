// Package engine runs the periodic ATH/ROI re-evaluation over all tracked
// addresses.
package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/notify"
	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/report"
	"github.com/call-scanner/internal/storage"
	"github.com/call-scanner/internal/types"
)

// MarketResolver is the market data dependency. Satisfied by
// resolver.Resolver.
type MarketResolver interface {
	Resolve(ctx context.Context, address string) (*types.TokenData, error)
}

// Engine drives one re-evaluation tick per poll interval: snapshot the
// tracked addresses, fan out bounded-concurrency resolutions, apply each
// result to its record, and persist after any mutating tick.
type Engine struct {
	registry *registry.Registry
	resolver MarketResolver
	store    storage.SnapshotStore
	notifier notify.Notifier
	logger   *logging.Logger

	pollInterval    time.Duration
	concurrency     int
	maxTickFailures int

	// failedTicks counts consecutive unresolved ticks per address. With the
	// default budget of 1 this reduces to evict-on-first-failure.
	failedTicks map[string]int
	failedMu    sync.Mutex

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}

	ticksCompleted atomic.Int64
}

// Config holds configuration for an Engine.
type Config struct {
	Registry *registry.Registry
	Resolver MarketResolver
	Store    storage.SnapshotStore
	Notifier notify.Notifier
	Logger   *logging.Logger

	PollInterval time.Duration
	Concurrency  int
	// MaxTickFailures is the number of consecutive unresolved ticks before a
	// record is evicted. Defaults to 1.
	MaxTickFailures int
}

// New creates an Engine.
func New(cfg *Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("snapshot store cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}

	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 60 * time.Second
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	maxTickFailures := cfg.MaxTickFailures
	if maxTickFailures <= 0 {
		maxTickFailures = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Engine{
		registry:        cfg.Registry,
		resolver:        cfg.Resolver,
		store:           cfg.Store,
		notifier:        cfg.Notifier,
		logger:          logger.WithField("component", "engine"),
		pollInterval:    pollInterval,
		concurrency:     concurrency,
		maxTickFailures: maxTickFailures,
		failedTicks:     make(map[string]int),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}, nil
}

// Start launches the poll loop. Returns an error if already running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	go e.run(ctx)

	e.logger.WithField("pollInterval", e.pollInterval.String()).Info("Engine started")
	return nil
}

// Stop signals the poll loop to exit and waits for the in-flight tick to
// finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	<-e.doneCh

	e.logger.Info("Engine stopped")
}

// TicksCompleted returns the number of completed ticks.
func (e *Engine) TicksCompleted() int64 {
	return e.ticksCompleted.Load()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneCh)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunTick(ctx)
		}
	}
}

// RunTick performs one re-evaluation over a snapshot of the currently
// tracked addresses. Addresses registered mid-tick are picked up on the next
// tick. A failure on one address never aborts evaluation of the others.
func (e *Engine) RunTick(ctx context.Context) {
	addresses := slices.Collect(e.registry.Addresses())
	if len(addresses) == 0 {
		e.ticksCompleted.Add(1)
		return
	}

	start := time.Now()

	var wg sync.WaitGroup
	var mutations atomic.Int64
	sem := make(chan struct{}, e.concurrency)

	for _, address := range addresses {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if e.evaluate(ctx, address) {
				mutations.Add(1)
			}
		}(address)
	}

	wg.Wait()

	if mutations.Load() > 0 {
		e.persist(ctx)
	}

	e.ticksCompleted.Add(1)

	e.logger.WithFields(map[string]interface{}{
		"addresses": len(addresses),
		"mutations": mutations.Load(),
		"duration":  time.Since(start).String(),
	}).Debug("Tick completed")
}

// evaluate runs the per-address state machine for one tick and reports
// whether it mutated the registry.
func (e *Engine) evaluate(ctx context.Context, address string) bool {
	data, err := e.resolver.Resolve(ctx, address)
	if err != nil || data.MarketCap == nil {
		return e.recordFailedTick(address, err)
	}

	e.clearFailedTicks(address)

	update, record, ok := e.registry.ApplyMarketCap(address, *data.MarketCap)
	if !ok {
		// Evicted between snapshot and resolution.
		return false
	}

	if update.NewHigh {
		alert := notify.ATHAlert{
			Record:           *record,
			MarketCap:        *data.MarketCap,
			TotalCallsByUser: report.TotalCalls(e.registry, record.Caller.UserID),
		}
		if err := e.notifier.NotifyATH(ctx, alert); err != nil {
			e.logger.WithError(err).WithField("address", address).Warn("Failed to deliver ATH alert")
		}
	}

	return update.Mutated
}

// recordFailedTick counts an unresolved tick against the address and evicts
// once the budget is exhausted. Eviction is irrecoverable; a later mention
// starts tracking from scratch.
func (e *Engine) recordFailedTick(address string, cause error) bool {
	e.failedMu.Lock()
	e.failedTicks[address]++
	failures := e.failedTicks[address]
	evict := failures >= e.maxTickFailures
	if evict {
		delete(e.failedTicks, address)
	}
	e.failedMu.Unlock()

	fields := map[string]interface{}{
		"address":  address,
		"failures": failures,
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}

	if !evict {
		e.logger.WithFields(fields).Warn("Market cap unresolved for tracked address")
		return false
	}

	e.logger.WithFields(fields).Info("Evicting address with unresolvable market data")
	return e.registry.Evict(address)
}

func (e *Engine) clearFailedTicks(address string) {
	e.failedMu.Lock()
	delete(e.failedTicks, address)
	e.failedMu.Unlock()
}

// persist writes the current registry snapshot. Persistence failures are
// logged and never stop the engine; the next mutating tick retries.
func (e *Engine) persist(ctx context.Context) {
	if err := e.store.Save(ctx, e.registry.Snapshot()); err != nil {
		e.logger.WithError(err).Error("Failed to persist registry snapshot")
	}
}
