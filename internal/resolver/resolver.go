// Package resolver produces token identity and market capitalization for a
// tracked address, shielding callers from flaky upstream services with a
// shared retry policy, per-call timeouts and outbound throttling.
package resolver

import (
	"context"
	"time"

	apperrors "github.com/call-scanner/internal/errors"
	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/retry"
	"github.com/call-scanner/internal/types"
	"golang.org/x/time/rate"
)

// Resolver orchestrates the four external lookups behind the resolution
// contract: primary metadata, secondary token list, price and supply.
type Resolver struct {
	metadata MetadataSource
	list     TokenListSource
	price    PriceSource
	supply   SupplySource

	policy      retry.Policy
	callTimeout time.Duration
	limiter     *rate.Limiter
	logger      *logging.Logger
}

// Config configures a Resolver.
type Config struct {
	Metadata MetadataSource
	List     TokenListSource
	Price    PriceSource
	Supply   SupplySource

	Policy            retry.Policy
	CallTimeout       time.Duration
	RequestsPerSecond int
	Logger            *logging.Logger
}

// New creates a Resolver.
func New(cfg *Config) *Resolver {
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	policy := cfg.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}

	return &Resolver{
		metadata:    cfg.Metadata,
		list:        cfg.List,
		price:       cfg.Price,
		supply:      cfg.Supply,
		policy:      policy,
		callTimeout: callTimeout,
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
		logger:      logger,
	}
}

// Resolve produces token data for an address. The error is non-nil only when
// the token identity could not be established from either source; a resolved
// identity with unavailable price or supply comes back with a nil MarketCap.
func (r *Resolver) Resolve(ctx context.Context, address string) (*types.TokenData, error) {
	info, err := r.resolveInfo(ctx, address)
	if err != nil {
		return nil, err
	}

	data := &types.TokenData{
		Name:    info.Name,
		Symbol:  info.Symbol,
		LogoURI: info.LogoURI,
	}

	price, priceErr := r.resolvePrice(ctx, address)
	supply, supplyErr := r.resolveSupply(ctx, address)

	if priceErr != nil || supplyErr != nil {
		r.logger.WithFields(map[string]interface{}{
			"address":     address,
			"priceError":  errString(priceErr),
			"supplyError": errString(supplyErr),
		}).Debug("Market cap unavailable")
		return data, nil
	}

	marketCap := price * supply
	data.MarketCap = &marketCap

	return data, nil
}

// resolveInfo tries the primary metadata source first and falls through to
// the list-based secondary on any failure.
func (r *Resolver) resolveInfo(ctx context.Context, address string) (*TokenInfo, error) {
	info, primaryErr := r.lookupInfo(ctx, address, r.metadata.TokenMetadata)
	if primaryErr == nil {
		return info, nil
	}

	r.logger.WithFields(map[string]interface{}{
		"address": address,
		"error":   primaryErr.Error(),
	}).Debug("Primary metadata lookup failed, trying token list")

	info, secondaryErr := r.lookupInfo(ctx, address, r.list.Lookup)
	if secondaryErr == nil {
		return info, nil
	}

	return nil, apperrors.NewPermanentResolutionError("metadata", address)
}

func (r *Resolver) lookupInfo(ctx context.Context, address string, lookup func(context.Context, string) (*TokenInfo, error)) (*TokenInfo, error) {
	var info *TokenInfo

	err := retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) error {
		callCtx, cancel, err := r.acquire(ctx)
		if err != nil {
			return err
		}
		defer cancel()

		result, err := lookup(callCtx, address)
		if err != nil {
			return err
		}
		info = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	return info, nil
}

func (r *Resolver) resolvePrice(ctx context.Context, address string) (float64, error) {
	return r.resolveQuantity(ctx, address, r.price.Price)
}

func (r *Resolver) resolveSupply(ctx context.Context, address string) (float64, error) {
	return r.resolveQuantity(ctx, address, r.supply.Supply)
}

func (r *Resolver) resolveQuantity(ctx context.Context, address string, fetch func(context.Context, string) (float64, error)) (float64, error) {
	var value float64

	err := retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) error {
		callCtx, cancel, err := r.acquire(ctx)
		if err != nil {
			return err
		}
		defer cancel()

		result, err := fetch(callCtx, address)
		if err != nil {
			return err
		}
		value = result
		return nil
	})
	if err != nil {
		return 0, err
	}

	return value, nil
}

// acquire waits on the outbound limiter and derives the per-call deadline.
func (r *Resolver) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	return callCtx, cancel, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
