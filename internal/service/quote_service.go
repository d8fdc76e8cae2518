// Package service contains the application services that sit between the
// transport layers (HTTP, monitor loop) and the stores, caches, and the
// price provider.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

// providerRateKey groups all provider calls under one shared quota.
const providerRateKey = "oracle"

// QuoteService serves quotes through a cache-then-provider path. It also
// enforces the provider's request quota via a shared rate limiter, so every
// caller (monitor cycles, HTTP handlers) draws from the same budget.
//
// QuoteService itself implements domain.QuoteSource, which lets the monitor
// consume cached quotes transparently.
type QuoteService struct {
	source  domain.QuoteSource
	cache   domain.QuoteCache  // optional
	limiter domain.RateLimiter // optional
	bus     domain.SignalBus   // optional
	logger  *slog.Logger

	// Provider quota applied when limiter is set.
	rateLimit  int
	rateWindow time.Duration
}

// NewQuoteService creates a QuoteService. cache, limiter, and bus may be
// nil; each disables the corresponding behavior.
func NewQuoteService(
	source domain.QuoteSource,
	cache domain.QuoteCache,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	rateLimit int,
	rateWindow time.Duration,
	logger *slog.Logger,
) *QuoteService {
	if rateLimit <= 0 {
		rateLimit = 8
	}
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	return &QuoteService{
		source:     source,
		cache:      cache,
		limiter:    limiter,
		bus:        bus,
		logger:     logger.With(slog.String("component", "quote_service")),
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
	}
}

// Quote returns the current quote for a pair, preferring the cache. A cache
// hit costs nothing against the provider quota. On a miss the provider is
// consulted, subject to the rate limiter; an exhausted quota is reported as
// domain.ErrQuoteUnavailable like any other provider outage.
func (s *QuoteService) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	if err := domain.ValidatePair(pair); err != nil {
		return domain.Quote{}, err
	}
	pair = domain.NormalizePair(pair)

	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, pair)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			// Degraded cache is not fatal; fall through to the provider.
			s.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, providerRateKey, s.rateLimit, s.rateWindow)
		if err != nil {
			s.logger.WarnContext(ctx, "rate limiter check failed",
				slog.String("error", err.Error()),
			)
		} else if !allowed {
			return domain.Quote{}, fmt.Errorf("%w: %s: provider quota exhausted", domain.ErrQuoteUnavailable, pair)
		}
	}

	q, err := s.source.Quote(ctx, pair)
	if err != nil {
		return domain.Quote{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetQuote(ctx, q); err != nil {
			s.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
		}
	}

	s.publishQuote(ctx, q)
	return q, nil
}

// publishQuote emits a quote update event for websocket fan-out.
func (s *QuoteService) publishQuote(ctx context.Context, q domain.Quote) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":      "quote_update",
		"pair":       q.Pair,
		"price":      q.Price,
		"fetched_at": q.FetchedAt.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, "quotes", evt); err != nil {
		s.logger.WarnContext(ctx, "publish quote event failed",
			slog.String("pair", q.Pair),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.QuoteSource = (*QuoteService)(nil)
