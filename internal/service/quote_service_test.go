package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

type countingSource struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  int
}

func (s *countingSource) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	price, ok := s.prices[pair]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{Pair: pair, Price: price, FetchedAt: time.Now().UTC()}, nil
}

type memQuoteCache struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func (c *memQuoteCache) SetQuote(ctx context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quotes == nil {
		c.quotes = make(map[string]domain.Quote)
	}
	c.quotes[q.Pair] = q
	return nil
}

func (c *memQuoteCache) GetQuote(ctx context.Context, pair string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[pair]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

type stubLimiter struct {
	allow bool
}

func (l *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return l.allow, nil
}

func TestQuoteServesFromCache(t *testing.T) {
	source := &countingSource{prices: map[string]float64{"EURUSD": 1.1000}}
	cache := &memQuoteCache{}
	svc := NewQuoteService(source, cache, nil, nil, 0, 0, testLogger())
	ctx := context.Background()

	q, err := svc.Quote(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1000, q.Price)
	assert.Equal(t, 1, source.calls)

	// Second read comes from the cache, no provider call.
	q, err = svc.Quote(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1000, q.Price)
	assert.Equal(t, 1, source.calls)
}

func TestQuoteNormalizesPair(t *testing.T) {
	source := &countingSource{prices: map[string]float64{"EURUSD": 1.1000}}
	svc := NewQuoteService(source, nil, nil, nil, 0, 0, testLogger())

	q, err := svc.Quote(context.Background(), "eurusd")
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", q.Pair)
}

func TestQuoteRejectsInvalidPair(t *testing.T) {
	source := &countingSource{}
	svc := NewQuoteService(source, nil, nil, nil, 0, 0, testLogger())

	_, err := svc.Quote(context.Background(), "EUR")
	assert.ErrorIs(t, err, domain.ErrInvalidPair)
	assert.Zero(t, source.calls)
}

func TestQuoteExhaustedQuotaIsUnavailable(t *testing.T) {
	source := &countingSource{prices: map[string]float64{"EURUSD": 1.1000}}
	svc := NewQuoteService(source, nil, &stubLimiter{allow: false}, nil, 0, 0, testLogger())

	_, err := svc.Quote(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	assert.Zero(t, source.calls)
}

func TestQuotePropagatesProviderFailure(t *testing.T) {
	source := &countingSource{} // no prices
	cache := &memQuoteCache{}
	svc := NewQuoteService(source, cache, &stubLimiter{allow: true}, nil, 0, 0, testLogger())

	_, err := svc.Quote(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, domain.ErrQuoteUnavailable)
}
