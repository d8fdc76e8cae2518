package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	active map[string]domain.Position
	closed []domain.ClosedPosition
}

func newMemStore() *memStore {
	return &memStore{active: make(map[string]domain.Position)}
}

func (s *memStore) Add(ctx context.Context, p domain.Position) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	s.active[p.ID] = p
	return p, nil
}

func (s *memStore) ListActive(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Position, 0, len(s.active))
	for _, p := range s.active {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.active {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; !ok {
		return false, nil
	}
	delete(s.active, id)
	return true, nil
}

func (s *memStore) CloseAndRemove(ctx context.Context, id string, exitPrice float64, outcome domain.Outcome, profit float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.active[id]
	if !ok {
		return false, nil
	}
	delete(s.active, id)
	s.closed = append(s.closed, domain.ClosedPosition{
		ID: p.ID, OwnerID: p.OwnerID, Pair: p.Pair, Direction: p.Direction,
		Entry: p.Entry, ExitPrice: exitPrice, TakeProfit: p.TakeProfit,
		StopLoss: p.StopLoss, LotSize: p.LotSize, Outcome: outcome,
		Profit: profit, OpenedAt: p.OpenedAt, ClosedAt: time.Now().UTC(),
	})
	return true, nil
}

func (s *memStore) ListClosed(ctx context.Context, ownerID string, limit int) ([]domain.ClosedPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClosedPosition
	for i := len(s.closed) - 1; i >= 0 && len(out) < limit; i-- {
		if s.closed[i].OwnerID == ownerID {
			out = append(out, s.closed[i])
		}
	}
	return out, nil
}

func (s *memStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.ClosedPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClosedPosition
	for _, cp := range s.closed {
		if cp.ClosedAt.Before(before) {
			out = append(out, cp)
		}
	}
	return out, nil
}

type stubQuotes struct {
	prices map[string]float64
}

func (s *stubQuotes) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	price, ok := s.prices[pair]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{Pair: pair, Price: price, FetchedAt: time.Now().UTC()}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func lot(v float64) *float64 { return &v }

func newTradeService(store *memStore, prices map[string]float64) *TradeService {
	return NewTradeService(store, &stubQuotes{prices: prices}, nil, testLogger())
}

func TestAddPositionSummary(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, map[string]float64{"EURUSD": 1.1010})

	pos, sum, err := svc.AddPosition(context.Background(), domain.Position{
		OwnerID:    "owner-1",
		Pair:       "eurusd",
		Direction:  domain.DirectionBuy,
		Entry:      1.1000,
		TakeProfit: 1.1050,
		StopLoss:   1.0950,
		LotSize:    lot(1.0),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pos.ID)
	assert.Equal(t, "EURUSD", pos.Pair)

	require.NotNil(t, sum.CurrentPrice)
	assert.Equal(t, 1.1010, *sum.CurrentPrice)
	assert.Equal(t, 40, sum.PipsToTP)
	assert.Equal(t, 60, sum.PipsToSL)
	assert.Equal(t, 50, sum.RewardPips)
	assert.Equal(t, 50, sum.RiskPips)
	require.NotNil(t, sum.RiskReward)
	assert.Equal(t, 1.0, *sum.RiskReward)
	require.NotNil(t, sum.RiskAmount)
	assert.Equal(t, 500.0, *sum.RiskAmount)
	require.NotNil(t, sum.RewardAmount)
	assert.Equal(t, 500.0, *sum.RewardAmount)
}

func TestAddPositionWithoutQuoteStillAdds(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, nil)

	pos, sum, err := svc.AddPosition(context.Background(), domain.Position{
		OwnerID:    "owner-1",
		Pair:       "EURUSD",
		Direction:  domain.DirectionSell,
		Entry:      1.1000,
		TakeProfit: 1.0950,
		StopLoss:   1.1050,
	})
	require.NoError(t, err)
	assert.Nil(t, sum.CurrentPrice)

	active, err := store.ListActiveByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, pos.ID, active[0].ID)
}

func TestAddPositionValidation(t *testing.T) {
	svc := newTradeService(newMemStore(), nil)
	ctx := context.Background()

	base := domain.Position{
		OwnerID:    "owner-1",
		Pair:       "EURUSD",
		Direction:  domain.DirectionBuy,
		Entry:      1.1000,
		TakeProfit: 1.1050,
		StopLoss:   1.0950,
	}

	bad := base
	bad.Pair = "NOPE"
	_, _, err := svc.AddPosition(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPair)

	bad = base
	bad.Direction = "long"
	_, _, err = svc.AddPosition(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)

	bad = base
	bad.Entry = 0
	_, _, err = svc.AddPosition(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)

	bad = base
	bad.LotSize = lot(-1)
	_, _, err = svc.AddPosition(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)

	bad = base
	bad.OwnerID = ""
	_, _, err = svc.AddPosition(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)
}

func TestListActiveAnnotatesLiveState(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, map[string]float64{"EURUSD": 1.1020})

	_, err := store.Add(context.Background(), domain.Position{
		OwnerID:    "owner-1",
		Pair:       "EURUSD",
		Direction:  domain.DirectionBuy,
		Entry:      1.1000,
		TakeProfit: 1.1050,
		StopLoss:   1.0950,
		LotSize:    lot(0.5),
	})
	require.NoError(t, err)

	views, err := svc.ListActive(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, views, 1)

	v := views[0]
	require.NotNil(t, v.Quote)
	assert.Equal(t, 1.1020, *v.Quote)
	assert.Equal(t, 30, v.PipsToTP)
	assert.Equal(t, 70, v.PipsToSL)
	assert.True(t, v.InProfit)
	assert.Equal(t, 20, v.FloatingPips)
	require.NotNil(t, v.FloatingAmount)
	assert.Equal(t, 100.0, *v.FloatingAmount)
}

func TestListActiveKeepsPositionsWithoutQuotes(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, nil)

	_, err := store.Add(context.Background(), domain.Position{
		OwnerID: "owner-1", Pair: "EURUSD", Direction: domain.DirectionBuy,
		Entry: 1.1000, TakeProfit: 1.1050, StopLoss: 1.0950,
	})
	require.NoError(t, err)

	views, err := svc.ListActive(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Nil(t, views[0].Quote)
	assert.Nil(t, views[0].FloatingAmount)
}

func TestLivePnLTotalsSignedAmounts(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, map[string]float64{
		"EURUSD": 1.1020, // buy in profit: +20 pips
		"GBPUSD": 1.2540, // sell under water: -40 pips
	})
	ctx := context.Background()

	_, err := store.Add(ctx, domain.Position{
		OwnerID: "owner-1", Pair: "EURUSD", Direction: domain.DirectionBuy,
		Entry: 1.1000, TakeProfit: 1.1100, StopLoss: 1.0900, LotSize: lot(1.0),
	})
	require.NoError(t, err)
	_, err = store.Add(ctx, domain.Position{
		OwnerID: "owner-1", Pair: "GBPUSD", Direction: domain.DirectionSell,
		Entry: 1.2500, TakeProfit: 1.2400, StopLoss: 1.2600, LotSize: lot(1.0),
	})
	require.NoError(t, err)

	views, total, err := svc.LivePnL(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, views, 2)
	// +200 (EURUSD) - 400 (GBPUSD).
	assert.Equal(t, -200.0, total)
}

func TestDeletePositionOwnerScoped(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, nil)
	ctx := context.Background()

	pos, err := store.Add(ctx, domain.Position{
		OwnerID: "owner-1", Pair: "EURUSD", Direction: domain.DirectionBuy,
		Entry: 1.1000, TakeProfit: 1.1050, StopLoss: 1.0950,
	})
	require.NoError(t, err)

	// Another owner cannot delete it.
	deleted, err := svc.DeletePosition(ctx, "owner-2", pos.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = svc.DeletePosition(ctx, "owner-1", pos.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleting again reports false without error.
	deleted, err = svc.DeletePosition(ctx, "owner-1", pos.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListClosedDefaultsLimit(t *testing.T) {
	store := newMemStore()
	svc := newTradeService(store, nil)
	ctx := context.Background()

	for range 8 {
		p, err := store.Add(ctx, domain.Position{
			OwnerID: "owner-1", Pair: "EURUSD", Direction: domain.DirectionBuy,
			Entry: 1.1000, TakeProfit: 1.1050, StopLoss: 1.0950,
		})
		require.NoError(t, err)
		_, err = store.CloseAndRemove(ctx, p.ID, 1.1051, domain.OutcomeTookProfit, 0)
		require.NoError(t, err)
	}

	closed, err := svc.ListClosed(ctx, "owner-1", 0)
	require.NoError(t, err)
	assert.Len(t, closed, 5)

	closed, err = svc.ListClosed(ctx, "owner-1", 8)
	require.NoError(t, err)
	assert.Len(t, closed, 8)
}
