package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pipwatch/internal/domain"
	"github.com/alanyoungcy/pipwatch/internal/service"
)

type stubTradeService struct {
	addErr    error
	added     domain.Position
	summary   service.TradeSummary
	views     []service.LiveView
	total     float64
	closed    []domain.ClosedPosition
	deleted   bool
	deleteErr error
}

func (s *stubTradeService) AddPosition(ctx context.Context, pos domain.Position) (domain.Position, service.TradeSummary, error) {
	if s.addErr != nil {
		return domain.Position{}, service.TradeSummary{}, s.addErr
	}
	return s.added, s.summary, nil
}

func (s *stubTradeService) ListActive(ctx context.Context, ownerID string) ([]service.LiveView, error) {
	return s.views, nil
}

func (s *stubTradeService) LivePnL(ctx context.Context, ownerID string) ([]service.LiveView, float64, error) {
	return s.views, s.total, nil
}

func (s *stubTradeService) ListClosed(ctx context.Context, ownerID string, limit int) ([]domain.ClosedPosition, error) {
	return s.closed, nil
}

func (s *stubTradeService) DeletePosition(ctx context.Context, ownerID, id string) (bool, error) {
	return s.deleted, s.deleteErr
}

func newMux(svc TradeService) *http.ServeMux {
	h := NewPositionHandler(svc, slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/positions", h.AddPosition)
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("GET /api/positions/pnl", h.LivePnL)
	mux.HandleFunc("GET /api/positions/closed", h.ListClosed)
	mux.HandleFunc("DELETE /api/positions/{id}", h.DeletePosition)
	return mux
}

func TestAddPositionCreated(t *testing.T) {
	price := 1.1010
	svc := &stubTradeService{
		added: domain.Position{
			ID: "pos-1", OwnerID: "owner-1", Pair: "EURUSD",
			Direction: domain.DirectionBuy, Entry: 1.1000,
			TakeProfit: 1.1050, StopLoss: 1.0950,
			OpenedAt: time.Now().UTC(),
		},
		summary: service.TradeSummary{CurrentPrice: &price, PipsToTP: 40, PipsToSL: 60},
	}
	mux := newMux(svc)

	body := `{"owner_id":"owner-1","pair":"EURUSD","direction":"buy","entry":1.1,"take_profit":1.105,"stop_loss":1.095}`
	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Position positionResponse `json:"position"`
		Summary  summaryResponse  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pos-1", resp.Position.ID)
	require.NotNil(t, resp.Summary.CurrentPrice)
	assert.Equal(t, 1.1010, *resp.Summary.CurrentPrice)
}

func TestAddPositionValidationError(t *testing.T) {
	svc := &stubTradeService{addErr: domain.ErrInvalidPair}
	mux := newMux(svc)

	body := `{"owner_id":"owner-1","pair":"NOPE","direction":"buy","entry":1.1,"take_profit":1.105,"stop_loss":1.095}`
	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddPositionBadJSON(t *testing.T) {
	mux := newMux(&stubTradeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/positions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositionsRequiresOwner(t *testing.T) {
	mux := newMux(&stubTradeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositionsOK(t *testing.T) {
	quote := 1.1020
	svc := &stubTradeService{views: []service.LiveView{{
		Position: domain.Position{ID: "pos-1", Pair: "EURUSD", Direction: domain.DirectionBuy},
		Quote:    &quote,
		InProfit: true,
	}}}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/positions?owner_id=owner-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Positions []liveViewResponse `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Positions, 1)
	assert.True(t, resp.Positions[0].InProfit)
}

func TestLivePnLIncludesTotal(t *testing.T) {
	svc := &stubTradeService{total: -200}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/positions/pnl?owner_id=owner-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Total float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, -200.0, resp.Total)
}

func TestDeletePositionNotFound(t *testing.T) {
	mux := newMux(&stubTradeService{deleted: false})

	req := httptest.NewRequest(http.MethodDelete, "/api/positions/pos-1?owner_id=owner-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePositionNoContent(t *testing.T) {
	mux := newMux(&stubTradeService{deleted: true})

	req := httptest.NewRequest(http.MethodDelete, "/api/positions/pos-1?owner_id=owner-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
