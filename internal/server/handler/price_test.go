package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

type stubQuoteService struct {
	quote domain.Quote
	err   error
}

func (s *stubQuoteService) Quote(ctx context.Context, pair string) (domain.Quote, error) {
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	return s.quote, nil
}

func priceMux(svc QuoteService) *http.ServeMux {
	h := NewPriceHandler(svc, slog.New(slog.DiscardHandler))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/price/{pair}", h.GetPrice)
	return mux
}

func TestGetPriceOK(t *testing.T) {
	svc := &stubQuoteService{quote: domain.Quote{
		Pair: "USDJPY", Price: 150.25, FetchedAt: time.Now().UTC(),
	}}
	mux := priceMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/price/USDJPY", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Pair    string  `json:"pair"`
		Price   float64 `json:"price"`
		PipSize float64 `json:"pip_size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "USDJPY", resp.Pair)
	assert.Equal(t, 150.25, resp.Price)
	assert.Equal(t, 0.01, resp.PipSize)
}

func TestGetPriceInvalidPair(t *testing.T) {
	mux := priceMux(&stubQuoteService{err: domain.ErrInvalidPair})

	req := httptest.NewRequest(http.MethodGet, "/api/price/bogus", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPriceUnavailable(t *testing.T) {
	mux := priceMux(&stubQuoteService{err: domain.ErrQuoteUnavailable})

	req := httptest.NewRequest(http.MethodGet, "/api/price/EURUSD", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
