package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
	"github.com/alanyoungcy/pipwatch/internal/fx"
)

// QuoteService defines the methods that the price handler requires.
type QuoteService interface {
	Quote(ctx context.Context, pair string) (domain.Quote, error)
}

// PriceHandler serves spot price lookups.
type PriceHandler struct {
	quotes QuoteService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler with the given service and logger.
func NewPriceHandler(quotes QuoteService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		quotes: quotes,
		logger: logger,
	}
}

// GetPrice returns the current quote for a pair.
// GET /api/price/{pair}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	pair := pathParam(r, "pair")

	q, err := h.quotes.Quote(r.Context(), pair)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPair):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrQuoteUnavailable):
			writeError(w, http.StatusServiceUnavailable, "quote unavailable")
		default:
			h.logger.ErrorContext(r.Context(), "handler: get price failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to fetch price")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"pair":       q.Pair,
		"price":      q.Price,
		"pip_size":   fx.PipSize(q.Pair),
		"fetched_at": q.FetchedAt.UTC().Format(time.RFC3339Nano),
	})
}
