package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
	"github.com/alanyoungcy/pipwatch/internal/service"
)

// TradeService defines the methods that the position handler requires.
type TradeService interface {
	AddPosition(ctx context.Context, pos domain.Position) (domain.Position, service.TradeSummary, error)
	ListActive(ctx context.Context, ownerID string) ([]service.LiveView, error)
	LivePnL(ctx context.Context, ownerID string) ([]service.LiveView, float64, error)
	ListClosed(ctx context.Context, ownerID string, limit int) ([]domain.ClosedPosition, error)
	DeletePosition(ctx context.Context, ownerID, id string) (bool, error)
}

// PositionHandler serves the trade tracking HTTP endpoints.
type PositionHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(trades TradeService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		trades: trades,
		logger: logger,
	}
}

// addPositionRequest is the POST /api/positions body.
type addPositionRequest struct {
	OwnerID    string   `json:"owner_id"`
	Pair       string   `json:"pair"`
	Direction  string   `json:"direction"`
	Entry      float64  `json:"entry"`
	TakeProfit float64  `json:"take_profit"`
	StopLoss   float64  `json:"stop_loss"`
	LotSize    *float64 `json:"lot_size,omitempty"`
}

type positionResponse struct {
	ID         string   `json:"id"`
	OwnerID    string   `json:"owner_id"`
	Pair       string   `json:"pair"`
	Direction  string   `json:"direction"`
	Entry      float64  `json:"entry"`
	TakeProfit float64  `json:"take_profit"`
	StopLoss   float64  `json:"stop_loss"`
	LotSize    *float64 `json:"lot_size,omitempty"`
	OpenedAt   string   `json:"opened_at"`
}

type summaryResponse struct {
	CurrentPrice *float64 `json:"current_price,omitempty"`
	PipsToTP     int      `json:"pips_to_tp"`
	PipsToSL     int      `json:"pips_to_sl"`
	RewardPips   int      `json:"reward_pips"`
	RiskPips     int      `json:"risk_pips"`
	RiskReward   *float64 `json:"risk_reward,omitempty"`
	RiskAmount   *float64 `json:"risk_amount,omitempty"`
	RewardAmount *float64 `json:"reward_amount,omitempty"`
}

type liveViewResponse struct {
	Position       positionResponse `json:"position"`
	Quote          *float64         `json:"quote,omitempty"`
	PipsToTP       int              `json:"pips_to_tp"`
	PipsToSL       int              `json:"pips_to_sl"`
	FloatingPips   int              `json:"floating_pips"`
	InProfit       bool             `json:"in_profit"`
	FloatingAmount *float64         `json:"floating_amount,omitempty"`
}

type closedPositionResponse struct {
	ID        string   `json:"id"`
	OwnerID   string   `json:"owner_id"`
	Pair      string   `json:"pair"`
	Direction string   `json:"direction"`
	Entry     float64  `json:"entry"`
	ExitPrice float64  `json:"exit_price"`
	LotSize   *float64 `json:"lot_size,omitempty"`
	Outcome   string   `json:"outcome"`
	Profit    float64  `json:"profit"`
	OpenedAt  string   `json:"opened_at"`
	ClosedAt  string   `json:"closed_at"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		Pair:       p.Pair,
		Direction:  string(p.Direction),
		Entry:      p.Entry,
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		LotSize:    p.LotSize,
		OpenedAt:   p.OpenedAt.UTC().Format(time.RFC3339),
	}
}

func toLiveViewResponses(views []service.LiveView) []liveViewResponse {
	out := make([]liveViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, liveViewResponse{
			Position:       toPositionResponse(v.Position),
			Quote:          v.Quote,
			PipsToTP:       v.PipsToTP,
			PipsToSL:       v.PipsToSL,
			FloatingPips:   v.FloatingPips,
			InProfit:       v.InProfit,
			FloatingAmount: v.FloatingAmount,
		})
	}
	return out
}

// ownerID extracts the required owner_id query parameter.
func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner_id query parameter required")
		return "", false
	}
	return owner, true
}

// AddPosition opens a new tracked position.
// POST /api/positions
func (h *PositionHandler) AddPosition(w http.ResponseWriter, r *http.Request) {
	var req addPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pos, sum, err := h.trades.AddPosition(r.Context(), domain.Position{
		OwnerID:    req.OwnerID,
		Pair:       req.Pair,
		Direction:  domain.Direction(req.Direction),
		Entry:      req.Entry,
		TakeProfit: req.TakeProfit,
		StopLoss:   req.StopLoss,
		LotSize:    req.LotSize,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPair) || errors.Is(err, domain.ErrInvalidPosition) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: add position failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to add position")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"position": toPositionResponse(pos),
		"summary": summaryResponse{
			CurrentPrice: sum.CurrentPrice,
			PipsToTP:     sum.PipsToTP,
			PipsToSL:     sum.PipsToSL,
			RewardPips:   sum.RewardPips,
			RiskPips:     sum.RiskPips,
			RiskReward:   sum.RiskReward,
			RiskAmount:   sum.RiskAmount,
			RewardAmount: sum.RewardAmount,
		},
	})
}

// ListPositions returns the owner's active positions with live market data.
// GET /api/positions?owner_id=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	views, err := h.trades.ListActive(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("owner_id", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": toLiveViewResponses(views),
	})
}

// LivePnL returns the owner's floating PnL across all active positions.
// GET /api/positions/pnl?owner_id=...
func (h *PositionHandler) LivePnL(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	views, total, err := h.trades.LivePnL(r.Context(), owner)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: live pnl failed",
			slog.String("owner_id", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute live pnl")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": toLiveViewResponses(views),
		"total":     total,
	})
}

// ListClosed returns the owner's recently closed positions.
// GET /api/positions/closed?owner_id=...&limit=5
func (h *PositionHandler) ListClosed(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	closed, err := h.trades.ListClosed(r.Context(), owner, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list closed failed",
			slog.String("owner_id", owner),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list closed positions")
		return
	}

	out := make([]closedPositionResponse, 0, len(closed))
	for _, cp := range closed {
		out = append(out, closedPositionResponse{
			ID:        cp.ID,
			OwnerID:   cp.OwnerID,
			Pair:      cp.Pair,
			Direction: string(cp.Direction),
			Entry:     cp.Entry,
			ExitPrice: cp.ExitPrice,
			LotSize:   cp.LotSize,
			Outcome:   string(cp.Outcome),
			Profit:    cp.Profit,
			OpenedAt:  cp.OpenedAt.UTC().Format(time.RFC3339),
			ClosedAt:  cp.ClosedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": out})
}

// DeletePosition removes one of the owner's active positions.
// DELETE /api/positions/{id}?owner_id=...
func (h *PositionHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "position id required")
		return
	}

	deleted, err := h.trades.DeletePosition(r.Context(), owner, id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: delete position failed",
			slog.String("owner_id", owner),
			slog.String("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete position")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
