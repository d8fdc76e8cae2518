package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pipwatch/internal/domain"
	"github.com/alanyoungcy/pipwatch/internal/fx"
)

// defaultClosedLimit caps history listings when the caller does not ask for
// a specific count.
const defaultClosedLimit = 5

// TradeSummary describes a freshly added position relative to the market.
// CurrentPrice and the distances derived from it are nil when no quote was
// available at add time; the position is tracked regardless.
type TradeSummary struct {
	CurrentPrice *float64
	PipsToTP     int // from current price, zero when CurrentPrice is nil
	PipsToSL     int
	RewardPips   int // entry to take-profit
	RiskPips     int // entry to stop-loss
	RiskReward   *float64 // nil when the stop-loss sits on the entry
	RiskAmount   *float64 // dollars, set only for sized positions
	RewardAmount *float64
}

// LiveView is an active position annotated with the current market state.
// The quote-derived fields are zero and Quote is nil when the pair's price
// could not be fetched.
type LiveView struct {
	Position domain.Position
	Quote    *float64
	PipsToTP int
	PipsToSL int
	// FloatingPips is signed: positive while the position is in profit.
	FloatingPips int
	InProfit     bool
	// FloatingAmount is the signed dollar PnL, nil for unsized positions.
	FloatingAmount *float64
}

// TradeService implements the user-facing trade operations: opening,
// listing, and deleting positions, plus live PnL and history views.
type TradeService struct {
	store  domain.PositionStore
	quotes domain.QuoteSource
	bus    domain.SignalBus // optional
	logger *slog.Logger
}

// NewTradeService creates a TradeService. bus may be nil.
func NewTradeService(store domain.PositionStore, quotes domain.QuoteSource, bus domain.SignalBus, logger *slog.Logger) *TradeService {
	return &TradeService{
		store:  store,
		quotes: quotes,
		bus:    bus,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// AddPosition validates and stores a new position, then annotates it with a
// best-effort market summary. A quote failure never blocks the add; the
// summary simply omits the current price.
func (s *TradeService) AddPosition(ctx context.Context, pos domain.Position) (domain.Position, TradeSummary, error) {
	if err := validatePosition(pos); err != nil {
		return domain.Position{}, TradeSummary{}, err
	}
	pos.Pair = domain.NormalizePair(pos.Pair)

	added, err := s.store.Add(ctx, pos)
	if err != nil {
		return domain.Position{}, TradeSummary{}, fmt.Errorf("trade_service: add position: %w", err)
	}

	s.logger.InfoContext(ctx, "position added",
		slog.String("position_id", added.ID),
		slog.String("owner_id", added.OwnerID),
		slog.String("pair", added.Pair),
		slog.String("direction", string(added.Direction)),
	)
	s.publishPositionEvent(ctx, "position_opened", added)

	return added, s.summarize(ctx, added), nil
}

// summarize builds the add-time market summary for a position.
func (s *TradeService) summarize(ctx context.Context, pos domain.Position) TradeSummary {
	sum := TradeSummary{
		RewardPips: fx.PipDistance(pos.Entry, pos.TakeProfit, pos.Pair),
		RiskPips:   fx.PipDistance(pos.Entry, pos.StopLoss, pos.Pair),
	}
	if sum.RiskPips > 0 {
		rr := float64(sum.RewardPips) / float64(sum.RiskPips)
		sum.RiskReward = &rr
	}
	if pos.LotSize != nil {
		risk := fx.Profit(sum.RiskPips, *pos.LotSize)
		reward := fx.Profit(sum.RewardPips, *pos.LotSize)
		sum.RiskAmount = &risk
		sum.RewardAmount = &reward
	}

	q, err := s.quotes.Quote(ctx, pos.Pair)
	if err != nil {
		s.logger.WarnContext(ctx, "quote unavailable for add summary",
			slog.String("pair", pos.Pair),
			slog.String("error", err.Error()),
		)
		return sum
	}
	sum.CurrentPrice = &q.Price
	sum.PipsToTP = fx.PipDistance(q.Price, pos.TakeProfit, pos.Pair)
	sum.PipsToSL = fx.PipDistance(q.Price, pos.StopLoss, pos.Pair)
	return sum
}

// ListActive returns the owner's active positions annotated with live
// market data. Positions whose pair has no quote are still listed, with the
// quote-derived fields unset.
func (s *TradeService) ListActive(ctx context.Context, ownerID string) ([]LiveView, error) {
	positions, err := s.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list active: %w", err)
	}
	return s.liveViews(ctx, positions), nil
}

// LivePnL returns the owner's positions with live PnL and the aggregate
// floating total across all sized positions that have a quote.
func (s *TradeService) LivePnL(ctx context.Context, ownerID string) ([]LiveView, float64, error) {
	positions, err := s.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("trade_service: live pnl: %w", err)
	}

	views := s.liveViews(ctx, positions)
	var total float64
	for _, v := range views {
		if v.FloatingAmount != nil {
			total += *v.FloatingAmount
		}
	}
	return views, total, nil
}

// liveViews annotates positions with quotes, fetching each pair once.
func (s *TradeService) liveViews(ctx context.Context, positions []domain.Position) []LiveView {
	quotes := make(map[string]*domain.Quote, len(positions))
	for _, pos := range positions {
		if _, seen := quotes[pos.Pair]; seen {
			continue
		}
		q, err := s.quotes.Quote(ctx, pos.Pair)
		if err != nil {
			quotes[pos.Pair] = nil
			continue
		}
		quotes[pos.Pair] = &q
	}

	views := make([]LiveView, 0, len(positions))
	for _, pos := range positions {
		v := LiveView{Position: pos}
		if q := quotes[pos.Pair]; q != nil {
			v.Quote = &q.Price
			v.PipsToTP = fx.PipDistance(q.Price, pos.TakeProfit, pos.Pair)
			v.PipsToSL = fx.PipDistance(q.Price, pos.StopLoss, pos.Pair)

			pips := fx.PipDistance(q.Price, pos.Entry, pos.Pair)
			if pos.Direction == domain.DirectionBuy {
				v.InProfit = q.Price >= pos.Entry
			} else {
				v.InProfit = q.Price <= pos.Entry
			}
			v.FloatingPips = pips
			if !v.InProfit {
				v.FloatingPips = -pips
			}
			if pos.LotSize != nil {
				amount := fx.Profit(pips, *pos.LotSize)
				if !v.InProfit {
					amount = -amount
				}
				v.FloatingAmount = &amount
			}
		}
		views = append(views, v)
	}
	return views
}

// ListClosed returns the owner's most recent closed trades, newest first.
// A non-positive limit falls back to the default of 5.
func (s *TradeService) ListClosed(ctx context.Context, ownerID string, limit int) ([]domain.ClosedPosition, error) {
	if limit <= 0 {
		limit = defaultClosedLimit
	}
	closed, err := s.store.ListClosed(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list closed: %w", err)
	}
	return closed, nil
}

// DeletePosition removes one of the owner's active positions. It reports
// false when the position does not exist or belongs to someone else; a
// concurrent monitor close that wins the row also surfaces as false.
func (s *TradeService) DeletePosition(ctx context.Context, ownerID, id string) (bool, error) {
	positions, err := s.store.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("trade_service: delete position: %w", err)
	}

	var target *domain.Position
	for i := range positions {
		if positions[i].ID == id {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return false, nil
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("trade_service: delete position: %w", err)
	}
	if deleted {
		s.logger.InfoContext(ctx, "position deleted",
			slog.String("position_id", id),
			slog.String("owner_id", ownerID),
		)
		s.publishPositionEvent(ctx, "position_deleted", *target)
	}
	return deleted, nil
}

// publishPositionEvent emits a position lifecycle event for websocket fan-out.
func (s *TradeService) publishPositionEvent(ctx context.Context, event string, pos domain.Position) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":       event,
		"position_id": pos.ID,
		"owner_id":    pos.OwnerID,
		"pair":        pos.Pair,
		"direction":   string(pos.Direction),
		"entry":       pos.Entry,
		"take_profit": pos.TakeProfit,
		"stop_loss":   pos.StopLoss,
		"opened_at":   pos.OpenedAt.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, "positions", evt); err != nil {
		s.logger.WarnContext(ctx, "publish position event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// validatePosition checks the user-supplied fields of a new position.
func validatePosition(pos domain.Position) error {
	if err := domain.ValidatePair(pos.Pair); err != nil {
		return err
	}
	if pos.OwnerID == "" {
		return fmt.Errorf("%w: missing owner", domain.ErrInvalidPosition)
	}
	if !pos.Direction.Valid() {
		return fmt.Errorf("%w: direction must be buy or sell", domain.ErrInvalidPosition)
	}
	if pos.Entry <= 0 || pos.TakeProfit <= 0 || pos.StopLoss <= 0 {
		return fmt.Errorf("%w: prices must be positive", domain.ErrInvalidPosition)
	}
	if pos.LotSize != nil && *pos.LotSize <= 0 {
		return fmt.Errorf("%w: lot size must be positive", domain.ErrInvalidPosition)
	}
	return nil
}
