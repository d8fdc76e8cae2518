// Package monitor implements the take-profit / stop-loss watcher. It polls
// current prices for every pair with active positions and moves triggered
// positions into the closed ledger, notifying the owner exactly once.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pipwatch/internal/domain"
	"github.com/alanyoungcy/pipwatch/internal/fx"
)

// cycleLockKey guards the monitor cycle so only one instance evaluates
// positions at a time when several processes share the same store.
const cycleLockKey = "monitor:cycle"

// Notifier delivers owner-addressed notifications. *notify.Notifier
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, recipient, title, message string) error
}

// Config controls the monitor cadence and quote fan-out.
type Config struct {
	// Interval between cycles.
	Interval time.Duration
	// QuoteTimeout bounds each provider fetch.
	QuoteTimeout time.Duration
	// MaxConcurrentQuotes bounds parallel provider fetches per cycle.
	MaxConcurrentQuotes int
	// CloseTimeout bounds the close-and-notify path for one position.
	CloseTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = 10 * time.Second
	}
	if c.MaxConcurrentQuotes <= 0 {
		c.MaxConcurrentQuotes = 4
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 30 * time.Second
	}
	return c
}

// Monitor drives the TP/SL evaluation loop. Each cycle reads a fresh
// snapshot of active positions; nothing is carried between cycles, so a
// restart resumes cleanly from the store.
type Monitor struct {
	store    domain.PositionStore
	quotes   domain.QuoteSource
	notifier Notifier
	bus      domain.SignalBus   // optional
	locks    domain.LockManager // optional
	cfg      Config
	logger   *slog.Logger
}

// New creates a Monitor. bus and locks may be nil; the monitor then skips
// event publishing and runs unlocked.
func New(
	store domain.PositionStore,
	quotes domain.QuoteSource,
	notifier Notifier,
	bus domain.SignalBus,
	locks domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		store:    store,
		quotes:   quotes,
		notifier: notifier,
		bus:      bus,
		locks:    locks,
		cfg:      cfg.withDefaults(),
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Run executes monitor cycles until the context is cancelled. Call in a
// goroutine. A cycle in progress when cancellation arrives still finishes
// its close-and-notify work before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.RunCycle(ctx); err != nil {
				m.logger.ErrorContext(ctx, "monitor cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunCycle evaluates every active position against a fresh quote once.
// Failures are isolated per pair and per position: one bad quote or one
// store error never blocks the rest of the cycle.
func (m *Monitor) RunCycle(ctx context.Context) error {
	if m.locks != nil {
		unlock, err := m.locks.Acquire(ctx, cycleLockKey, m.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				m.logger.DebugContext(ctx, "cycle skipped, another instance holds the lock")
				return nil
			}
			return fmt.Errorf("monitor: acquire cycle lock: %w", err)
		}
		defer unlock()
	}

	positions, err := m.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("monitor: list active positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	quotes := m.fetchQuotes(ctx, positions)

	for _, pos := range positions {
		quote, ok := quotes[pos.Pair]
		if !ok {
			// Quote unavailable this cycle; the position stays active and
			// is re-evaluated next cycle.
			continue
		}

		outcome, hit := fx.EvaluateExit(pos.Direction, quote.Price, pos.TakeProfit, pos.StopLoss)
		if !hit {
			continue
		}

		if err := m.closePosition(ctx, pos, quote.Price, outcome); err != nil {
			m.logger.ErrorContext(ctx, "position close failed",
				slog.String("position_id", pos.ID),
				slog.String("pair", pos.Pair),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// fetchQuotes fetches one quote per distinct pair with bounded concurrency.
// Pairs whose fetch fails are omitted from the result.
func (m *Monitor) fetchQuotes(ctx context.Context, positions []domain.Position) map[string]domain.Quote {
	pairs := make([]string, 0, len(positions))
	seen := make(map[string]bool, len(positions))
	for _, pos := range positions {
		if !seen[pos.Pair] {
			seen[pos.Pair] = true
			pairs = append(pairs, pos.Pair)
		}
	}

	results := make([]domain.Quote, len(pairs))
	fetched := make([]bool, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.MaxConcurrentQuotes)
	for i, pair := range pairs {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, m.cfg.QuoteTimeout)
			defer cancel()

			q, err := m.quotes.Quote(qctx, pair)
			if err != nil {
				m.logger.WarnContext(ctx, "quote fetch failed",
					slog.String("pair", pair),
					slog.String("error", err.Error()),
				)
				return nil
			}
			results[i] = q
			fetched[i] = true
			return nil
		})
	}
	_ = g.Wait()

	quotes := make(map[string]domain.Quote, len(pairs))
	for i, pair := range pairs {
		if fetched[i] {
			quotes[pair] = results[i]
		}
	}
	return quotes
}

// closePosition records the closure and notifies the owner. The store's
// CloseAndRemove arbitrates the race against a concurrent user delete: the
// notification fires only when this monitor actually won the row, so the
// owner hears about each closure exactly once.
func (m *Monitor) closePosition(ctx context.Context, pos domain.Position, exitPrice float64, outcome domain.Outcome) error {
	// Detach from the loop's cancellation so a shutdown mid-close still
	// commits the ledger write and delivers the notification.
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CloseTimeout)
	defer cancel()

	profit := closedProfit(pos, exitPrice, outcome)

	closed, err := m.store.CloseAndRemove(closeCtx, pos.ID, exitPrice, outcome, profit)
	if err != nil {
		return err
	}
	if !closed {
		m.logger.DebugContext(ctx, "position already removed",
			slog.String("position_id", pos.ID),
		)
		return nil
	}

	m.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("pair", pos.Pair),
		slog.String("direction", string(pos.Direction)),
		slog.String("outcome", string(outcome)),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("profit", profit),
	)

	title := fmt.Sprintf("%s hit: %s", outcome.Label(), pos.Pair)
	message := closeMessage(pos, exitPrice, outcome, profit)
	if err := m.notifier.Notify(closeCtx, "position_closed", pos.OwnerID, title, message); err != nil {
		m.logger.ErrorContext(ctx, "close notification failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	if m.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":       "position_closed",
			"position_id": pos.ID,
			"owner_id":    pos.OwnerID,
			"pair":        pos.Pair,
			"direction":   string(pos.Direction),
			"outcome":     string(outcome),
			"exit_price":  exitPrice,
			"profit":      profit,
		})
		if err := m.bus.Publish(closeCtx, "positions", payload); err != nil {
			m.logger.WarnContext(ctx, "close event publish failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// closedProfit computes the signed dollar result of a closure: positive for
// a take-profit, negative for a stop-loss, zero when the position carries no
// lot size.
func closedProfit(pos domain.Position, exitPrice float64, outcome domain.Outcome) float64 {
	if pos.LotSize == nil {
		return 0
	}
	pips := fx.PipDistance(pos.Entry, exitPrice, pos.Pair)
	profit := fx.Profit(pips, *pos.LotSize)
	if outcome == domain.OutcomeStoppedOut {
		return -profit
	}
	return profit
}

func closeMessage(pos domain.Position, exitPrice float64, outcome domain.Outcome, profit float64) string {
	pips := fx.PipDistance(pos.Entry, exitPrice, pos.Pair)
	msg := fmt.Sprintf("%s %s closed at %v (entry %v, %d pips)",
		pos.Pair, pos.Direction, exitPrice, pos.Entry, pips)
	if pos.LotSize != nil {
		msg += fmt.Sprintf("\nResult: %s", FormatMoney(profit))
	}
	return msg
}

// FormatMoney renders a signed dollar amount, e.g. "$510.00" or "-$120.00".
func FormatMoney(amount float64) string {
	if amount < 0 {
		return fmt.Sprintf("-$%.2f", -amount)
	}
	return fmt.Sprintf("$%.2f", amount)
}
