package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/pipwatch/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner_id, pair, direction, entry,
	take_profit, stop_loss, lot_size, opened_at`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var direction string

		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.Pair, &direction,
			&p.Entry, &p.TakeProfit, &p.StopLoss,
			&p.LotSize, &p.OpenedAt,
		); err != nil {
			return nil, err
		}
		p.Direction = domain.Direction(direction)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Add inserts a new active position. When the incoming position has no ID,
// the store assigns one.
func (s *PositionStore) Add(ctx context.Context, p domain.Position) (domain.Position, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO positions (
			id, owner_id, pair, direction, entry,
			take_profit, stop_loss, lot_size, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.OwnerID, p.Pair, string(p.Direction), p.Entry,
		p.TakeProfit, p.StopLoss, p.LotSize, p.OpenedAt,
	)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: add position: %w", err)
	}
	return p, nil
}

// ListActive returns a snapshot of all active positions, oldest first.
func (s *PositionStore) ListActive(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active positions: %w", err)
	}
	return positions, nil
}

// ListActiveByOwner returns the owner's active positions, oldest first.
func (s *PositionStore) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE owner_id = $1 ORDER BY opened_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", ownerID, err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", ownerID, err)
	}
	return positions, nil
}

// Delete removes an active position. It reports false when no row matched;
// deleting an unknown id is not an error.
func (s *PositionStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CloseAndRemove moves an active position into the closed ledger in a single
// transaction. The delete and the ledger insert commit together, so exactly
// one of two racing closers (or a concurrent user delete) wins the row. It
// returns false, without writing anything, when the active row is already gone.
func (s *PositionStore) CloseAndRemove(ctx context.Context, id string, exitPrice float64, outcome domain.Outcome, profit float64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres: begin close tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var p domain.Position
	var direction string
	err = tx.QueryRow(ctx,
		`DELETE FROM positions WHERE id = $1
		 RETURNING `+positionSelectCols).Scan(
		&p.ID, &p.OwnerID, &p.Pair, &direction,
		&p.Entry, &p.TakeProfit, &p.StopLoss,
		&p.LotSize, &p.OpenedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race: someone deleted or closed it first.
			return false, nil
		}
		return false, fmt.Errorf("postgres: close position %s: %w", id, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO closed_positions (
			id, owner_id, pair, direction, entry, exit_price,
			take_profit, stop_loss, lot_size, outcome, profit,
			opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`,
		p.ID, p.OwnerID, p.Pair, direction, p.Entry, exitPrice,
		p.TakeProfit, p.StopLoss, p.LotSize, string(outcome), profit,
		p.OpenedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: record closed position %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres: commit close tx: %w", err)
	}
	return true, nil
}

// ListClosed returns the owner's most recent ledger records, newest first.
func (s *PositionStore) ListClosed(ctx context.Context, ownerID string, limit int) ([]domain.ClosedPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, pair, direction, entry, exit_price,
		       take_profit, stop_loss, lot_size, outcome, profit,
		       opened_at, closed_at
		FROM closed_positions
		WHERE owner_id = $1
		ORDER BY closed_at DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	closed, err := scanClosedRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return closed, nil
}

// ListClosedBefore returns every ledger record closed strictly before the
// cutoff, oldest first.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.ClosedPosition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, pair, direction, entry, exit_price,
		       take_profit, stop_loss, lot_size, outcome, profit,
		       opened_at, closed_at
		FROM closed_positions
		WHERE closed_at < $1
		ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before %s: %w", before, err)
	}
	defer rows.Close()

	closed, err := scanClosedRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions before %s: %w", before, err)
	}
	return closed, nil
}

func scanClosedRows(rows pgx.Rows) ([]domain.ClosedPosition, error) {
	var closed []domain.ClosedPosition
	for rows.Next() {
		var cp domain.ClosedPosition
		var direction, outcome string

		if err := rows.Scan(
			&cp.ID, &cp.OwnerID, &cp.Pair, &direction,
			&cp.Entry, &cp.ExitPrice,
			&cp.TakeProfit, &cp.StopLoss, &cp.LotSize,
			&outcome, &cp.Profit,
			&cp.OpenedAt, &cp.ClosedAt,
		); err != nil {
			return nil, err
		}
		cp.Direction = domain.Direction(direction)
		cp.Outcome = domain.Outcome(outcome)
		closed = append(closed, cp)
	}
	return closed, rows.Err()
}
