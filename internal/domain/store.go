package domain

import (
	"context"
	"time"
)

// PositionStore persists active positions and the closed ledger. The store
// exclusively owns both tables; the command front end and the monitor loop
// only ever touch them through these operations.
type PositionStore interface {
	// Add inserts a position and returns it with a store-assigned ID.
	Add(ctx context.Context, pos Position) (Position, error)

	// ListActive returns a snapshot of every active position.
	ListActive(ctx context.Context) ([]Position, error)

	// ListActiveByOwner returns a snapshot of the owner's active positions.
	ListActiveByOwner(ctx context.Context, ownerID string) ([]Position, error)

	// Delete removes an active position if it still exists. It reports
	// whether a row was actually removed; deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, id string) (bool, error)

	// CloseAndRemove atomically writes the ledger record and removes the
	// active row, conditioned on the active row still existing. It returns
	// false when a concurrent Delete won the race, in which case nothing
	// was written.
	CloseAndRemove(ctx context.Context, id string, exitPrice float64, outcome Outcome, profit float64) (bool, error)

	// ListClosed returns the owner's most recent ledger records, newest
	// first, up to limit.
	ListClosed(ctx context.Context, ownerID string, limit int) ([]ClosedPosition, error)

	// ListClosedBefore returns every ledger record closed strictly before
	// the cutoff, for archival.
	ListClosedBefore(ctx context.Context, before time.Time) ([]ClosedPosition, error)
}

// QuoteSource fetches the current market price for a 6-letter pair code.
// Implementations report ErrQuoteUnavailable for any provider failure and
// never retry internally; retry policy belongs to the caller.
type QuoteSource interface {
	Quote(ctx context.Context, pair string) (Quote, error)
}

// QuoteCache is a short-lived cache of recent quotes, used to stay inside
// the price provider's rate limits. GetQuote returns ErrNotFound on a miss.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, pair string) (Quote, error)
}

// SignalBus is an ephemeral pub/sub fabric for runtime events (position
// opened/closed, quote updates). Subscribers receive raw JSON payloads.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter throttles calls to external providers across instances.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the
	// sliding window limit, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides coarse distributed locks so only one instance runs
// an exclusive job at a time.
type LockManager interface {
	// Acquire obtains the lock for key with the given TTL and returns an
	// idempotent unlock function, or ErrLockHeld when another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Archiver exports old ledger records to cold storage.
type Archiver interface {
	// ArchiveClosedPositions uploads all ledger records closed before the
	// cutoff and returns the number of records archived.
	ArchiveClosedPositions(ctx context.Context, before time.Time) (int64, error)
}
