package domain

import "time"

// Quote is a transient market price for a currency pair. Quotes are never
// persisted to the primary store; they live only in the per-cycle evaluation
// path and, briefly, in the redis quote cache.
type Quote struct {
	Pair      string
	Price     float64
	FetchedAt time.Time
}
