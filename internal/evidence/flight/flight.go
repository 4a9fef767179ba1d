// Package flight exposes read-only lookups against the synced flight data feed
// referenced by travel claims.
package flight

import (
	"context"
	"time"
)

// Record is an observed flight referenced by a travel claim.
type Record struct {
	FlightID        uint64    `json:"flight_id"`
	Carrier         string    `json:"carrier"`
	DepartedAt      time.Time `json:"departed_at"`
	DelayMinutes    int       `json:"delay_minutes"`
	DurationMinutes int       `json:"duration_minutes"`
	Cancelled       bool      `json:"cancelled"`
}

// Source looks up flight records by identifier.
// Implementations return sentinel.ErrNotFound for unknown flights.
type Source interface {
	Find(ctx context.Context, flightID uint64) (*Record, error)
}
