package flight

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"swiftclaim/pkg/platform/sentinel"
)

// PostgresSource reads the synced flight data table.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed flight record source.
func NewPostgres(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Find returns the flight with the given ID, or sentinel.ErrNotFound.
func (s *PostgresSource) Find(ctx context.Context, flightID uint64) (*Record, error) {
	query := `
		SELECT flight_id, carrier, departed_at, delay_minutes, duration_minutes, cancelled
		FROM flight_data
		WHERE flight_id = $1
	`
	var r Record
	err := s.db.QueryRowContext(ctx, query, flightID).Scan(
		&r.FlightID,
		&r.Carrier,
		&r.DepartedAt,
		&r.DelayMinutes,
		&r.DurationMinutes,
		&r.Cancelled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query flight record: %w", err)
	}
	return &r, nil
}
