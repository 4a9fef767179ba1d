package medical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"swiftclaim/pkg/platform/sentinel"
)

// PostgresSource reads the synced medical record mirror table.
type PostgresSource struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed medical record source.
func NewPostgres(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Find returns the medical record with the given ID, or sentinel.ErrNotFound.
func (s *PostgresSource) Find(ctx context.Context, recordID string) (*Record, error) {
	query := `
		SELECT record_id, patient_name, hospital, bill_amount, admitted_at, discharged_at
		FROM medical_records
		WHERE record_id = $1
	`
	var r Record
	err := s.db.QueryRowContext(ctx, query, recordID).Scan(
		&r.RecordID,
		&r.PatientName,
		&r.Hospital,
		&r.BillAmount,
		&r.AdmittedAt,
		&r.DischargedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query medical record: %w", err)
	}
	return &r, nil
}
