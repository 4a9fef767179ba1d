// Package store persists subscribed policies. Claim processing only reads
// policies; writes happen in the subscription flow, which lives outside this
// service.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"swiftclaim/internal/policy"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/platform/sentinel"
)

// PostgresStore reads policies from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindByNumber returns the policy with the given number, or sentinel.ErrNotFound.
func (s *PostgresStore) FindByNumber(ctx context.Context, number id.PolicyNumber) (*policy.Policy, error) {
	query := `
		SELECT policy_number, holder_id, policy_type, status,
		       coverage, per_claim_ceiling, copay_percent,
		       period_start, period_end,
		       max_room_rent, max_icu_charges, max_operation_charges,
		       max_medicine_charges, max_diagnostic_charges, max_ambulance_charges,
		       max_delay_minutes, cancellation_covered,
		       delay_bracket_minutes, payout_per_bracket
		FROM policies
		WHERE policy_number = $1
	`

	var (
		p            policy.Policy
		holderID     string
		health       policy.HealthTerms
		travel       policy.TravelTerms
		cancellation sql.NullBool
	)
	err := s.db.QueryRowContext(ctx, query, uint64(number)).Scan(
		&p.Number,
		&holderID,
		&p.Type,
		&p.Status,
		&p.Coverage,
		&p.PerClaimCeiling,
		&p.CopayPercent,
		&p.PeriodStart,
		&p.PeriodEnd,
		&health.MaxRoomRent,
		&health.MaxICUCharges,
		&health.MaxOperationCharges,
		&health.MaxMedicineCharges,
		&health.MaxDiagnosticCharges,
		&health.MaxAmbulanceCharges,
		&travel.MaxDelayMinutes,
		&cancellation,
		&travel.DelayBracketMinutes,
		&travel.PayoutPerBracket,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query policy: %w", err)
	}

	p.HolderID, err = id.ParseUserID(holderID)
	if err != nil {
		return nil, fmt.Errorf("scan policy holder: %w", err)
	}

	switch p.Type {
	case id.ClaimTypeHealth:
		p.Health = &health
	case id.ClaimTypeTravel:
		travel.CancellationCovered = cancellation.Bool
		p.Travel = &travel
	}
	return &p, nil
}
