// Package medical exposes read-only lookups against the external health record
// registry mirror. Absence of a record is a validator rejection upstream, not a
// fault here.
package medical

import (
	"context"
	"time"

	id "swiftclaim/pkg/domain"
)

// Record is a billed hospital episode referenced by a health claim.
type Record struct {
	RecordID     string    `json:"record_id"`
	PatientName  string    `json:"patient_name"`
	Hospital     string    `json:"hospital"`
	BillAmount   id.Amount `json:"bill_amount"`
	AdmittedAt   time.Time `json:"admitted_at"`
	DischargedAt time.Time `json:"discharged_at"`
}

// Source looks up medical records by external identifier.
// Implementations return sentinel.ErrNotFound for unknown identifiers.
type Source interface {
	Find(ctx context.Context, recordID string) (*Record, error)
}
