// Package domain holds identifier and value types shared across modules.
package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// UserID identifies a policyholder or insurer operator. IDs are issued by the
// external identity provider and arrive as UUIDs in the bearer token.
type UserID uuid.UUID

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID parses a UUID string into a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, fmt.Errorf("parse user id: %w", err)
	}
	return UserID(u), nil
}

// IsNil reports whether the ID is the zero UUID.
func (u UserID) IsNil() bool { return uuid.UUID(u) == uuid.Nil }

func (u UserID) String() string { return uuid.UUID(u).String() }

// MarshalText renders the canonical UUID form, so the type round-trips
// through JSON as a string.
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.String()), nil }

func (u *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// PolicyNumber identifies a subscribed policy. Numbers are assigned by the
// settlement authority at subscription time and mirrored locally.
type PolicyNumber uint64

// ParsePolicyNumber parses a decimal policy number.
func ParsePolicyNumber(s string) (PolicyNumber, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("parse policy number %q", s)
	}
	return PolicyNumber(n), nil
}

func (p PolicyNumber) String() string { return strconv.FormatUint(uint64(p), 10) }

// ClaimID identifies a claim. The ID is assigned by the settlement authority on
// the first successful submission; it never exists locally before that point.
type ClaimID uint64

// ParseClaimID parses a decimal claim ID.
func ParseClaimID(s string) (ClaimID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("parse claim id %q", s)
	}
	return ClaimID(n), nil
}

func (c ClaimID) String() string { return strconv.FormatUint(uint64(c), 10) }

// TxHash is a finalized ledger transaction reference.
type TxHash string

func (h TxHash) String() string { return string(h) }
