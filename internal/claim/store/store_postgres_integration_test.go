//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"swiftclaim/internal/claim"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/platform/sentinel"
	txcontext "swiftclaim/pkg/platform/tx"
	"swiftclaim/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx context.Context
	pg  *containers.PostgresContainer

	store *PostgresStore
	now   time.Time

	holder id.UserID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.pg != nil {
		_ = s.pg.DB.Close()
		_ = s.pg.Container.Terminate(s.ctx)
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx,
		"claim_ledger_refs", "claimed_transactions", "claims", "policies"))
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.holder = id.NewUserID()
	s.seedPolicy(100)
}

func (s *PostgresStoreSuite) seedPolicy(number uint64) {
	_, err := s.pg.DB.ExecContext(s.ctx, `
		INSERT INTO policies (
			policy_number, holder_id, policy_type, status,
			coverage, per_claim_ceiling, copay_percent, period_start, period_end
		)
		VALUES ($1, $2, 'health', 'active', 5000000, 1000000, 20, $3, $4)
	`, number, s.holder.String(), s.now.AddDate(0, -1, 0), s.now.AddDate(1, 0, 0))
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) submitted(claimID id.ClaimID, amount id.Amount) *claim.Claim {
	c := &claim.Claim{
		PolicyNumber:    100,
		Claimant:        s.holder,
		Type:            id.ClaimTypeHealth,
		DeclaredAmount:  amount,
		MedicalRecordID: "MR-1",
		Treatment:       id.TreatmentRoomRent,
		Status:          claim.StatusSubmitted,
		CreatedAt:       s.now,
	}
	rowID, err := s.store.CreateSubmitted(s.ctx, c)
	s.Require().NoError(err)
	ref := claim.LedgerRef{Transition: claim.TransitionSubmit, TxHash: "0xsub", RecordedAt: s.now}
	s.Require().NoError(s.store.FinalizeSubmission(s.ctx, rowID, claimID, ref))
	c.ID = claimID
	return c
}

func (s *PostgresStoreSuite) TestSubmitAndReadBack() {
	s.submitted(4242, 500_000)

	got, err := s.store.GetByID(s.ctx, 4242)
	s.Require().NoError(err)
	s.Equal(id.ClaimID(4242), got.ID)
	s.Equal(claim.StatusSubmitted, got.Status)
	s.EqualValues(500_000, got.DeclaredAmount)
	s.Require().Len(got.LedgerRefs, 1)
	s.Equal(claim.TransitionSubmit, got.LedgerRefs[0].Transition)
	s.Nil(got.ApprovedAmount)
}

func (s *PostgresStoreSuite) TestGetUnknownClaim() {
	_, err := s.store.GetByID(s.ctx, 999)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateClaimIDConflicts() {
	s.submitted(4242, 100)

	c := &claim.Claim{
		PolicyNumber:   100,
		Claimant:       s.holder,
		Type:           id.ClaimTypeHealth,
		DeclaredAmount: 100,
		Status:         claim.StatusSubmitted,
		CreatedAt:      s.now,
	}
	rowID, err := s.store.CreateSubmitted(s.ctx, c)
	s.Require().NoError(err)

	ref := claim.LedgerRef{Transition: claim.TransitionSubmit, TxHash: "0xdup", RecordedAt: s.now}
	err = s.store.FinalizeSubmission(s.ctx, rowID, 4242, ref)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestRollbackLeavesNoRow() {
	tx, err := s.pg.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	ctx := txcontext.WithTx(s.ctx, tx)

	c := &claim.Claim{
		PolicyNumber:   100,
		Claimant:       s.holder,
		Type:           id.ClaimTypeHealth,
		DeclaredAmount: 100,
		Status:         claim.StatusSubmitted,
		CreatedAt:      s.now,
	}
	_, err = s.store.CreateSubmitted(ctx, c)
	s.Require().NoError(err)
	s.Require().NoError(tx.Rollback())

	var count int
	s.Require().NoError(s.pg.DB.QueryRowContext(s.ctx,
		"SELECT COUNT(*) FROM claims").Scan(&count))
	s.Zero(count)
}

func (s *PostgresStoreSuite) TestLifecycleTransitions() {
	s.submitted(4242, 500_000)

	verifyRef := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: "0xver", RecordedAt: s.now.Add(time.Minute)}
	s.Require().NoError(s.store.MarkProcessing(s.ctx, 4242, verifyRef, "verified"))

	settleRef := claim.LedgerRef{Transition: claim.TransitionSettle, TxHash: "0xpay", RecordedAt: s.now.Add(2 * time.Minute)}
	s.Require().NoError(s.store.MarkPaid(s.ctx, 4242, 400_000, settleRef))

	got, err := s.store.GetByID(s.ctx, 4242)
	s.Require().NoError(err)
	s.Equal(claim.StatusPaid, got.Status)
	s.Require().NotNil(got.ApprovedAmount)
	s.EqualValues(400_000, *got.ApprovedAmount)
	s.Len(got.LedgerRefs, 3)
	s.Equal("verified", got.Notes)
}

func (s *PostgresStoreSuite) TestTransitionGuardsCurrentState() {
	s.submitted(4242, 500_000)

	ref := claim.LedgerRef{Transition: claim.TransitionSettle, TxHash: "0xpay", RecordedAt: s.now}
	err := s.store.MarkPaid(s.ctx, 4242, 400_000, ref)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	got, err := s.store.GetByID(s.ctx, 4242)
	s.Require().NoError(err)
	s.Equal(claim.StatusSubmitted, got.Status)
	s.Len(got.LedgerRefs, 1, "a refused transition records no reference")
}

func (s *PostgresStoreSuite) TestSettlementUniquePerClaim() {
	s.submitted(4242, 500_000)

	st := claim.SettlementTransaction{
		ClaimID:   4242,
		Amount:    400_000,
		TxHash:    "0xpay",
		Status:    claim.SettlementCompleted,
		Type:      claim.SettlementTypePayout,
		CreatedAt: s.now,
	}
	s.Require().NoError(s.store.InsertSettlement(s.ctx, st))

	exists, err := s.store.SettlementExists(s.ctx, 4242)
	s.Require().NoError(err)
	s.True(exists)

	s.ErrorIs(s.store.InsertSettlement(s.ctx, st), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestCoverageConsumed() {
	s.submitted(1, 500_000)

	c2 := s.submitted(2, 300_000)
	ref := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: "0xv", RecordedAt: s.now}
	s.Require().NoError(s.store.MarkProcessing(s.ctx, c2.ID, ref, ""))
	payRef := claim.LedgerRef{Transition: claim.TransitionSettle, TxHash: "0xp", RecordedAt: s.now}
	s.Require().NoError(s.store.MarkPaid(s.ctx, c2.ID, 240_000, payRef))

	c3 := s.submitted(3, 200_000)
	rejRef := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: "0xr", RecordedAt: s.now}
	s.Require().NoError(s.store.MarkRejected(s.ctx, c3.ID, claim.StatusSubmitted, rejRef, "reverted"))

	// 500,000 declared in flight + 240,000 approved; the rejected claim
	// counts nothing.
	consumed, err := s.store.CoverageConsumed(s.ctx, 100,
		s.now.AddDate(0, -1, 0), s.now.AddDate(1, 0, 0))
	s.Require().NoError(err)
	s.EqualValues(740_000, consumed)
}

func (s *PostgresStoreSuite) TestListUnsettled() {
	s.submitted(1, 100)

	c2 := s.submitted(2, 100)
	ref := claim.LedgerRef{Transition: claim.TransitionVerify, TxHash: "0xv", RecordedAt: s.now.Add(time.Hour)}
	s.Require().NoError(s.store.MarkProcessing(s.ctx, c2.ID, ref, ""))

	stale, err := s.store.ListUnsettled(s.ctx, s.now.Add(30*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(id.ClaimID(1), stale[0].ID)

	all, err := s.store.ListUnsettled(s.ctx, s.now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal(id.ClaimID(1), all[0].ID, "oldest first")
}
