package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"swiftclaim/internal/audit"
	auditstore "swiftclaim/internal/audit/store"
	"swiftclaim/internal/claim/service"
	"swiftclaim/internal/claim/store"
	"swiftclaim/internal/evidence/flight"
	"swiftclaim/internal/evidence/medical"
	"swiftclaim/internal/ledger"
	"swiftclaim/internal/policy"
	policystore "swiftclaim/internal/policy/store"
	"swiftclaim/internal/policy/validator"
	id "swiftclaim/pkg/domain"
	"swiftclaim/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	router  chi.Router
	now     time.Time
	holder  id.UserID
	insurer id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.holder = id.NewUserID()
	s.insurer = id.NewUserID()

	claims := store.NewMemory()
	policies := policystore.NewMemory()
	med := medical.NewMemory()
	flights := flight.NewMemory()

	policies.Put(&policy.Policy{
		Number:          100,
		HolderID:        s.holder,
		Type:            id.ClaimTypeHealth,
		Status:          policy.StatusActive,
		Coverage:        5_000_000,
		PerClaimCeiling: 1_000_000,
		CopayPercent:    20,
		PeriodStart:     s.now.AddDate(0, -1, 0),
		PeriodEnd:       s.now.AddDate(1, 0, 0),
		Health:          &policy.HealthTerms{},
	})
	med.Put(&medical.Record{RecordID: "MR-1", BillAmount: 2_000_000})

	v := validator.New(policies, claims, med, flights)
	recorder := audit.NewRecorder(auditstore.NewMemoryStore(), nil, slog.Default())
	svc := service.New(
		claims,
		store.NewMemoryTxRunner(claims),
		v,
		policies,
		ledger.NewFake(),
		recorder,
		nil,
		slog.Default(),
	)

	s.router = chi.NewRouter()
	New(svc, slog.Default()).Register(s.router)
}

func (s *HandlerSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *HandlerSuite) do(method, path string, body any, userID id.UserID, role string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)

	ctx := requestcontext.WithUserID(context.Background(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	ctx = requestcontext.WithTime(ctx, s.now)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) submitBody() SubmitRequest {
	return SubmitRequest{
		PolicyNumber:    100,
		ClaimType:       "health",
		Amount:          500_000,
		MedicalRecordID: "MR-1",
		Treatment:       "medicine",
	}
}

func (s *HandlerSuite) submitClaim() ClaimResponse {
	rec := s.do(http.MethodPost, "/claims", s.submitBody(), s.holder, requestcontext.RolePolicyholder)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp ClaimResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *HandlerSuite) TestSubmit() {
	s.Run("creates a claim", func() {
		resp := s.submitClaim()
		s.NotZero(resp.ClaimID)
		s.Equal("submitted", resp.Status)
		s.Len(resp.LedgerRefs, 1)
	})

	s.Run("rejects malformed body", func() {
		rec := s.do(http.MethodPost, "/claims", map[string]any{"policy_number": "not-a-number"}, s.holder, requestcontext.RolePolicyholder)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("requires authentication", func() {
		rec := s.do(http.MethodPost, "/claims", s.submitBody(), id.UserID{}, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("maps validation rejection to 422 with discrete reason", func() {
		body := s.submitBody()
		body.Amount = 2_000_000
		rec := s.do(http.MethodPost, "/claims", body, s.holder, requestcontext.RolePolicyholder)

		s.Equal(http.StatusUnprocessableEntity, rec.Code)
		var envelope map[string]string
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
		s.Equal("exceeds_per_claim_cap", envelope["error"])
	})
}

func (s *HandlerSuite) TestVerifyAndSettle() {
	s.Run("insurer verifies then settles", func() {
		c := s.submitClaim()

		rec := s.do(http.MethodPost, "/claims/"+claimPath(c)+"/verify", nil, s.insurer, requestcontext.RoleInsurer)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do(http.MethodPost, "/claims/"+claimPath(c)+"/settle", nil, s.insurer, requestcontext.RoleInsurer)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		var resp ClaimResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("paid", resp.Status)
		s.Require().NotNil(resp.ApprovedAmount)
		s.Equal(int64(400_000), *resp.ApprovedAmount)
	})

	s.Run("policyholder cannot verify", func() {
		c := s.submitClaim()
		rec := s.do(http.MethodPost, "/claims/"+claimPath(c)+"/verify", nil, s.holder, requestcontext.RolePolicyholder)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("settle before verify maps to 409", func() {
		c := s.submitClaim()
		rec := s.do(http.MethodPost, "/claims/"+claimPath(c)+"/settle", nil, s.insurer, requestcontext.RoleInsurer)

		s.Equal(http.StatusConflict, rec.Code)
		var envelope map[string]string
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &envelope))
		s.Equal("not_verified", envelope["error"])
	})

	s.Run("invalid claim id is a bad request", func() {
		rec := s.do(http.MethodPost, "/claims/abc/verify", nil, s.insurer, requestcontext.RoleInsurer)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestReads() {
	s.Run("policyholder reads own claim", func() {
		c := s.submitClaim()
		rec := s.do(http.MethodGet, "/claims/"+claimPath(c), nil, s.holder, requestcontext.RolePolicyholder)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("other policyholder gets 403", func() {
		c := s.submitClaim()
		rec := s.do(http.MethodGet, "/claims/"+claimPath(c), nil, id.NewUserID(), requestcontext.RolePolicyholder)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("pending queue requires insurer role", func() {
		rec := s.do(http.MethodGet, "/claims/pending", nil, s.holder, requestcontext.RolePolicyholder)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("pending queue lists submitted claims", func() {
		s.submitClaim()
		rec := s.do(http.MethodGet, "/claims/pending", nil, s.insurer, requestcontext.RoleInsurer)
		s.Require().Equal(http.StatusOK, rec.Code)

		var claims []ClaimResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &claims))
		s.Len(claims, 1)
	})

	s.Run("audit trail is readable by the claimant", func() {
		c := s.submitClaim()
		rec := s.do(http.MethodGet, "/claims/"+claimPath(c)+"/audit", nil, s.holder, requestcontext.RolePolicyholder)
		s.Require().Equal(http.StatusOK, rec.Code)

		var trail []AuditEventResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &trail))
		s.Require().Len(trail, 1)
		s.Equal("claim_submitted", trail[0].Action)
	})
}

func claimPath(c ClaimResponse) string {
	return id.ClaimID(c.ClaimID).String()
}
