package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"swiftclaim/internal/audit"
	"swiftclaim/internal/claim"
	"swiftclaim/internal/policy/validator"
	id "swiftclaim/pkg/domain"
	dErrors "swiftclaim/pkg/domain-errors"
	"swiftclaim/pkg/platform/httputil"
	"swiftclaim/pkg/requestcontext"
)

// Service defines the lifecycle operations the HTTP layer exposes.
type Service interface {
	Submit(ctx context.Context, req validator.Request) (*claim.Claim, error)
	Verify(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
	Settle(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
	Get(ctx context.Context, claimID id.ClaimID) (*claim.Claim, error)
	ListPending(ctx context.Context) ([]*claim.Claim, error)
	Trail(ctx context.Context, claimID id.ClaimID) ([]audit.Event, error)
}

// Handler wires claim endpoints to the lifecycle engine.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a claim handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts claim endpoints on the router. The router has already
// authenticated the request; role checks happen here.
func (h *Handler) Register(r chi.Router) {
	r.Post("/claims", h.HandleSubmit)
	r.Get("/claims/pending", h.HandleListPending)
	r.Get("/claims/{claimID}", h.HandleGet)
	r.Get("/claims/{claimID}/audit", h.HandleTrail)
	r.Post("/claims/{claimID}/verify", h.HandleVerify)
	r.Post("/claims/{claimID}/settle", h.HandleSettle)
}

// HandleSubmit handles POST /claims.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	claimant := requestcontext.UserID(ctx)
	if claimant.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.Decode[SubmitRequest](w, r, h.logger)
	if !ok {
		return
	}
	domainReq, err := req.ToDomain(claimant)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.Submit(ctx, domainReq)
	if err != nil {
		h.logger.WarnContext(ctx, "claim submission failed",
			"request_id", requestcontext.RequestID(ctx),
			"policy_number", req.PolicyNumber,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "claim submitted",
		"request_id", requestcontext.RequestID(ctx),
		"claim_id", c.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromClaim(c))
}

// HandleVerify handles POST /claims/{claimID}/verify. Insurer only.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "verify", h.service.Verify)
}

// HandleSettle handles POST /claims/{claimID}/settle. Insurer only.
func (h *Handler) HandleSettle(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "settle", h.service.Settle)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, id.ClaimID) (*claim.Claim, error)) {
	ctx := r.Context()
	if !h.requireInsurer(w, ctx) {
		return
	}
	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}

	c, err := op(ctx, claimID)
	if err != nil {
		h.logger.WarnContext(ctx, "claim transition failed",
			"request_id", requestcontext.RequestID(ctx),
			"operation", name,
			"claim_id", claimID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromClaim(c))
}

// HandleGet handles GET /claims/{claimID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromClaim(c))
}

// HandleTrail handles GET /claims/{claimID}/audit.
func (h *Handler) HandleTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, ok := h.claimID(w, r)
	if !ok {
		return
	}
	trail, err := h.service.Trail(ctx, claimID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromTrail(trail))
}

// HandleListPending handles GET /claims/pending. Insurer only.
func (h *Handler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireInsurer(w, ctx) {
		return
	}
	claims, err := h.service.ListPending(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromClaims(claims))
}

func (h *Handler) requireInsurer(w http.ResponseWriter, ctx context.Context) bool {
	if requestcontext.UserID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return false
	}
	if requestcontext.Role(ctx) != requestcontext.RoleInsurer {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insurer role required"))
		return false
	}
	return true
}

func (h *Handler) claimID(w http.ResponseWriter, r *http.Request) (id.ClaimID, bool) {
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid claim id"))
		return 0, false
	}
	return claimID, true
}
