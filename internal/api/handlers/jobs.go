// Package handlers contains the HTTP handler implementations for the
// YardLink API. Handlers depend on narrow, locally defined service
// interfaces so tests can inject fakes without touching the concrete
// services.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"yardlink/internal/core"
	"yardlink/internal/jobs"
	"yardlink/internal/types"
)

// JobService is the lifecycle surface the job handler drives.
// Mirrors the concrete jobs.Service methods used here.
type JobService interface {
	Create(ctx context.Context, in jobs.CreateJobInput) (*types.JobRequest, error)
	Get(ctx context.Context, jobID string, actor types.Actor) (*types.JobRequest, error)
	Withdraw(ctx context.Context, jobID string, customerID string) error
	ListOpen(ctx context.Context, providerID string, parish types.Parish, limit int) ([]*types.JobRequest, types.EligibilityResult, error)
	ListForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error)
	ListForProvider(ctx context.Context, providerID string) ([]*types.JobRequest, error)
	Propose(ctx context.Context, jobID string, providerID string, message string) (*types.Proposal, error)
	ListProposals(ctx context.Context, jobID string, actor types.Actor) ([]*types.Proposal, error)
	Accept(ctx context.Context, jobID string, providerID string) (*types.JobRequest, error)
	ProviderComplete(ctx context.Context, jobID string, providerID string) (*types.JobRequest, error)
	CustomerConfirm(ctx context.Context, jobID string, customerID string) (*types.JobRequest, error)
	FileDispute(ctx context.Context, jobID string, customerID string, reason string) (*types.Dispute, error)
	ResolveDispute(ctx context.Context, disputeID string, actor types.Actor, approve bool) (*types.Dispute, error)
}

// PendingReviewLookup is the customer trust gate consulted before a new
// job may be opened. Implemented by reviews.Service.
type PendingReviewLookup interface {
	PendingForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error)
}

// CreateJobRequest is the request body for POST /v1/jobs.
type CreateJobRequest struct {
	Title                  string   `json:"title" validate:"required,max=200"`
	Description            string   `json:"description" validate:"max=2000"`
	Location               string   `json:"location" validate:"required,max=300"`
	Parish                 string   `json:"parish" validate:"required,parish"`
	LawnSize               string   `json:"lawn_size" validate:"required,lawn_size"`
	AdditionalRequirements string   `json:"additional_requirements,omitempty" validate:"max=1000"`
	PreferredDate          string   `json:"preferred_date,omitempty"`
	PreferredTime          string   `json:"preferred_time,omitempty" validate:"max=50"`
	CustomerOffer          *float64 `json:"customer_offer,omitempty" validate:"omitempty,gt=0"`
}

// ProposeRequest is the request body for POST /v1/jobs/{id}/proposals.
// The body is optional; an interest ping with no message is fine.
type ProposeRequest struct {
	Message string `json:"message,omitempty" validate:"max=1000"`
}

// FileDisputeRequest is the request body for POST /v1/jobs/{id}/dispute.
type FileDisputeRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// ResolveDisputeRequest is the request body for POST /v1/disputes/{id}/resolve.
type ResolveDisputeRequest struct {
	Approve bool `json:"approve"`
}

// OpenJobsResponse pairs the browse list with the caller's eligibility
// summary so the client can surface the profile-completeness prompt.
type OpenJobsResponse struct {
	Jobs        []*types.JobRequest     `json:"jobs"`
	Eligibility types.EligibilityResult `json:"eligibility"`
}

// JobHandler manages job request CRUD and lifecycle transitions.
type JobHandler struct {
	svc       JobService
	pending   PendingReviewLookup
	validator *core.Validator
	logger    *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(svc JobService, pending PendingReviewLookup, v *core.Validator, l *slog.Logger) *JobHandler {
	if l == nil {
		l = slog.Default()
	}
	return &JobHandler{svc: svc, pending: pending, validator: v, logger: l}
}

// RegisterRoutes mounts the job routes.
func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Use(core.RequireActor)

		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/open", h.ListOpen)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Delete("/", h.Withdraw)
			r.Get("/proposals", h.ListProposals)
			r.With(core.RequireRole(types.RoleProvider)).Post("/proposals", h.Propose)
			r.With(core.RequireRole(types.RoleProvider)).Post("/accept", h.Accept)
			r.With(core.RequireRole(types.RoleProvider)).Post("/complete", h.ProviderComplete)
			r.With(core.RequireRole(types.RoleCustomer)).Post("/confirm", h.CustomerConfirm)
			r.With(core.RequireRole(types.RoleCustomer)).Post("/dispute", h.FileDispute)
		})
	})

	r.Route("/disputes", func(r chi.Router) {
		r.Use(core.RequireActor)
		r.With(core.RequireRole(types.RoleAdmin)).Post("/{id}/resolve", h.ResolveDispute)
	})
}

// Create handles POST /v1/jobs. A customer with unreviewed completed
// jobs is blocked until each gets a rating; the blocking list rides in
// the error details.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req CreateJobRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	pending, err := h.pending.PendingForCustomer(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if len(pending) > 0 {
		jobIDs := make([]string, len(pending))
		for i, j := range pending {
			jobIDs[i] = j.ID
		}
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodePendingReviewsOutstanding,
			"completed jobs must be reviewed before opening a new request",
			nil,
			map[string]any{"pending_job_ids": jobIDs},
		))
		return
	}

	job, err := h.svc.Create(r.Context(), jobs.CreateJobInput{
		CustomerID:             actor.ID,
		Title:                  req.Title,
		Description:            req.Description,
		Location:               req.Location,
		Parish:                 types.Parish(req.Parish),
		LawnSize:               types.LawnSize(req.LawnSize),
		AdditionalRequirements: req.AdditionalRequirements,
		PreferredDate:          req.PreferredDate,
		PreferredTime:          req.PreferredTime,
		CustomerOffer:          req.CustomerOffer,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: job})
}

// List handles GET /v1/jobs: the actor's own jobs. Customers get the
// jobs they opened; providers get the jobs they accepted.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var (
		list []*types.JobRequest
		err  error
	)
	if actor.Role == types.RoleProvider {
		list, err = h.svc.ListForProvider(r.Context(), actor.ID)
	} else {
		list, err = h.svc.ListForCustomer(r.Context(), actor.ID)
	}
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

// ListOpen handles GET /v1/jobs/open?parish=...&limit=... for
// providers browsing the board. Browsing is never blocked by the hard
// gates; the eligibility summary rides along for the client.
func (h *JobHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	parish := types.Parish(r.URL.Query().Get("parish"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidJSON,
				"limit must be an integer between 1 and 200",
				nil,
			))
			return
		}
		limit = n
	}

	list, elig, err := h.svc.ListOpen(r.Context(), actor.ID, parish, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: OpenJobsResponse{
		Jobs:        list,
		Eligibility: elig,
	}})
}

// Get handles GET /v1/jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// Withdraw handles DELETE /v1/jobs/{id}: a customer removing their own
// still-open, unclaimed, unpaid job.
func (h *JobHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	if err := h.svc.Withdraw(r.Context(), chi.URLParam(r, "id"), actor.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Propose handles POST /v1/jobs/{id}/proposals.
func (h *JobHandler) Propose(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req ProposeRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	proposal, err := h.svc.Propose(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Message)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: proposal})
}

// ListProposals handles GET /v1/jobs/{id}/proposals.
func (h *JobHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	list, err := h.svc.ListProposals(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

// Accept handles POST /v1/jobs/{id}/accept.
func (h *JobHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.Accept(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// ProviderComplete handles POST /v1/jobs/{id}/complete.
func (h *JobHandler) ProviderComplete(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.ProviderComplete(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// CustomerConfirm handles POST /v1/jobs/{id}/confirm.
func (h *JobHandler) CustomerConfirm(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.CustomerConfirm(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// FileDispute handles POST /v1/jobs/{id}/dispute.
func (h *JobHandler) FileDispute(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req FileDisputeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	dispute, err := h.svc.FileDispute(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Reason)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: dispute})
}

// ResolveDispute handles POST /v1/disputes/{id}/resolve (admin only).
func (h *JobHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req ResolveDisputeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	dispute, err := h.svc.ResolveDispute(r.Context(), chi.URLParam(r, "id"), actor, req.Approve)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: dispute})
}
