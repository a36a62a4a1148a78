package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"yardlink/internal/core"
	"yardlink/internal/types"
)

// ReviewService is the review surface this handler drives. Mirrors the
// concrete reviews.Service methods used here.
type ReviewService interface {
	Create(ctx context.Context, jobID string, reviewerID string, rating int, comment string) (*types.Review, error)
	PendingForCustomer(ctx context.Context, customerID string) ([]*types.JobRequest, error)
	ListForReviewee(ctx context.Context, revieweeID string) ([]*types.Review, error)
}

// CreateReviewRequest is the request body for POST /v1/jobs/{id}/reviews.
type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=2000"`
}

// ReviewHandler manages reviews and the customer trust gate readout.
type ReviewHandler struct {
	svc       ReviewService
	validator *core.Validator
	logger    *slog.Logger
}

// NewReviewHandler creates a ReviewHandler.
func NewReviewHandler(svc ReviewService, v *core.Validator, l *slog.Logger) *ReviewHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ReviewHandler{svc: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the review routes.
func (h *ReviewHandler) RegisterRoutes(r chi.Router) {
	r.With(core.RequireActor).Post("/jobs/{id}/reviews", h.Create)

	r.Route("/reviews", func(r chi.Router) {
		r.Use(core.RequireActor)
		r.With(core.RequireRole(types.RoleCustomer)).Get("/pending", h.Pending)
	})

	r.With(core.RequireActor).Get("/users/{id}/reviews", h.ListForUser)
}

// Create handles POST /v1/jobs/{id}/reviews. Either party of a
// completed job may review the other, once.
func (h *ReviewHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req CreateReviewRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	review, err := h.svc.Create(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Rating, req.Comment)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: review})
}

// Pending handles GET /v1/reviews/pending: the completed jobs the
// customer has not yet rated. A non-empty list is the blocking signal
// the client renders as the rating modal.
func (h *ReviewHandler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	list, err := h.svc.PendingForCustomer(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

// ListForUser handles GET /v1/users/{id}/reviews: the reviews a user
// has received.
func (h *ReviewHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListForReviewee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}
