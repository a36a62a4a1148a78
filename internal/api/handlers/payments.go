package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"yardlink/internal/core"
	"yardlink/internal/types"
)

// maxWebhookBodySize caps gateway webhook payloads. Stripe events are
// small; anything larger is not ours.
const maxWebhookBodySize = 256 * 1024

// PaymentService is the reconciler surface the payment handler drives.
// Mirrors the concrete payments.Reconciler methods used here.
type PaymentService interface {
	StartCheckout(ctx context.Context, jobID string, customerID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
	PollAfterRedirect(ctx context.Context, jobID string, customerID string) (*types.JobRequest, error)
	SubmitManualReference(ctx context.Context, jobID string, customerID string, reference string) (*types.JobRequest, error)
	ConfirmManual(ctx context.Context, jobID string, providerID string) (*types.JobRequest, error)
	Simulate(ctx context.Context, jobID string, customerID string) (*types.JobRequest, error)
}

// CheckoutResponse carries the hosted payment page URL.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// ManualPaymentRequest is the request body for the manual-reference path.
type ManualPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=200"`
}

// PaymentHandler manages the payment reconciliation endpoints.
type PaymentHandler struct {
	svc       PaymentService
	validator *core.Validator
	logger    *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(svc PaymentService, v *core.Validator, l *slog.Logger) *PaymentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PaymentHandler{svc: svc, validator: v, logger: l}
}

// RegisterRoutes mounts the payment routes. The webhook endpoint is
// deliberately outside RequireActor: the gateway authenticates with its
// signature header, not an upstream identity.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/webhook", h.Webhook)

	r.Route("/jobs/{id}/payment", func(r chi.Router) {
		r.Use(core.RequireActor)

		r.With(core.RequireRole(types.RoleCustomer)).Post("/checkout", h.StartCheckout)
		r.With(core.RequireRole(types.RoleCustomer)).Get("/status", h.PollStatus)
		r.With(core.RequireRole(types.RoleCustomer)).Post("/manual", h.SubmitManual)
		r.With(core.RequireRole(types.RoleProvider)).Post("/confirm", h.ConfirmManual)
		r.With(core.RequireRole(types.RoleCustomer)).Post("/simulate", h.Simulate)
	})
}

// StartCheckout handles POST /v1/jobs/{id}/payment/checkout.
func (h *PaymentHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	url, err := h.svc.StartCheckout(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CheckoutResponse{CheckoutURL: url}})
}

// Webhook handles POST /v1/payments/webhook: the authoritative writer
// for the card path. Signature failures are 401; everything verified is
// acknowledged with 200 so the gateway stops redelivering.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read webhook payload",
			err,
		))
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"received": true}})
}

// PollStatus handles GET /v1/jobs/{id}/payment/status after the
// customer returns from the hosted page. A still-pending verification
// surfaces as 202 via the error mapping; the poll itself never mutates.
func (h *PaymentHandler) PollStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.PollAfterRedirect(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// SubmitManual handles POST /v1/jobs/{id}/payment/manual.
func (h *PaymentHandler) SubmitManual(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req ManualPaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	job, err := h.svc.SubmitManualReference(r.Context(), chi.URLParam(r, "id"), actor.ID, req.Reference)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// ConfirmManual handles POST /v1/jobs/{id}/payment/confirm: the
// accepted provider attesting that a manually referenced payment
// arrived.
func (h *PaymentHandler) ConfirmManual(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.ConfirmManual(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}

// Simulate handles POST /v1/jobs/{id}/payment/simulate. Rejected in
// production configuration by the reconciler.
func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	job, err := h.svc.Simulate(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: job})
}
