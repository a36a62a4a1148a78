package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"yardlink/internal/core"
	"yardlink/internal/types"
)

// EligibilityChecker computes the provider gate summary. Implemented by
// eligibility.Service.
type EligibilityChecker interface {
	Check(ctx context.Context, providerID string) (types.EligibilityResult, error)
}

// ProviderStore is the provider sub-resource persistence surface.
// Mirrors the concrete db.ProviderRepository methods used here.
type ProviderStore interface {
	GetVerification(ctx context.Context, providerID string) (*types.ProviderVerification, error)
	SetVerificationStatus(ctx context.Context, providerID string, status types.VerificationStatus, reviewedBy string) error
	GetBanking(ctx context.Context, providerID string) (*types.ProviderBankingDetails, error)
	UpsertBanking(ctx context.Context, providerID string, bankName string, accountNumber types.SecretString) error
	SetBankingStatus(ctx context.Context, providerID string, status types.VerificationStatus) error
	GetProfile(ctx context.Context, providerID string) (*types.ProviderProfile, error)
	UpsertProfile(ctx context.Context, p *types.ProviderProfile) error
}

// PayoutHistory reads a provider's payout ledger. Implemented by
// db.PayoutRepository.
type PayoutHistory interface {
	ListByProvider(ctx context.Context, providerID string) ([]*types.ProviderPayout, error)
}

// SubmitBankingRequest is the request body for PUT /v1/providers/me/banking.
// The account number is write-only; it is never echoed back.
type SubmitBankingRequest struct {
	BankName      string `json:"bank_name" validate:"required,max=100"`
	AccountNumber string `json:"account_number" validate:"required,min=4,max=30"`
}

// UpdateProfileRequest is the request body for PUT /v1/providers/me/profile.
type UpdateProfileRequest struct {
	AvatarURL string `json:"avatar_url,omitempty" validate:"omitempty,url,max=500"`
	Bio       string `json:"bio,omitempty" validate:"max=2000"`
}

// SetVerificationRequest is the admin decision body for the ID and
// banking verification workflows.
type SetVerificationRequest struct {
	Status string `json:"status" validate:"required,oneof=pending approved rejected"`
}

// bankingStatusView is the customer-visible slice of the banking
// record. Account fields are stored but never returned.
type bankingStatusView struct {
	ProviderID string                   `json:"provider_id"`
	Status     types.VerificationStatus `json:"status"`
}

// ProviderHandler manages provider verification workflows, profile
// edits, the eligibility readout, and payout history.
type ProviderHandler struct {
	gates     EligibilityChecker
	store     ProviderStore
	payouts   PayoutHistory
	validator *core.Validator
	logger    *slog.Logger
}

// NewProviderHandler creates a ProviderHandler.
func NewProviderHandler(gates EligibilityChecker, store ProviderStore, payouts PayoutHistory, v *core.Validator, l *slog.Logger) *ProviderHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ProviderHandler{gates: gates, store: store, payouts: payouts, validator: v, logger: l}
}

// RegisterRoutes mounts the provider routes.
func (h *ProviderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/providers", func(r chi.Router) {
		r.Use(core.RequireActor)

		r.Route("/me", func(r chi.Router) {
			r.Use(core.RequireRole(types.RoleProvider))

			r.Get("/eligibility", h.MyEligibility)
			r.Get("/banking", h.MyBanking)
			r.Put("/banking", h.SubmitBanking)
			r.Get("/profile", h.MyProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Get("/payouts", h.MyPayouts)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Use(core.RequireRole(types.RoleAdmin))

			r.Get("/verification", h.GetVerification)
			r.Put("/verification", h.SetVerification)
			r.Put("/banking/status", h.SetBankingStatus)
		})
	})
}

// MyEligibility handles GET /v1/providers/me/eligibility.
func (h *ProviderHandler) MyEligibility(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	result, err := h.gates.Check(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// MyBanking handles GET /v1/providers/me/banking, returning only the
// workflow status.
func (h *ProviderHandler) MyBanking(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	banking, err := h.store.GetBanking(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: bankingStatusView{
		ProviderID: banking.ProviderID,
		Status:     banking.Status,
	}})
}

// SubmitBanking handles PUT /v1/providers/me/banking. A changed account
// resets the workflow to pending for re-verification.
func (h *ProviderHandler) SubmitBanking(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req SubmitBankingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.store.UpsertBanking(r.Context(), actor.ID, req.BankName, types.SecretString(req.AccountNumber)); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: bankingStatusView{
		ProviderID: actor.ID,
		Status:     types.VerificationPending,
	}})
}

// MyProfile handles GET /v1/providers/me/profile.
func (h *ProviderHandler) MyProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	profile, err := h.store.GetProfile(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}

// UpdateProfile handles PUT /v1/providers/me/profile.
func (h *ProviderHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req UpdateProfileRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile := &types.ProviderProfile{
		ProviderID: actor.ID,
		AvatarURL:  req.AvatarURL,
		Bio:        req.Bio,
	}
	if err := h.store.UpsertProfile(r.Context(), profile); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}

// MyPayouts handles GET /v1/providers/me/payouts: the provider's payout
// ledger, newest first.
func (h *ProviderHandler) MyPayouts(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	list, err := h.payouts.ListByProvider(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

// GetVerification handles GET /v1/providers/{id}/verification (admin).
func (h *ProviderHandler) GetVerification(w http.ResponseWriter, r *http.Request) {
	verification, err := h.store.GetVerification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: verification})
}

// SetVerification handles PUT /v1/providers/{id}/verification: the
// admin decision on ID verification.
func (h *ProviderHandler) SetVerification(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	var req SetVerificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	providerID := chi.URLParam(r, "id")
	if err := h.store.SetVerificationStatus(r.Context(), providerID, types.VerificationStatus(req.Status), actor.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	verification, err := h.store.GetVerification(r.Context(), providerID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: verification})
}

// SetBankingStatus handles PUT /v1/providers/{id}/banking/status: the
// admin decision on banking verification.
func (h *ProviderHandler) SetBankingStatus(w http.ResponseWriter, r *http.Request) {
	var req SetVerificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	providerID := chi.URLParam(r, "id")
	if err := h.store.SetBankingStatus(r.Context(), providerID, types.VerificationStatus(req.Status)); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: bankingStatusView{
		ProviderID: providerID,
		Status:     types.VerificationStatus(req.Status),
	}})
}
