package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"yardlink/internal/core"
	"yardlink/internal/types"
)

// autopayDateLayout is the calendar-date format for cut dates.
const autopayDateLayout = "2006-01-02"

// AutopayStore is the schedule persistence surface. Mirrors the
// concrete db.AutopayRepository methods used by this handler; schedule
// management is thin enough that no intermediate service earns its keep.
type AutopayStore interface {
	Create(ctx context.Context, s *types.AutopaySettings) error
	GetByID(ctx context.Context, id string, customerID string) (*types.AutopaySettings, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*types.AutopaySettings, error)
	Update(ctx context.Context, s *types.AutopaySettings) error
	SetEnabled(ctx context.Context, id string, customerID string, enabled bool) error
}

// AutopayScheduleRequest is the request body for creating or updating a
// schedule. Recurring days are constrained to 1..28 so every month has
// the day.
type AutopayScheduleRequest struct {
	LocationName           string `json:"location_name" validate:"required,max=100"`
	Frequency              string `json:"frequency" validate:"required,oneof=monthly bimonthly"`
	RecurringDay           int    `json:"recurring_day" validate:"required,min=1,max=28"`
	RecurringDay2          *int   `json:"recurring_day_2,omitempty" validate:"omitempty,min=1,max=28"`
	Location               string `json:"location" validate:"required,max=300"`
	Parish                 string `json:"parish" validate:"required,parish"`
	LawnSize               string `json:"lawn_size" validate:"required,lawn_size"`
	JobType                string `json:"job_type" validate:"required,max=100"`
	AdditionalRequirements string `json:"additional_requirements,omitempty" validate:"max=1000"`
}

// AutopayHandler manages a customer's recurring schedules.
type AutopayHandler struct {
	store     AutopayStore
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewAutopayHandler creates an AutopayHandler. now defaults to the real
// clock when nil.
func NewAutopayHandler(store AutopayStore, v *core.Validator, l *slog.Logger, now func() time.Time) *AutopayHandler {
	if l == nil {
		l = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &AutopayHandler{store: store, validator: v, logger: l, now: now}
}

// RegisterRoutes mounts the autopay routes. All schedule management is
// customer-side.
func (h *AutopayHandler) RegisterRoutes(r chi.Router) {
	r.Route("/autopay", func(r chi.Router) {
		r.Use(core.RequireActor)
		r.Use(core.RequireRole(types.RoleCustomer))

		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/", h.Update)
			r.Post("/enable", h.Enable)
			r.Post("/disable", h.Disable)
		})
	})
}

// Create handles POST /v1/autopay. Initial cut dates are the next
// calendar occurrence of each recurring day after today.
func (h *AutopayHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	req, err := h.decodeScheduleRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.now().UTC()
	schedule := &types.AutopaySettings{
		ID:                     "ap_" + uuid.NewString(),
		CustomerID:             actor.ID,
		LocationName:           req.LocationName,
		Enabled:                true,
		Frequency:              types.AutopayFrequency(req.Frequency),
		RecurringDay:           req.RecurringDay,
		RecurringDay2:          req.RecurringDay2,
		NextScheduledDate:      nextCutDate(now, req.RecurringDay),
		Location:               req.Location,
		Parish:                 types.Parish(req.Parish),
		LawnSize:               types.LawnSize(req.LawnSize),
		JobType:                req.JobType,
		AdditionalRequirements: req.AdditionalRequirements,
	}
	if req.RecurringDay2 != nil {
		d2 := nextCutDate(now, *req.RecurringDay2)
		schedule.NextScheduledDate2 = &d2
	}

	if err := h.store.Create(r.Context(), schedule); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: schedule})
}

// List handles GET /v1/autopay.
func (h *AutopayHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	list, err := h.store.ListByCustomer(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: list})
}

// Get handles GET /v1/autopay/{id}.
func (h *AutopayHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	schedule, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: schedule})
}

// Update handles PUT /v1/autopay/{id}. Editing a schedule recomputes
// its cut dates from the (possibly changed) recurring days; the
// enabled flag is only touched via the enable/disable endpoints.
func (h *AutopayHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, _ := types.GetActor(r.Context())

	req, err := h.decodeScheduleRequest(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	schedule, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.now().UTC()
	schedule.LocationName = req.LocationName
	schedule.Frequency = types.AutopayFrequency(req.Frequency)
	schedule.RecurringDay = req.RecurringDay
	schedule.RecurringDay2 = req.RecurringDay2
	schedule.NextScheduledDate = nextCutDate(now, req.RecurringDay)
	schedule.NextScheduledDate2 = nil
	if req.RecurringDay2 != nil {
		d2 := nextCutDate(now, *req.RecurringDay2)
		schedule.NextScheduledDate2 = &d2
	}
	schedule.Location = req.Location
	schedule.Parish = types.Parish(req.Parish)
	schedule.LawnSize = types.LawnSize(req.LawnSize)
	schedule.JobType = req.JobType
	schedule.AdditionalRequirements = req.AdditionalRequirements

	if err := h.store.Update(r.Context(), schedule); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: schedule})
}

// Enable handles POST /v1/autopay/{id}/enable.
func (h *AutopayHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable handles POST /v1/autopay/{id}/disable. Schedules are never
// physically deleted; disable is the terminal customer action.
func (h *AutopayHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *AutopayHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	actor, _ := types.GetActor(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.store.SetEnabled(r.Context(), id, actor.ID, enabled); err != nil {
		core.Error(w, r, err)
		return
	}

	schedule, err := h.store.GetByID(r.Context(), id, actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: schedule})
}

// decodeScheduleRequest decodes and validates the shared create/update
// body, including the cross-field bimonthly rules that validator tags
// cannot express.
func (h *AutopayHandler) decodeScheduleRequest(w http.ResponseWriter, r *http.Request) (*AutopayScheduleRequest, error) {
	var req AutopayScheduleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		return nil, err
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	if types.AutopayFrequency(req.Frequency) == types.FrequencyBimonthly {
		if req.RecurringDay2 == nil {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidDay,
				"bimonthly schedules require recurring_day_2",
				nil,
			)
		}
		if *req.RecurringDay2 == req.RecurringDay {
			return nil, types.NewAppError(
				types.ErrCodeValidationInvalidDay,
				"recurring_day_2 must differ from recurring_day",
				nil,
			)
		}
	} else if req.RecurringDay2 != nil {
		return nil, types.NewAppError(
			types.ErrCodeValidationInvalidDay,
			"recurring_day_2 is only valid for bimonthly schedules",
			nil,
		)
	}

	return &req, nil
}

// nextCutDate returns the next calendar occurrence of the given day of
// month strictly after today. Days are capped at 28, so no month-end
// clamp is needed here.
func nextCutDate(now time.Time, day int) string {
	candidate := time.Date(now.Year(), now.Month(), day, 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !candidate.After(today) {
		candidate = time.Date(now.Year(), now.Month()+1, day, 0, 0, 0, 0, time.UTC)
	}
	return candidate.Format(autopayDateLayout)
}
