package bookings

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/gateway"
	"github.com/fleetflow/fleetflow/internal/platform/httpx"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
	"github.com/fleetflow/fleetflow/internal/rbac"
)

// Handler manages booking endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pipeline  *gateway.Pipeline
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pipeline *gateway.Pipeline) *Handler {
	return &Handler{logger: logger, service: service, pipeline: pipeline, validator: validator.New()}
}

// MountRoutes registers booking routes. The per-user listing rides the
// ownership permission so customers reach their own bookings and
// nothing else.
func (h *Handler) MountRoutes(r chi.Router) {
	list := gateway.NewPolicy()
	list.Permission = rbac.PermBookingsRead
	list.RateLimit = &ratelimit.Default
	r.Get("/", h.pipeline.Wrap(list, h.list))

	listOwn := gateway.NewPolicy()
	listOwn.Permission = rbac.PermBookingsReadOwn
	listOwn.OwnerParam = "userID"
	listOwn.RequireOwnership = true
	listOwn.RateLimit = &ratelimit.Default
	r.Get("/user/{userID}", h.pipeline.Wrap(listOwn, h.listByUser))

	get := gateway.NewPolicy()
	get.Permission = rbac.PermBookingsRead
	get.RateLimit = &ratelimit.Default
	r.Get("/{bookingID}", h.pipeline.Wrap(get, h.get))

	create := gateway.NewPolicy()
	create.Permission = rbac.PermBookingsCreate
	create.RateLimit = &ratelimit.Default
	create.Audit = &gateway.AuditSpec{Action: "bookings.create", Resource: "booking"}
	r.Post("/", h.pipeline.Wrap(create, h.create))

	confirm := gateway.NewPolicy()
	confirm.Permission = rbac.PermBookingsUpdate
	confirm.RateLimit = &ratelimit.Default
	confirm.Audit = &gateway.AuditSpec{Action: "bookings.confirm", Resource: "booking", IDParam: "bookingID"}
	r.Post("/{bookingID}/confirm", h.pipeline.Wrap(confirm, h.confirm))

	cancel := gateway.NewPolicy()
	cancel.Permission = rbac.PermBookingsCancel
	cancel.RateLimit = &ratelimit.Default
	cancel.Audit = &gateway.AuditSpec{Action: "bookings.cancel", Resource: "booking", IDParam: "bookingID"}
	r.Post("/{bookingID}/cancel", h.pipeline.Wrap(cancel, h.cancel))
}

type createRequest struct {
	UserID    string    `json:"userId"`
	VehicleID string    `json:"vehicleId" validate:"required"`
	StartDate time.Time `json:"startDate" validate:"required"`
	EndDate   time.Time `json:"endDate" validate:"required"`
	Notes     string    `json:"notes" validate:"max=500"`
}

func (h *Handler) list(r *http.Request, _ *auth.Context) (any, error) {
	bookings, err := h.service.List(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookings": bookings, "total": len(bookings)}, nil
}

func (h *Handler) listByUser(r *http.Request, _ *auth.Context) (any, error) {
	bookings, err := h.service.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"bookings": bookings, "total": len(bookings)}, nil
}

func (h *Handler) get(r *http.Request, _ *auth.Context) (any, error) {
	booking, err := h.service.Get(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		return nil, mapErr(err)
	}
	return booking, nil
}

func (h *Handler) create(r *http.Request, authCtx *auth.Context) (any, error) {
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}

	// Customers always book for themselves, whatever the body says.
	userID := req.UserID
	if authCtx.Principal.Role == rbac.RoleCustomer || userID == "" {
		userID = authCtx.Principal.ID
	}

	booking, err := h.service.Create(r.Context(), CreateInput{
		UserID:    userID,
		VehicleID: req.VehicleID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Notes:     req.Notes,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return booking, nil
}

func (h *Handler) confirm(r *http.Request, _ *auth.Context) (any, error) {
	booking, err := h.service.Confirm(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		return nil, mapErr(err)
	}
	return booking, nil
}

func (h *Handler) cancel(r *http.Request, authCtx *auth.Context) (any, error) {
	booking, err := h.service.Cancel(r.Context(), authCtx.Principal.Role, authCtx.Principal.ID, chi.URLParam(r, "bookingID"))
	if err != nil {
		return nil, mapErr(err)
	}
	return booking, nil
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return gateway.NewValidation("malformed request body")
	}
	if err := h.validator.Struct(target); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			return gateway.NewValidation(errs[0].Field() + " failed " + errs[0].Tag() + " validation")
		}
		return gateway.NewValidation("invalid request")
	}
	return nil
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return gateway.NewNotFound("booking not found")
	case errors.Is(err, ErrInvalidDates):
		return gateway.NewValidation("startDate must precede endDate and lie in the future")
	case errors.Is(err, ErrNotCancellable):
		return gateway.NewConflict("booking is not in a cancellable state")
	case errors.Is(err, ErrInvalidTransition):
		return gateway.NewConflict("booking cannot move to that status")
	case errors.Is(err, ErrVehicleUnavailable):
		return gateway.NewConflict("vehicle is already reserved for this window")
	default:
		return err
	}
}
