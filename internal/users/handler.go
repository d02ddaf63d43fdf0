package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/gateway"
	"github.com/fleetflow/fleetflow/internal/platform/httpx"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
	"github.com/fleetflow/fleetflow/internal/rbac"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes. Reads on a specific user allow the
// subject themselves through even without the users.read grant.
func (h *Handler) MountRoutes(r chi.Router) {
	list := gateway.NewPolicy()
	list.Permission = rbac.PermUsersRead
	list.RateLimit = &ratelimit.Admin
	r.Get("/", h.pipeline.Wrap(list, h.list))

	get := gateway.NewPolicy()
	get.Permission = rbac.PermUsersRead
	get.AllowSelf = true
	get.OwnerParam = "userID"
	get.RateLimit = &ratelimit.Default
	r.Get("/{userID}", h.pipeline.Wrap(get, h.get))

	create := gateway.NewPolicy()
	create.Permission = rbac.PermUsersCreate
	create.RateLimit = &ratelimit.Admin
	create.Audit = &gateway.AuditSpec{Action: "users.create", Resource: "user"}
	r.Post("/", h.pipeline.Wrap(create, h.create))

	update := gateway.NewPolicy()
	update.Permission = rbac.PermUsersUpdate
	update.AllowSelf = true
	update.OwnerParam = "userID"
	update.RateLimit = &ratelimit.Default
	update.Audit = &gateway.AuditSpec{Action: "users.update", Resource: "user", IDParam: "userID"}
	r.Patch("/{userID}", h.pipeline.Wrap(update, h.update))

	setRole := gateway.NewPolicy()
	setRole.Permission = rbac.PermUsersUpdate
	setRole.RateLimit = &ratelimit.Admin
	setRole.Audit = &gateway.AuditSpec{Action: "users.set_role", Resource: "user", IDParam: "userID"}
	r.Put("/{userID}/role", h.pipeline.Wrap(setRole, h.setRole))

	remove := gateway.NewPolicy()
	remove.Permission = rbac.PermUsersDelete
	remove.RateLimit = &ratelimit.Admin
	remove.Audit = &gateway.AuditSpec{Action: "users.delete", Resource: "user", IDParam: "userID"}
	r.Delete("/{userID}", h.pipeline.Wrap(remove, h.remove))
}

type createRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=2"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"`
}

type updateRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=2"`
	Phone  *string `json:"phone" validate:"omitempty,e164"`
	Active *bool   `json:"active"`
}

type setRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) list(r *http.Request, _ *auth.Context) (any, error) {
	users, err := h.service.List(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{"users": users, "total": len(users)}, nil
}

func (h *Handler) get(r *http.Request, _ *auth.Context) (any, error) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		return nil, mapErr(err)
	}
	return user, nil
}

func (h *Handler) create(r *http.Request, authCtx *auth.Context) (any, error) {
	var req createRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(req.Role)
	if req.Role != "" && err != nil {
		return nil, gateway.NewValidation("unknown role")
	}
	user, err := h.service.Create(r.Context(), authCtx.Principal.Role, CreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Phone:    req.Phone,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return user, nil
}

func (h *Handler) update(r *http.Request, _ *auth.Context) (any, error) {
	var req updateRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	user, err := h.service.Update(r.Context(), chi.URLParam(r, "userID"), UpdateInput{
		Name:   req.Name,
		Phone:  req.Phone,
		Active: req.Active,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return user, nil
}

func (h *Handler) setRole(r *http.Request, authCtx *auth.Context) (any, error) {
	var req setRoleRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		return nil, gateway.NewValidation("unknown role")
	}
	user, err := h.service.SetRole(r.Context(), authCtx.Principal.Role, chi.URLParam(r, "userID"), role)
	if err != nil {
		return nil, mapErr(err)
	}
	return user, nil
}

func (h *Handler) remove(r *http.Request, _ *auth.Context) (any, error) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "userID")); err != nil {
		return nil, mapErr(err)
	}
	return map[string]string{"status": "deleted"}, nil
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
		return gateway.NewNotFound("user not found")
	case errors.Is(err, ErrEmailTaken):
		return gateway.NewConflict("email already registered")
	case errors.Is(err, ErrRoleNotAllowed):
		return gateway.NewForbidden()
	default:
		return err
	}
}
