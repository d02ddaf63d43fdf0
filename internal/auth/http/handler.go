package authhttp

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fleetflow/fleetflow/internal/audit"
	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/gateway"
	"github.com/fleetflow/fleetflow/internal/platform/httpx"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *auth.Service
	pipeline  *gateway.Pipeline
	audit     *audit.Logger
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *auth.Service, pipeline *gateway.Pipeline, auditLog *audit.Logger) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		pipeline:  pipeline,
		audit:     auditLog,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. Token issuance
// endpoints run unauthenticated under the tight auth rate preset.
func (h *Handler) MountRoutes(r chi.Router) {
	public := gateway.NewPolicy()
	public.RequireAuth = false
	public.RateLimit = &ratelimit.Auth

	r.Post("/login", h.pipeline.Wrap(public, h.handleLogin))
	r.Post("/refresh", h.pipeline.Wrap(public, h.handleRefresh))
	r.Post("/logout", h.pipeline.Wrap(public, h.handleLogout))

	authed := gateway.NewPolicy()
	authed.RateLimit = &ratelimit.Default
	r.Get("/me", h.pipeline.Wrap(authed, h.handleMe))
	r.Post("/revoke-all", h.pipeline.Wrap(authed, h.handleRevokeAll))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
	User         *auth.Principal `json:"user,omitempty"`
}

func (h *Handler) handleLogin(r *http.Request, _ *auth.Context) (any, error) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}

	ip := h.clientIP(r)
	pair, principal, err := h.service.Login(r.Context(), req.Email, req.Password, ip, r.UserAgent())
	if err != nil {
		return nil, err
	}

	h.audit.Record(r.Context(), audit.Record{
		ActorID:   principal.ID,
		Action:    "auth.login",
		Resource:  "session",
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
	return tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, User: principal}, nil
}

func (h *Handler) handleRefresh(r *http.Request, _ *auth.Context) (any, error) {
	var req refreshRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken, h.clientIP(r), r.UserAgent())
	if err != nil {
		return nil, err
	}
	return tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (h *Handler) handleLogout(r *http.Request, _ *auth.Context) (any, error) {
	var req refreshRequest
	if err := h.decode(r, &req); err != nil {
		return nil, err
	}
	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		return nil, err
	}
	return map[string]string{"status": "logged_out"}, nil
}

func (h *Handler) handleMe(_ *http.Request, authCtx *auth.Context) (any, error) {
	return authCtx.Principal, nil
}

func (h *Handler) handleRevokeAll(r *http.Request, authCtx *auth.Context) (any, error) {
	if err := h.service.RevokeAll(r.Context(), authCtx.Principal.ID); err != nil {
		return nil, err
	}
	h.audit.Record(r.Context(), audit.Record{
		ActorID:   authCtx.Principal.ID,
		Action:    "auth.revoke_all",
		Resource:  "session",
		IP:        h.clientIP(r),
		UserAgent: r.UserAgent(),
	})
	return map[string]string{"status": "revoked"}, nil
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return gateway.NewValidation("malformed request body")
	}
	if err := h.validator.Struct(target); err != nil {
		return gateway.NewValidation(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return errs[0].Field() + " failed " + errs[0].Tag() + " validation"
	}
	return "invalid request"
}

func (h *Handler) clientIP(r *http.Request) string {
	return ratelimit.ClientKey(r, "", h.pipeline.TrustProxy)
}
