// Package gateway composes the security pipeline every inbound request
// passes through: rate limiting, authentication, authorization, the
// business handler, output sanitization and the uniform envelope. Each
// stage short-circuits straight to the error response; later stages never
// run after a denial.
package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"

	"github.com/fleetflow/fleetflow/internal/audit"
	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/observability"
	"github.com/fleetflow/fleetflow/internal/platform/httpx"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
	"github.com/fleetflow/fleetflow/internal/rbac"
	"github.com/fleetflow/fleetflow/internal/sanitize"
)

// HandlerFunc is a business handler running inside the pipeline. authCtx
// is nil when the policy does not require authentication.
type HandlerFunc func(r *http.Request, authCtx *auth.Context) (any, error)

// AuditSpec asks the pipeline to record an audit entry when the handler
// succeeds. IDParam names the chi route param carrying the resource id.
type AuditSpec struct {
	Action   string
	Resource string
	IDParam  string
}

// Policy declares the security requirements of one route.
type Policy struct {
	// Permission gates the route through the registry; empty skips
	// authorization.
	Permission rbac.Permission
	// RateLimit, when set, is checked before any other work happens.
	RateLimit *ratelimit.Config
	// RequireAuth is on for every policy built via NewPolicy. Routes that
	// serve unauthenticated callers (login, refresh) switch it off
	// explicitly.
	RequireAuth bool
	// AllowSelf admits the owner of the target resource regardless of
	// the permission's role set.
	AllowSelf bool
	// RequireOwnership fails closed when the route cannot resolve an
	// owner for the target resource.
	RequireOwnership bool
	// OwnerParam names the chi route param holding the owning user id.
	// Ownership is never guessed from parameter names.
	OwnerParam string
	// Audit, when set, records the operation after a successful handler.
	Audit *AuditSpec
}

// NewPolicy returns the baseline policy: authentication required,
// everything else opt-in.
func NewPolicy() Policy {
	return Policy{RequireAuth: true}
}

// Pipeline wires the security components around business handlers.
type Pipeline struct {
	Logger        *slog.Logger
	Limiter       *ratelimit.Limiter
	Authenticator *auth.Authenticator
	Authorizer    *rbac.Authorizer
	Audit         *audit.Logger
	Metrics       *observability.Metrics
	// Production suppresses stack detail in error envelopes.
	Production bool
	// TrustProxy lets rate-limit keys and audit IPs honor forwarding
	// headers; disable without a trusted proxy boundary.
	TrustProxy bool
}

// Wrap builds the secured http.HandlerFunc for one route.
func (p *Pipeline) Wrap(policy Policy, handler HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if policy.RateLimit != nil {
			key := ratelimit.ClientKey(r, "", p.TrustProxy)
			if err := p.Limiter.Check(r.Context(), key, *policy.RateLimit); err != nil {
				p.deny(w, r, observability.StageRateLimit, err)
				return
			}
		}

		var authCtx *auth.Context
		if policy.RequireAuth {
			resolved, err := p.Authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				p.deny(w, r, observability.StageAuth, err)
				return
			}
			authCtx = resolved
		}

		if policy.Permission != "" && authCtx != nil {
			ownerID := ""
			if policy.OwnerParam != "" {
				ownerID = chi.URLParam(r, policy.OwnerParam)
			}
			err := p.Authorizer.Authorize(
				authCtx.Principal.Role, authCtx.Principal.ID,
				policy.Permission, ownerID,
				rbac.Options{AllowSelf: policy.AllowSelf, RequireOwnership: policy.RequireOwnership},
			)
			if err != nil {
				p.deny(w, r, observability.StageAuthz, err)
				return
			}
		}

		result, err := p.invoke(r, authCtx, handler)
		if err != nil {
			p.fail(w, r, err)
			return
		}

		if policy.Audit != nil && authCtx != nil {
			resourceID := ""
			if policy.Audit.IDParam != "" {
				resourceID = chi.URLParam(r, policy.Audit.IDParam)
			}
			p.Audit.Record(r.Context(), audit.Record{
				ActorID:    authCtx.Principal.ID,
				Action:     policy.Audit.Action,
				Resource:   policy.Audit.Resource,
				ResourceID: resourceID,
				IP:         ratelimit.ClientKey(r, "", p.TrustProxy),
				UserAgent:  r.UserAgent(),
			})
		}

		data := result
		if authCtx != nil {
			data = sanitize.Output(result, authCtx.Principal.Role)
		}
		httpx.Success(w, http.StatusOK, data)
	}
}

// invoke runs the handler inside the pipeline's error boundary.
func (p *Pipeline) invoke(r *http.Request, authCtx *auth.Context, handler HandlerFunc) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			if p.Logger != nil {
				p.Logger.Error("handler panic",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec))
			}
			err = &panicError{value: rec, stack: stack}
		}
	}()
	return handler(r, authCtx)
}

func (p *Pipeline) deny(w http.ResponseWriter, r *http.Request, stage string, err error) {
	p.Metrics.RecordDenial(stage)
	if p.Logger != nil {
		p.Logger.Warn("request denied",
			slog.String("stage", stage),
			slog.String("path", r.URL.Path))
	}
	p.fail(w, r, err)
}

func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := Classify(err)
	if apiErr.Status >= http.StatusInternalServerError && p.Logger != nil {
		p.Logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	body := httpx.ErrorBody{Code: apiErr.Code, Message: apiErr.Message}
	if !p.Production {
		body.Stack = stackDetail(err)
	}
	httpx.Fail(w, apiErr.Status, body)
}

// stackDetail extracts debugging detail for non-production envelopes.
func stackDetail(err error) string {
	var panicked *panicError
	if errors.As(err, &panicked) {
		return string(panicked.stack)
	}
	if Classify(err).Status >= http.StatusInternalServerError {
		return err.Error()
	}
	return ""
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
