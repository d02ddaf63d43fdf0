package authhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetflow/fleetflow/internal/audit"
	"github.com/fleetflow/fleetflow/internal/auth"
	"github.com/fleetflow/fleetflow/internal/gateway"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
	"github.com/fleetflow/fleetflow/internal/rbac"
	_ "github.com/fleetflow/fleetflow/testing"
)

type memPrincipals struct {
	accounts map[string]auth.Account
}

func (m *memPrincipals) GetByID(_ context.Context, id string) (*auth.Principal, error) {
	for _, account := range m.accounts {
		if account.ID == id {
			principal := account.Principal
			return &principal, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memPrincipals) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	if account, ok := m.accounts[email]; ok {
		return &account, nil
	}
	return nil, auth.ErrNotFound
}

type memSessions struct {
	byToken map[string]auth.Session
}

func (m *memSessions) Create(_ context.Context, session auth.Session) error {
	m.byToken[session.RefreshToken] = session
	return nil
}

func (m *memSessions) GetByRefreshToken(_ context.Context, token string) (*auth.Session, error) {
	session, ok := m.byToken[token]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return nil, auth.ErrNotFound
	}
	return &session, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	for token, session := range m.byToken {
		if session.ID == id {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memSessions) DeleteByUser(_ context.Context, userID string) error {
	for token, session := range m.byToken {
		if session.UserID == userID {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for token, session := range m.byToken {
		if session.ExpiresAt.Before(before) {
			delete(m.byToken, token)
			n++
		}
	}
	return n, nil
}

type memAudit struct {
	records []audit.Record
}

func (m *memAudit) Append(_ context.Context, record audit.Record) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memAudit) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func newTestRouter(t *testing.T) (http.Handler, *memSessions, *memAudit, *audit.Logger) {
	t.Helper()

	hasher := auth.BcryptHasher{Cost: 4}
	hash, err := hasher.Hash("correct-horse")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	principals := &memPrincipals{accounts: map[string]auth.Account{
		"driver@fleetflow.test": {
			Principal:    auth.Principal{ID: "u-1", Email: "driver@fleetflow.test", Name: "Driver One", Role: rbac.RoleStaff, Active: true},
			PasswordHash: hash,
		},
	}}
	sessions := &memSessions{byToken: map[string]auth.Session{}}
	auditStore := &memAudit{}
	auditLog := audit.NewLogger(auditStore, nil, time.Second)

	tokens, err := auth.NewJWTTokenService("access", "refresh", 15*time.Minute, 168*time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	registry, err := rbac.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	service := auth.NewService(principals, sessions, tokens, hasher, nil, 168*time.Hour)
	pipeline := &gateway.Pipeline{
		Limiter:       ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil),
		Authenticator: auth.NewAuthenticator(tokens, principals, nil),
		Authorizer:    rbac.NewAuthorizer(registry),
		Audit:         auditLog,
	}
	handler := NewHandler(nil, service, pipeline, auditLog)

	router := chi.NewRouter()
	router.Route("/auth", handler.MountRoutes)
	return router, sessions, auditStore, auditLog
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestLoginIssuesTokens(t *testing.T) {
	router, sessions, auditStore, auditLog := newTestRouter(t)

	res := postJSON(t, router, "/auth/login", `{"email":"driver@fleetflow.test","password":"correct-horse"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
			User         struct {
				ID   string `json:"id"`
				Role string `json:"role"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !body.Success || body.Data.AccessToken == "" || body.Data.RefreshToken == "" {
		t.Fatalf("incomplete token response: %+v", body)
	}
	if body.Data.User.ID != "u-1" || body.Data.User.Role != "STAFF" {
		t.Fatalf("unexpected user payload: %+v", body.Data.User)
	}
	if _, err := sessions.GetByRefreshToken(context.Background(), body.Data.RefreshToken); err != nil {
		t.Fatalf("session not registered: %v", err)
	}

	auditLog.Wait()
	if len(auditStore.records) != 1 || auditStore.records[0].Action != "auth.login" {
		t.Fatalf("expected one login audit record, got %+v", auditStore.records)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router, _, auditStore, auditLog := newTestRouter(t)

	res := postJSON(t, router, "/auth/login", `{"email":"driver@fleetflow.test","password":"wrong-password"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "UNAUTHORIZED") {
		t.Fatalf("expected UNAUTHORIZED code, got %s", res.Body.String())
	}

	auditLog.Wait()
	if len(auditStore.records) != 0 {
		t.Fatalf("failed login must not be audited as success: %+v", auditStore.records)
	}
}

func TestLoginValidatesBody(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	res := postJSON(t, router, "/auth/login", `{"email":"not-an-email","password":"short"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("expected VALIDATION_ERROR code, got %s", res.Body.String())
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	router, sessions, _, _ := newTestRouter(t)

	res := postJSON(t, router, "/auth/login", `{"email":"driver@fleetflow.test","password":"correct-horse"}`)
	var login struct {
		Data struct {
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	res = postJSON(t, router, "/auth/refresh", `{"refreshToken":"`+login.Data.RefreshToken+`"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var refreshed struct {
		Data struct {
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &refreshed); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	if refreshed.Data.RefreshToken == login.Data.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}
	if _, err := sessions.GetByRefreshToken(context.Background(), login.Data.RefreshToken); err == nil {
		t.Fatal("old session must be revoked after rotation")
	}
}

func TestMeRequiresToken(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestMeReturnsPrincipal(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	res := postJSON(t, router, "/auth/login", `{"email":"driver@fleetflow.test","password":"correct-horse"}`)
	var login struct {
		Data struct {
			AccessToken string `json:"accessToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.AccessToken)
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), `"driver@fleetflow.test"`) {
		t.Fatalf("expected principal email in body, got %s", res.Body.String())
	}
}

func TestLogoutDropsSession(t *testing.T) {
	router, sessions, _, _ := newTestRouter(t)

	res := postJSON(t, router, "/auth/login", `{"email":"driver@fleetflow.test","password":"correct-horse"}`)
	var login struct {
		Data struct {
			RefreshToken string `json:"refreshToken"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	res = postJSON(t, router, "/auth/logout", `{"refreshToken":"`+login.Data.RefreshToken+`"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if _, err := sessions.GetByRefreshToken(context.Background(), login.Data.RefreshToken); err == nil {
		t.Fatal("session must be gone after logout")
	}
}
