package bookings

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

type fixedPrincipals struct {
	byID map[string]auth.Principal
}

func (f *fixedPrincipals) GetByID(_ context.Context, id string) (*auth.Principal, error) {
	if principal, ok := f.byID[id]; ok {
		return &principal, nil
	}
	return nil, auth.ErrNotFound
}

func (f *fixedPrincipals) GetByEmail(context.Context, string) (*auth.Account, error) {
	return nil, auth.ErrNotFound
}

type noopAudit struct{}

func (noopAudit) Append(context.Context, audit.Record) error                { return nil }
func (noopAudit) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

func newBookingRouter(t *testing.T) (http.Handler, *stubRepo, func(*testing.T, string) string) {
	t.Helper()

	tokens, err := auth.NewJWTTokenService("access", "refresh", 15*time.Minute, 168*time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	registry, err := rbac.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	principals := &fixedPrincipals{byID: map[string]auth.Principal{
		"u-admin": {ID: "u-admin", Email: "admin@fleetflow.test", Role: rbac.RoleAdmin, Active: true},
		"u-cust":  {ID: "u-cust", Email: "cust@fleetflow.test", Role: rbac.RoleCustomer, Active: true},
		"u-other": {ID: "u-other", Email: "other@fleetflow.test", Role: rbac.RoleCustomer, Active: true},
	}}

	pipeline := &gateway.Pipeline{
		Limiter:       ratelimit.NewLimiter(ratelimit.NewMemoryStore(), nil),
		Authenticator: auth.NewAuthenticator(tokens, principals, nil),
		Authorizer:    rbac.NewAuthorizer(registry),
		Audit:         audit.NewLogger(noopAudit{}, nil, time.Second),
	}

	repo := newStubRepo()
	handler := NewHandler(nil, NewService(repo), pipeline)
	router := chi.NewRouter()
	router.Route("/bookings", handler.MountRoutes)

	bearer := func(t *testing.T, userID string) string {
		t.Helper()
		pair, err := tokens.Issue(principals.byID[userID])
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return "Bearer " + pair.AccessToken
	}
	return router, repo, bearer
}

func doRequest(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestCustomerBooksForThemselves(t *testing.T) {
	router, repo, bearer := newBookingRouter(t)

	start := time.Now().AddDate(0, 0, 2).Format(time.RFC3339)
	end := time.Now().AddDate(0, 0, 4).Format(time.RFC3339)
	body := `{"userId":"u-other","vehicleId":"v-1","startDate":"` + start + `","endDate":"` + end + `"}`

	res := doRequest(router, http.MethodPost, "/bookings", bearer(t, "u-cust"), body)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var payload struct {
		Data struct {
			ID     string `json:"id"`
			UserID string `json:"userId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.UserID != "u-cust" {
		t.Fatalf("customer booking must be forced onto the caller, got %q", payload.Data.UserID)
	}
	if stored := repo.byID[payload.Data.ID]; stored.UserID != "u-cust" {
		t.Fatalf("stored booking owner mismatch: %q", stored.UserID)
	}
}

func TestOwnListingIsScoped(t *testing.T) {
	router, repo, bearer := newBookingRouter(t)
	start, end := window(2, 2)
	if _, err := repo.Create(context.Background(), CreateInput{UserID: "u-cust", VehicleID: "v-1", StartDate: start, EndDate: end}); err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	res := doRequest(router, http.MethodGet, "/bookings/user/u-cust", bearer(t, "u-cust"), "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	res = doRequest(router, http.MethodGet, "/bookings/user/u-cust", bearer(t, "u-other"), "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign listing, got %d", res.Code)
	}
}

func TestListRequiresBookingsRead(t *testing.T) {
	router, _, bearer := newBookingRouter(t)

	res := doRequest(router, http.MethodGet, "/bookings", bearer(t, "u-cust"), "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}

	res = doRequest(router, http.MethodGet, "/bookings", bearer(t, "u-admin"), "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
}

func TestCancelEndpointMapsOwnership(t *testing.T) {
	router, repo, bearer := newBookingRouter(t)
	start, end := window(2, 2)
	booking, err := repo.Create(context.Background(), CreateInput{UserID: "u-cust", VehicleID: "v-1", StartDate: start, EndDate: end})
	if err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	res := doRequest(router, http.MethodPost, "/bookings/"+booking.ID+"/cancel", bearer(t, "u-other"), "")
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign cancel, got %d: %s", res.Code, res.Body.String())
	}

	res = doRequest(router, http.MethodPost, "/bookings/"+booking.ID+"/cancel", bearer(t, "u-cust"), "")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "CANCELLED") {
		t.Fatalf("expected CANCELLED status in body: %s", res.Body.String())
	}
}

func TestCreateRejectsBadWindow(t *testing.T) {
	router, _, bearer := newBookingRouter(t)

	start := time.Now().AddDate(0, 0, 4).Format(time.RFC3339)
	end := time.Now().AddDate(0, 0, 2).Format(time.RFC3339)
	body := `{"vehicleId":"v-1","startDate":"` + start + `","endDate":"` + end + `"}`

	res := doRequest(router, http.MethodPost, "/bookings", bearer(t, "u-cust"), body)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(res.Body.String(), "VALIDATION_ERROR") {
		t.Fatalf("expected VALIDATION_ERROR, got %s", res.Body.String())
	}
}
