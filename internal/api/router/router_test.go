package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/vethome-platform/internal/api/router"
	"github.com/wolfman30/vethome-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vethome-platform/internal/config"
	httpmiddleware "github.com/wolfman30/vethome-platform/internal/http/middleware"
	"github.com/wolfman30/vethome-platform/internal/registry"
	"github.com/wolfman30/vethome-platform/pkg/logging"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T, secret string, checks map[string]router.HealthCheck) (http.Handler, *bootstrap.App) {
	t.Helper()

	cfg := &appconfig.Config{
		FallbackOnError:     true,
		CampaignConcurrency: 1,
		CampaignSendDelay:   time.Millisecond,
		ClinicName:          "Patitas",
		PlanTier:            "basic",
	}
	reg := prometheus.NewRegistry()
	logger := logging.Default()
	app, err := bootstrap.BuildApp(context.Background(), cfg, bootstrap.Options{Registry: reg, Gatherer: reg}, logger)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}

	h := router.New(&router.Config{
		Logger:          logger,
		Authority:       app.Handlers.Authority,
		Registry:        app.Handlers.Registry,
		Catalog:         app.Handlers.Catalog,
		Billing:         app.Handlers.Billing,
		Scheduling:      app.Handlers.Scheduling,
		Reports:         app.Handlers.Reports,
		Audit:           app.Handlers.Audit,
		Clinic:          app.Handlers.Clinic,
		Portal:          app.Handlers.Portal,
		PortalClients:   app.Registry,
		AdminAuthSecret: secret,
		MetricsHandler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthChecks:    checks,
	})
	return h, app
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func token(t *testing.T, role, subject string) string {
	t.Helper()
	tok, err := httpmiddleware.IssueToken(testSecret, role, subject, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestRouterHealthEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, "", nil)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	h, _ := newTestRouter(t, "", map[string]router.HealthCheck{
		"redis":    func(context.Context) error { return errors.New("connection refused") },
		"postgres": func(context.Context) error { return nil },
	})
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("connection refused")) {
		t.Fatalf("expected failing check in body: %s", rr.Body.String())
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, "", nil)
	// generate a gateway call so the histogram has a sample
	do(t, h, http.MethodGet, "/api/v1/catalog/cabys?q=vacuna", "", nil)

	rr := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("vethome_gateway_calls_total")) {
		t.Fatalf("expected gateway metrics, got %s", rr.Body.String())
	}
}

func TestRouterRequiresAdminToken(t *testing.T) {
	h, _ := newTestRouter(t, testSecret, nil)

	if rr := do(t, h, http.MethodGet, "/api/v1/clients", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/clients", token(t, httpmiddleware.RoleClient, "c-1"), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for client role, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/api/v1/clients", token(t, httpmiddleware.RoleAdmin, "dra"), nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	// health stays public
	if rr := do(t, h, http.MethodGet, "/health", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRouterClientAndPortalFlow(t *testing.T) {
	h, _ := newTestRouter(t, testSecret, nil)
	admin := token(t, httpmiddleware.RoleAdmin, "dra")

	rr := do(t, h, http.MethodPost, "/api/v1/clients", admin, registry.RegisterClientRequest{
		FullName: "Ana Mora",
		Phone:    "+50688887777",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var client registry.Client
	if err := json.NewDecoder(rr.Body).Decode(&client); err != nil {
		t.Fatalf("decode client: %v", err)
	}

	if rr := do(t, h, http.MethodGet, "/api/v1/clients/"+client.ID, admin, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	own := token(t, httpmiddleware.RoleClient, client.ID)
	if rr := do(t, h, http.MethodGet, "/portal/clients/"+client.ID+"/summary", own, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for own portal, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := do(t, h, http.MethodGet, "/portal/clients/"+client.ID+"/summary", token(t, httpmiddleware.RoleClient, "someone-else"), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/portal/clients/missing/summary", admin, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown client, got %d", rr.Code)
	}

	rr = do(t, h, http.MethodPost, "/portal/clients/"+client.ID+"/messages", own, map[string]any{"text": "¿A qué hora abren?"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterClinicAndReports(t *testing.T) {
	h, _ := newTestRouter(t, "", nil)

	for _, path := range []string{
		"/api/v1/clinic/profile",
		"/api/v1/clinic/plans",
		"/api/v1/clinic/usage",
		"/api/v1/reports/taxes",
		"/api/v1/reports/dashboard",
		"/api/v1/audit",
		"/api/v1/receivables",
		"/api/v1/catalog/items",
		"/api/v1/breeds/dog",
		"/api/v1/authority/credentials",
	} {
		if rr := do(t, h, http.MethodGet, path, "", nil); rr.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
	}
}
