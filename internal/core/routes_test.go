package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"docgen/internal/ratelimit"
	"docgen/internal/types"
)

// mountedServer builds a server with an in-memory rate limit store, a single
// echo endpoint under /v1, and the full middleware chain mounted.
func mountedServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer(t)
	srv.RateLimitStore = ratelimit.NewMemoryStore()
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := types.GetCaller(r.Context())
			JSON(w, r, http.StatusOK, map[string]string{
				"key":  caller.Key,
				"plan": string(caller.Plan),
			})
		})
	})
	srv.MountRoutes()
	return srv
}

func TestMountRoutes_FullChain(t *testing.T) {
	srv := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set("X-API-Key", "demo-key-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["key"] != "demo-key-123" || body["plan"] != "starter" {
		t.Errorf("resolved caller = %v", body)
	}

	// Correlation and rate headers come out of the chain on every response.
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("X-Request-Id header missing")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "60" {
		t.Errorf("X-RateLimit-Limit = %q, want starter-tier 60", got)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestMountRoutes_RateLimitEnforcedPerPlan(t *testing.T) {
	srv := mountedServer(t)

	// Anonymous traffic runs on the free tier: 10 requests per minute.
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("11th anonymous request: status = %d, want 429", rec.Code)
	}

	// An invalid key shares the anonymous window, so it is already exhausted.
	req = httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set("X-API-Key", "made-up-key")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("invalid key must share the anonymous window, got status %d", rec.Code)
	}

	// A valid key has its own window and plan ceiling.
	req = httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set("X-API-Key", "demo-key-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("keyed request: status = %d, want 200", rec.Code)
	}
}

func TestMountRoutes_RequestIDPropagated(t *testing.T) {
	srv := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set("X-Request-Id", "client-supplied-id")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Errorf("X-Request-Id = %q, want the client value", got)
	}
}

func TestMountRoutes_Health(t *testing.T) {
	srv := mountedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMountRoutes_HealthExemptFromRateLimit(t *testing.T) {
	srv := mountedServer(t)

	// Exhaust the shared anonymous free-tier window on the API surface.
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
	}

	// A monitor polling /health must keep getting 200 regardless of the
	// anonymous window, and the probe traffic must not carry rate headers.
	for i := 0; i < 15; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("/health request %d: status = %d, want 200", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("/health must not pass through the rate limiter")
		}
	}

	// The API window is still exhausted; the exemption is /health only.
	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("anonymous API request after exhaustion: status = %d, want 429", rec.Code)
	}
}

func TestMountRoutes_HealthReportsFailingProbe(t *testing.T) {
	srv := newTestServer(t)
	srv.HealthProbes = append(srv.HealthProbes, failingProbe{})
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

type failingProbe struct{}

func (failingProbe) Name() string                  { return "engine" }
func (failingProbe) Check(_ context.Context) error { return errors.New("browser gone") }

func TestMountRoutes_PanicRecovered(t *testing.T) {
	srv := newTestServer(t)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("handler exploded")
		})
	})
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/v1/boom", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("error envelope is not valid JSON: %v", err)
	}
	if body.Success {
		t.Error("success must be false in the panic envelope")
	}
}
