package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"panehub/server/internal/broker"
	"panehub/server/internal/env"
	"panehub/server/internal/snapshot"
	"panehub/server/internal/transport"
)

// pingBackend is a file backend with a controllable Ping.
type pingBackend struct {
	*snapshot.FileBackend
	pingFn func(context.Context) error
}

func (b *pingBackend) Ping(ctx context.Context) error {
	if b.pingFn != nil {
		return b.pingFn(ctx)
	}
	return nil
}

func newHealthServer(t *testing.T, pingFn func(context.Context) error) *HTTPServer {
	t.Helper()
	files, err := snapshot.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	store := env.NewStore(&pingBackend{FileBackend: files, pingFn: pingFn}, false)
	b := broker.New(store, transport.NewRegistry(), broker.Options{})
	return NewHTTPServer(Services{Broker: b}, Options{})
}

func TestHealthEndpoint(t *testing.T) {
	server := newHealthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
}

func TestReadyEndpoint_Success(t *testing.T) {
	server := newHealthServer(t, func(context.Context) error {
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if status, exists := response["status"]; !exists || status != "ready" {
		t.Errorf("expected status=ready, got %v", status)
	}

	checks, exists := response["checks"].(map[string]any)
	if !exists {
		t.Fatalf("expected checks object, got %v", response["checks"])
	}

	snapCheck, exists := checks["snapshots"].(map[string]any)
	if !exists {
		t.Fatalf("expected snapshots check, got %v", checks["snapshots"])
	}

	if snapStatus := snapCheck["status"]; snapStatus != "ok" {
		t.Errorf("expected snapshots status=ok, got %v", snapStatus)
	}
	if _, exists := checks["sessions"]; exists {
		t.Errorf("sessions check reported without login enabled")
	}
}

func TestReadyEndpoint_BackendFailure(t *testing.T) {
	server := newHealthServer(t, func(context.Context) error {
		return errors.New("connection refused")
	})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rr.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}

	if ok, exists := response["ok"]; !exists || ok != false {
		t.Errorf("expected ok=false, got %v", ok)
	}

	checks, _ := response["checks"].(map[string]any)
	snapCheck, exists := checks["snapshots"].(map[string]any)
	if !exists {
		t.Fatalf("expected snapshots check, got %v", checks["snapshots"])
	}

	if snapError := snapCheck["error"]; snapError != "connection refused" {
		t.Errorf("expected snapshots error='connection refused', got %v", snapError)
	}
}

func TestHealthEndpoint_OptionsRequest(t *testing.T) {
	server := newHealthServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/events", nil)
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected status 204 for OPTIONS, got %d", rr.Code)
	}
}

func TestHealthEndpoint_CORSHeaders(t *testing.T) {
	server := newHealthServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rr := httptest.NewRecorder()

	server.Handler().ServeHTTP(rr, req)

	if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin=*, got %v", origin)
	}

	if cache := rr.Header().Get("Cache-Control"); cache != "no-store" {
		t.Errorf("expected Cache-Control=no-store, got %v", cache)
	}

	if id := rr.Header().Get("X-Request-ID"); id != "req-1" {
		t.Errorf("expected X-Request-ID to be echoed, got %v", id)
	}
}
