package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"LendLedger/internal/observability"
)

func readyz(t *testing.T, h *observability.HealthChecker) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

// ============================================================================
// Readiness
// ============================================================================

func TestReadiness_NotReadyUntilRecovered(t *testing.T) {
	h := observability.NewHealthChecker()
	if code, body := readyz(t, h); code != http.StatusServiceUnavailable || body["status"] != "not_ready" {
		t.Fatalf("before recovery: %d %v", code, body)
	}
	h.SetReady(true)
	if code, body := readyz(t, h); code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("after recovery: %d %v", code, body)
	}
}

func TestReadiness_FailingDependency(t *testing.T) {
	h := observability.NewHealthChecker()
	h.SetReady(true)
	h.AddCheck("postgres", func(context.Context) error { return nil })
	h.AddCheck("nats", func(context.Context) error { return errors.New("disconnected") })

	code, body := readyz(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("got %d %v", code, body)
	}
	failing, _ := body["failing"].(map[string]interface{})
	if len(failing) != 1 || failing["nats"] != "disconnected" {
		t.Errorf("failing: %v", body["failing"])
	}
}

func TestLiveness_AlwaysOK(t *testing.T) {
	h := observability.NewHealthChecker()
	rec := httptest.NewRecorder()
	h.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("liveness: %d", rec.Code)
	}
}
