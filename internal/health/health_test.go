package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/colloquyhq/colloquy/pkg/store"
)

func TestHealthzAlwaysOK(t *testing.T) {
	h := New(Checker{Name: "broken", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Healthz status = %d, want 200", rec.Code)
	}
}

func TestReadyzAllPassing(t *testing.T) {
	h := New(
		Checker{Name: "store", Check: func(context.Context) error { return nil }},
		Checker{Name: "model", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Readyz status = %d, want 200", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" || body.Checks["store"] != "ok" || body.Checks["model"] != "ok" {
		t.Errorf("body = %+v, want all ok", body)
	}
}

func TestReadyzFailingChecker(t *testing.T) {
	h := New(
		Checker{Name: "store", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Readyz status = %d, want 503", rec.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	if !strings.HasPrefix(body.Checks["store"], "fail: ") {
		t.Errorf("checks.store = %q, want fail prefix", body.Checks["store"])
	}
}

func TestStoreCheckerWithoutPinger(t *testing.T) {
	c := StoreChecker(store.NewMemStore())
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("memstore check error = %v, want nil", err)
	}
}

func TestStoreCheckerUnwrapsFallback(t *testing.T) {
	c := StoreChecker(store.WithFallback(store.NewMemStore()))
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("wrapped memstore check error = %v, want nil", err)
	}
}
