package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	handlers := NewHealthHandlers(WithHealthClock(func() time.Time { return now }))
	now = start.Add(30 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	handlers.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessCheck("database", func(context.Context) error { return nil }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()

	handlers.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	checks, ok := body["checks"].(map[string]any)
	if !ok {
		t.Fatalf("expected checks map, got %v", body["checks"])
	}
	if checks["database"] != "ok" {
		t.Fatalf("expected database check ok, got %v", checks["database"])
	}
}

func TestHealthHandlersReadyzFailure(t *testing.T) {
	handlers := NewHealthHandlers(
		WithReadinessCheck("database", func(context.Context) error { return errors.New("connection refused") }),
	)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()

	handlers.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != "unavailable" {
		t.Fatalf("expected status unavailable, got %v", body["status"])
	}
}
