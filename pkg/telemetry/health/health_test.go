package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckLiveness(t *testing.T) {
	c := New(0)
	status := c.CheckLiveness(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q", status.Status)
	}
}

func TestCheckReadinessNoChecks(t *testing.T) {
	c := New(0)
	status := c.CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("status = %q", status.Status)
	}
}

func TestCheckReadinessAggregates(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("store", func(ctx context.Context) error { return nil })
	c.RegisterCheck("snapshot", func(ctx context.Context) error {
		return errors.New("snapshot is 7m stale")
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q", status.Status)
	}
	if status.Checks["store"].Status != "ok" {
		t.Errorf("store check = %+v", status.Checks["store"])
	}
	snap := status.Checks["snapshot"]
	if snap.Status != "unhealthy" || snap.Message != "snapshot is 7m stale" {
		t.Errorf("snapshot check = %+v", snap)
	}
}

func TestCheckTimeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("status = %q", status.Status)
	}
}

func TestReadinessHandlerStatusCodes(t *testing.T) {
	c := New(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("ready status = %d", rec.Code)
	}

	c.RegisterCheck("store", func(ctx context.Context) error {
		return errors.New("database is locked")
	})
	rec = httptest.NewRecorder()
	c.ReadinessHandler()(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Checks["store"].Message != "database is locked" {
		t.Errorf("checks = %+v", status.Checks)
	}
}

func TestVersionHandler(t *testing.T) {
	handler := VersionHandler("1.2.0", "abc123", "2026-08-30")

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "1.2.0" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("info = %+v", info)
	}
}

func TestHandlersRejectPost(t *testing.T) {
	c := New(time.Second)
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
