package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestMonitorHealth(t *testing.T) {
	m := NewMonitor()
	if !m.IsHealthy() {
		t.Error("new monitor should be healthy")
	}
	if got := m.GetStatusSummary(); got != "No runs yet" {
		t.Errorf("GetStatusSummary() = %q", got)
	}

	m.RecordPartialFailure(OpAnalysis, errors.New("bad url"), time.Millisecond)
	if !m.IsHealthy() {
		t.Error("partial failure should not change health")
	}

	m.RecordCriticalFailure(OpAnalysis, errors.New("provider down"), time.Second)
	if m.IsHealthy() {
		t.Error("critical failure should mark unhealthy")
	}
	if !strings.HasPrefix(m.GetStatusSummary(), "❌") {
		t.Errorf("summary = %q", m.GetStatusSummary())
	}

	m.RecordSuccess(OpOverlay, "1 image", time.Second)
	if !m.IsHealthy() {
		t.Error("success should restore health")
	}

	s := m.Snapshot()
	if s.Counts[OpAnalysis] != (counters{Failed: 2}) {
		t.Errorf("analysis counts = %+v", s.Counts[OpAnalysis])
	}
	if s.Counts[OpOverlay] != (counters{Succeeded: 1}) {
		t.Errorf("overlay counts = %+v", s.Counts[OpOverlay])
	}
	if s.LastRun == nil || s.LastError != "" {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestMonitorConcurrent(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordSuccess(OpAnalysis, "ok", 0)
			_ = m.Snapshot()
		}()
	}
	wg.Wait()
	if got := m.Snapshot().Counts[OpAnalysis].Succeeded; got != 50 {
		t.Errorf("succeeded = %d, want 50", got)
	}
}

func TestHealthRoutes(t *testing.T) {
	m := NewMonitor()
	r := mux.NewRouter()
	NewHealthServer(m, 0).Register(r)

	tests := []struct {
		name     string
		setup    func()
		path     string
		wantCode int
		wantBody string
	}{
		{name: "healthy", setup: func() {}, path: "/health", wantCode: http.StatusOK, wantBody: "OK - No runs yet"},
		{name: "unhealthy", setup: func() { m.RecordCriticalFailure(OpJob, errors.New("boom"), 0) }, path: "/health", wantCode: http.StatusServiceUnavailable, wantBody: "Service unhealthy"},
		{name: "status", setup: func() {}, path: "/status", wantCode: http.StatusOK, wantBody: `"healthy":false`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want substring %q", rec.Body.String(), tt.wantBody)
			}
		})
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	var s Status
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("status body is not JSON: %v", err)
	}
	if s.LastError != "boom" {
		t.Errorf("last_error = %q", s.LastError)
	}
}
