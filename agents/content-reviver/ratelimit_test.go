package contentreviver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiterBurst(t *testing.T) {
	l := newIPRateLimiter(60, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.allow("a") {
		t.Error("third request inside the same second should be limited")
	}
	if !l.allow("b") {
		t.Error("another IP has its own bucket")
	}

	now = now.Add(time.Second)
	if !l.allow("a") {
		t.Error("one token should refill after a second at 60/min")
	}
}

func TestIPRateLimiterDisabled(t *testing.T) {
	if l := newIPRateLimiter(0, 5); l != nil {
		t.Fatal("non-positive rate should disable the limiter")
	}

	var l *ipRateLimiter
	h := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIPRateLimiterSweep(t *testing.T) {
	l := newIPRateLimiter(10, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.allow("old")
	now = now.Add(rateLimitCleanup + time.Second)
	l.allow("fresh")
	l.sweep()

	if _, ok := l.limiters["old"]; ok {
		t.Error("idle entry should be swept")
	}
	if _, ok := l.limiters["fresh"]; !ok {
		t.Error("recent entry should survive")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded chain", header: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, remote: "10.0.0.1:1234", want: "203.0.113.9"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "10.0.0.1:1234", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.0.2.4:5555", want: "192.0.2.4"},
		{name: "remote without port", remote: "192.0.2.4", want: "192.0.2.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
