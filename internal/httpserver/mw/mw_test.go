package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	h := RateLimit(RateLimitConfig{
		Burst:     2,
		PerMinute: 6, // one token every 10s
		Now:       func() time.Time { return now },
	})(ok)

	for i := 0; i < 2; i++ {
		if rec := serve(h, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, rec.Code)
		}
	}

	rec := serve(h, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "10" {
		t.Errorf("Retry-After = %q, want 10", got)
	}

	now = now.Add(10 * time.Second)
	if rec := serve(h, nil); rec.Code != http.StatusOK {
		t.Errorf("after refill = %d, want 200", rec.Code)
	}
}

func TestRateLimitPerClient(t *testing.T) {
	h := RateLimit(RateLimitConfig{Burst: 1, PerMinute: 1})(ok)

	first := func(r *http.Request) { r.RemoteAddr = "10.0.0.1:1" }
	second := func(r *http.Request) { r.RemoteAddr = "10.0.0.2:1" }

	if rec := serve(h, first); rec.Code != http.StatusOK {
		t.Fatalf("first client = %d", rec.Code)
	}
	if rec := serve(h, first); rec.Code != http.StatusTooManyRequests {
		t.Errorf("first client again = %d, want 429", rec.Code)
	}
	if rec := serve(h, second); rec.Code != http.StatusOK {
		t.Errorf("second client = %d, want its own bucket", rec.Code)
	}
}

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"sleuth.example.com", "*.internal.lan"}, logger.NewNop())(ok)

	tests := []struct {
		host string
		want int
	}{
		{"sleuth.example.com", http.StatusOK},
		{"SLEUTH.example.com:8443", http.StatusOK},
		{"api.internal.lan", http.StatusOK},
		{"internal.lan", http.StatusForbidden},
		{"evil.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		rec := serve(h, func(r *http.Request) { r.Host = tt.host })
		if rec.Code != tt.want {
			t.Errorf("Host %q = %d, want %d", tt.host, rec.Code, tt.want)
		}
	}

	if rec := serve(EnforceHost(nil, logger.NewNop())(ok), nil); rec.Code != http.StatusOK {
		t.Errorf("empty allowlist should pass through, got %d", rec.Code)
	}
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	h := CORS([]string{"*"})(ok)
	rec := serve(h, func(r *http.Request) { r.Header.Set("Origin", "https://app.example") })

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q, want echoed origin", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("simple request = %d, want 200", rec.Code)
	}
}

func TestLogKeepsStatusAndFlush(t *testing.T) {
	h := Log(logger.NewNop(), false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("Flush through log middleware: %v", err)
		}
	}))

	rec := serve(h, nil)
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if !rec.Flushed {
		t.Error("underlying writer was not flushed")
	}
}
