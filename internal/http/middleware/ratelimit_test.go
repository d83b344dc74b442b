package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("203.0.113.9") {
			t.Fatalf("request %d inside burst should pass", i+1)
		}
	}
	if rl.Allow("203.0.113.9") {
		t.Fatal("request past burst should be denied")
	}
	// A different caller has its own bucket.
	if !rl.Allow("198.51.100.4") {
		t.Fatal("fresh ip should pass")
	}
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	mw := RateLimit(1, 1)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", nil)
	req.Header.Set("X-Real-Ip", "203.0.113.1")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want %d", rec.Code, http.StatusOK)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}
