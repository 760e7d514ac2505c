package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowAddrBurstPerHost(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 2)
	defer l.Stop()

	// Different ports on the same host share one bucket.
	if !l.AllowAddr("10.0.0.1:1000") || !l.AllowAddr("10.0.0.1:1001") {
		t.Fatal("first two connections should be allowed")
	}
	if l.AllowAddr("10.0.0.1:1002") {
		t.Error("third connection within the burst window should be rejected")
	}
	if !l.AllowAddr("10.0.0.2:1000") {
		t.Error("a different host should have its own bucket")
	}
}

func TestSweepRemovesIdleLimiters(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(1000), 1)
	defer l.Stop()

	l.GetLimiter("10.0.0.1")
	if removed := l.sweep(time.Now().Add(time.Minute)); removed != 1 {
		t.Errorf("sweep() removed %d limiters, want 1", removed)
	}
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)
	defer l.Stop()

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d, want %d", first.Code, http.StatusNoContent)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
}
