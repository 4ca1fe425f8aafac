package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    3,
		AddRate:         0.01,
		AddBurst:        1,
		CleanupInterval: time.Minute,
	}
}

func requestAs(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/essays/add", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimiter_GeneralBurstThen429(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := range 3 {
		if w := requestAs(handler, "u1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}
	w := requestAs(handler, "u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", w.Header().Get("Retry-After"))
	}
	if body := decodeError(t, w); body.Code != "RATE_LIMITED" {
		t.Errorf("code = %q, want RATE_LIMITED", body.Code)
	}
}

func TestRateLimiter_PerUser(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.AddMiddleware()(okHandler())

	if w := requestAs(handler, "u1"); w.Code != http.StatusOK {
		t.Fatalf("u1 first: status = %d", w.Code)
	}
	if w := requestAs(handler, "u1"); w.Code != http.StatusTooManyRequests {
		t.Errorf("u1 second: status = %d, want 429", w.Code)
	}
	if w := requestAs(handler, "u2"); w.Code != http.StatusOK {
		t.Errorf("u2 first: status = %d, want 200", w.Code)
	}
	if rl.AddLimiterCount() != 2 {
		t.Errorf("AddLimiterCount() = %d, want 2", rl.AddLimiterCount())
	}
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("GeneralLimiterCount() = %d, want 0 (independent sets)", rl.GeneralLimiterCount())
	}
}

func TestRateLimiter_RetryAfterForSlowRate(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.AddMiddleware()(okHandler())

	requestAs(handler, "u1")
	w := requestAs(handler, "u1")
	if got := w.Header().Get("Retry-After"); got != "100" {
		t.Errorf("Retry-After = %q, want 100", got)
	}
}

func TestRateLimiter_RequiresUser(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/essays", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRateLimiter_CleanupEvictsIdleEntries(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	requestAs(handler, "u1")
	rl.cleanup(time.Now())
	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("recent entry evicted: count = %d", rl.GeneralLimiterCount())
	}
	rl.cleanup(time.Now().Add(3 * time.Minute))
	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("idle entry not evicted: count = %d", rl.GeneralLimiterCount())
	}
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(120, 20)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.AddBurst != 20 {
		t.Errorf("AddBurst = %d, want 20", cfg.AddBurst)
	}
	rl := NewRateLimiter(cfg)
	rl.Stop()
	rl.Stop()
}
