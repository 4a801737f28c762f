package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/budgetauth/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// requestAs は認証主体付きのリクエストを生成する。
func requestAs(subject string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	return req.WithContext(ContextWithIdentity(req.Context(), &model.Identity{Subject: subject, Authorities: []string{}}))
}

// requestFrom は指定クライアントIPからの認証エンドポイントへのリクエストを生成する。
func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = ip + ":54321"
	return req
}

// --- GeneralMiddleware (認証済みAPI) のテスト ---

func TestGeneralRateLimit_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       10,
		GeneralRate:     2, // 2 req/sec
		GeneralBurst:    5, // バースト5
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs("jane@example.com"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralRateLimit_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       10,
		GeneralRate:     0.5, // 2秒に1回
		GeneralBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs("jane@example.com"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs("jane@example.com"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil {
		t.Fatalf("Retry-After is not an integer: %v", err)
	}
	if retryAfter != 2 {
		t.Errorf("Retry-After = %d, want 2", retryAfter)
	}
}

func TestGeneralRateLimit_IsolatesSubjects(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       10,
		GeneralRate:     1,
		GeneralBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	wA := httptest.NewRecorder()
	handler.ServeHTTP(wA, requestAs("a@example.com"))
	wA2 := httptest.NewRecorder()
	handler.ServeHTTP(wA2, requestAs("a@example.com"))
	wB := httptest.NewRecorder()
	handler.ServeHTTP(wB, requestAs("b@example.com"))

	if wA.Code != http.StatusOK {
		t.Errorf("a first: status = %d, want %d", wA.Code, http.StatusOK)
	}
	if wA2.Code != http.StatusTooManyRequests {
		t.Errorf("a second: status = %d, want %d", wA2.Code, http.StatusTooManyRequests)
	}
	// bはaのレートに影響されない
	if wB.Code != http.StatusOK {
		t.Errorf("b first: status = %d, want %d", wB.Code, http.StatusOK)
	}
}

func TestGeneralRateLimit_NoIdentity_Returns401(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called without identity")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- AuthMiddleware (認証エンドポイント) のテスト ---

func TestAuthRateLimit_LimitsPerClientIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       2,
		GeneralRate:     100,
		GeneralBurst:    100,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.7"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.7"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// ポート違いは同一クライアントとして扱う
	if rl.AuthLimiterCount() != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", rl.AuthLimiterCount())
	}

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, requestFrom("198.51.100.2"))
	if other.Code != http.StatusOK {
		t.Errorf("other client: status = %d, want %d", other.Code, http.StatusOK)
	}
}

// 認証エンドポイントの制限と認証済みAPIの制限は独立している。
func TestAuthRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       1,
		GeneralRate:     1,
		GeneralBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	authHandler := rl.AuthMiddleware()(okHandler())
	generalHandler := rl.GeneralMiddleware()(okHandler())

	authHandler.ServeHTTP(httptest.NewRecorder(), requestFrom("203.0.113.7"))

	w := httptest.NewRecorder()
	generalHandler.ServeHTTP(w, requestAs("jane@example.com"))
	if w.Code != http.StatusOK {
		t.Errorf("general should still be allowed: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimit_429ResponseIsJSON(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        1,
		AuthBurst:       1,
		GeneralRate:     1,
		GeneralBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), requestFrom("203.0.113.7"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.7"))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["code"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %q, want %q", body["code"], "RATE_LIMIT_EXCEEDED")
	}
	if body["message"] == "" || body["category"] == "" {
		t.Errorf("body = %v, want message and category", body)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		AuthRate:        2,
		AuthBurst:       5,
		GeneralRate:     2,
		GeneralBurst:    5,
		CleanupInterval: 50 * time.Millisecond,
	})
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs("jane@example.com"))
	rl.AuthMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestFrom("203.0.113.7"))

	if rl.GeneralLimiterCount() != 1 || rl.AuthLimiterCount() != 1 {
		t.Fatalf("counts = (%d, %d), want (1, 1)", rl.GeneralLimiterCount(), rl.AuthLimiterCount())
	}

	// TTLはCleanupIntervalの2倍（100ms）。200ms待てば削除される
	time.Sleep(200 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("GeneralLimiterCount after cleanup = %d, want 0", count)
	}
	if count := rl.AuthLimiterCount(); count != 0 {
		t.Errorf("AuthLimiterCount after cleanup = %d, want 0", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

// --- 設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.AuthBurst != 20 {
		t.Errorf("AuthBurst = %d, want 20", cfg.AuthBurst)
	}
	if cfg.AuthRate == 0 {
		t.Error("AuthRate should not be 0")
	}
}

func TestNewRateLimiterConfig_PerMinute(t *testing.T) {
	cfg := NewRateLimiterConfig(30, 600)

	if cfg.AuthRate != 0.5 {
		t.Errorf("AuthRate = %f, want 0.5", cfg.AuthRate)
	}
	if cfg.GeneralRate != 10 {
		t.Errorf("GeneralRate = %f, want 10", cfg.GeneralRate)
	}
	if cfg.AuthBurst != 30 || cfg.GeneralBurst != 600 {
		t.Errorf("bursts = (%d, %d), want (30, 600)", cfg.AuthBurst, cfg.GeneralBurst)
	}
}
