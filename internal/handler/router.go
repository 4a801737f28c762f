package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/budgetauth/internal/database"
	"github.com/hitoshi/budgetauth/internal/metrics"
	"github.com/hitoshi/budgetauth/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	AccountFinder     middleware.AccountFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック（nilの場合は常に200）
	HealthChecker database.Pinger

	// メトリクス（nilの場合は/metricsを公開しない）
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	TokenIssuer TokenIssuer

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Metrics → BearerAuth → Logging
//
// /v1/auth/* はクライアントIP単位のレート制限、/v1/users/* は
// RequireIdentity → 認証主体単位のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(metrics.NewHTTPMiddleware(collector))
	r.Use(middleware.NewBearerAuthMiddleware(
		deps.TokenVerifier,
		deps.AccountFinder,
		middleware.WriteTokenDecodingError,
		middleware.WithTokenMetrics(collector),
	))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))

	authHandler := NewAuthHandler(deps.AuthService, deps.TokenIssuer)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証不要のルート ---
	r.Route("/v1/auth", func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/verify", authHandler.Verify)
		r.Post("/resend-verification", authHandler.ResendVerification)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: RequireIdentity → RateLimit(General)
	r.Route("/v1/users", func(r chi.Router) {
		r.Use(middleware.RequireIdentity())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/", userHandler.List)
		r.Get("/me", userHandler.Me)
	})

	return r
}
