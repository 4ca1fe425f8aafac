package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/essay"
	"github.com/hitoshi/essaybinder/internal/metrics"
	"github.com/hitoshi/essaybinder/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	Cookies           middleware.CookieConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	// MetricsHandler がnilの場合 /metrics は公開しない
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// エッセイ
	Catalog   essay.Catalog
	Providers docs.Factory

	// カード位置
	PositionService PositionServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//	（認証ルート）Session → RateLimit(General) [→ RateLimit(Add)]
//
// /health、/essays/health、/metrics と /auth の一部は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.Cookies.Secure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))

	session := middleware.NewSessionMiddleware(deps.SessionVerifier, deps.Cookies)
	authHandler := NewAuthHandler(deps.AuthService, deps.SessionVerifier, deps.Cookies, deps.AuthConfig)
	essayHandler := NewEssayHandler(deps.Catalog, deps.Providers)
	positionHandler := NewPositionHandler(deps.PositionService)

	// --- 認証不要のルート ---
	r.Get("/health", Health)
	r.Get("/essays/health", Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/exchange-code", authHandler.ExchangeCode)
		r.Post("/refresh-token", authHandler.RefreshToken)
		r.Post("/logout", authHandler.Logout)
		r.With(session).Get("/user", authHandler.User)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(session)
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/essays", func(r chi.Router) {
			r.Get("/", essayHandler.List)

			// 追加系は追加専用のレート制限も適用する
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AddMiddleware())
				r.Post("/add", essayHandler.AddByURL)
				r.Post("/add-by-file", essayHandler.AddByFileID)
			})

			r.Route("/{essayId}", func(r chi.Router) {
				r.Delete("/", essayHandler.Remove)
				r.Post("/tags", essayHandler.AddTag)
				r.Delete("/tags", essayHandler.RemoveTag)
				r.Put("/theme", essayHandler.UpdateTheme)
				r.Put("/application", essayHandler.UpdateApplication)
				r.Put("/notes", essayHandler.UpdateNotes)
			})
		})

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", positionHandler.Get)
			r.Put("/", positionHandler.Save)
		})
	})

	return r
}
