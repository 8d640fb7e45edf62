package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/gakuseki/internal/metrics"
	"github.com/hitoshi/gakuseki/internal/middleware"
)

// RouterDeps はルーター構築に必要な依存をまとめる。
type RouterDeps struct {
	AuthHandler    *AuthHandler
	ProfileHandler *ProfileHandler
	SessionFinder  middleware.SessionFinder
	RateLimiter    *middleware.RateLimiter

	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Gatherer          prometheus.Gatherer
	Logger            *slog.Logger
}

// NewRouter はアプリケーションのルーターを構築する。
//
// ミドルウェアの適用順:
//  1. Recovery / Logging / SecurityHeaders / CORS（全ルート）
//  2. 認証系ルート: 認証レート制限（クライアントIPキー）
//  3. 保護ルート: Session → API全般レート制限（Identity IDキー）→ CSRF
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// ヘルスチェック（認証不要）
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheusスクレイプ用（認証不要）
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// CSRFトークン取得（認証不要。保護ルートへのPOST/PUTの前に取得する）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 認証系ルート。セッション確立前なのでクライアントIPでレート制限する。
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Post("/register", deps.AuthHandler.Register)
			r.Post("/login", deps.AuthHandler.Login)
		})
		r.Post("/logout", deps.AuthHandler.Logout)
		r.Get("/me", deps.AuthHandler.Me)
	})

	// 保護ルート。セッション検証の後にIdentity IDキーのレート制限とCSRF検証を行う。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", deps.ProfileHandler.Get)
			r.Put("/", deps.ProfileHandler.Update)
			r.Post("/", deps.ProfileHandler.Create)
			r.Post("/reset", deps.ProfileHandler.Reset)
		})
	})

	return r
}
