package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/workhub/internal/metrics"
	"github.com/hitoshi/workhub/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBのPingContextがそのまま適合する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface

	// プロバイダー連携
	SlackService SlackServiceInterface
	GmailService GmailServiceInterface
	GmailConfig  GmailHandlerConfig

	// 運用
	HealthChecker      HealthChecker
	PrometheusGatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → [保護ルートのみ: Session → RateLimit]
//
// signup・login・OAuthコールバック・health・metricsは認証不要ルートに配置する。
// コールバックはプロバイダーからの遷移であり、セッションの代わりに
// 署名付きstateでユーザーを特定する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.CORSAllowedOrigin != "" {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	}
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	authHandler := NewAuthHandler(deps.AuthService)
	slackHandler := NewSlackHandler(deps.SlackService)
	gmailHandler := NewGmailHandler(deps.GmailService, deps.GmailConfig)

	// --- 認証不要のルート ---

	r.Post("/signup", authHandler.Signup)
	r.Post("/login", authHandler.Login)

	// OAuthコールバック（ユーザーは署名付きstateで特定する）
	r.Get("/api/slack/oauth/callback", slackHandler.Callback)
	r.Get("/api/gmail/oauth/callback", gmailHandler.Callback)

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.PrometheusGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.PrometheusGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier, deps.UserFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/me", authHandler.Me)

		// 連携開始
		r.Get("/api/slack/install", slackHandler.Install)
		r.Get("/api/gmail/install", gmailHandler.Install)

		// プロバイダープロキシ（プロキシ専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.ProviderMiddleware())

			r.Get("/api/slack/channels", slackHandler.ListChannels)
			r.Get("/api/slack/channels/{channelID}/messages", slackHandler.ListMessages)
			r.Get("/api/slack/conversations", slackHandler.ListConversations)
			r.Get("/api/gmail/emails", gmailHandler.ListEmails)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	}
}
