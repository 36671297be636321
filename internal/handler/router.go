package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/carmarket/internal/metrics"
	"github.com/hitoshi/carmarket/internal/middleware"
	"github.com/hitoshi/carmarket/internal/model"
)

// HealthChecker はDBなど依存先の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenParser       middleware.TokenParser
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker

	// アカウント
	AccountService          AccountServiceInterface
	ConfirmEmailRedirectURL string

	// カタログ
	CarService          CarServiceInterface
	ManufacturerService ManufacturerServiceInterface
	MaxUploadSize       int64

	// ユーザー
	UserService UserServiceInterface

	// ファイルシステムに保存した画像のディレクトリ。空の場合は/images/*を配信しない
	ImagesDir string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RequestIDHeader → Recovery → SecurityHeaders → CORS → Auth → Logging → Metrics
//
// AuthMiddlewareはトークンがない場合も拒否せず、保護ルートのみRequireRolesで拒否する。
// レート制限はAPIルートのみに適用し、ログイン・登録には専用の制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRequestIDHeaderMiddleware())
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewAuthMiddleware(deps.TokenParser))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))

	accountHandler := NewAccountHandler(deps.AccountService, deps.ConfirmEmailRedirectURL)
	carHandler := NewCarHandler(deps.CarService, deps.MaxUploadSize)
	manufacturerHandler := NewManufacturerHandler(deps.ManufacturerService, deps.MaxUploadSize)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	if deps.ImagesDir != "" {
		r.Handle("/images/*", imagesHandler(deps.ImagesDir))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/account", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", accountHandler.Register)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", accountHandler.Login)
			r.Get("/confirmEmail", accountHandler.ConfirmEmail)
			r.Get("/sendConfirmEmailToken", accountHandler.SendConfirmEmailToken)
		})

		r.Route("/car", func(r chi.Router) {
			r.Get("/list", carHandler.ListCars)
			r.With(middleware.RequireRoles(model.RoleAdmin, model.RoleCarManager)).Post("/", carHandler.CreateCar)
		})

		r.Route("/manufacture", func(r chi.Router) {
			r.Get("/list", manufacturerHandler.ListManufacturers)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRoles(model.RoleAdmin, model.RoleManufactureManager))
				r.Post("/", manufacturerHandler.CreateManufacturer)
				r.Put("/", manufacturerHandler.UpdateManufacturer)
				r.Delete("/", manufacturerHandler.DeleteManufacturer)
			})
		})

		// ユーザー一覧は管理者のみ
		r.Route("/user", func(r chi.Router) {
			r.Use(middleware.RequireRoles(model.RoleAdmin))
			r.Get("/all", userHandler.ListAll)
			r.Get("/list", userHandler.ListPaged)
			r.Get("/by-role", userHandler.ListByRole)
			r.Get("/sorted", userHandler.ListSorted)
		})
	})

	return r
}

// healthHandler はDB疎通を確認し、200または503を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.PingContext(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
