package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/carmarket/internal/account"
	"github.com/hitoshi/carmarket/internal/auth"
	"github.com/hitoshi/carmarket/internal/catalog"
	"github.com/hitoshi/carmarket/internal/config"
	"github.com/hitoshi/carmarket/internal/database"
	"github.com/hitoshi/carmarket/internal/handler"
	"github.com/hitoshi/carmarket/internal/identity"
	"github.com/hitoshi/carmarket/internal/imagestore"
	"github.com/hitoshi/carmarket/internal/logger"
	"github.com/hitoshi/carmarket/internal/mail"
	"github.com/hitoshi/carmarket/internal/metrics"
	"github.com/hitoshi/carmarket/internal/middleware"
	"github.com/hitoshi/carmarket/internal/repository"
	"github.com/hitoshi/carmarket/internal/security"
	"github.com/hitoshi/carmarket/internal/user"
	cleanupjob "github.com/hitoshi/carmarket/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば環境変数に読み込み、JSON構造化ログをセットアップしてからConfigを読み込む。
func Init(w io.Writer) (*config.Config, error) {
	// .envは開発環境向け。存在しなくてもよい
	_ = godotenv.Load()

	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, cleanup, err := buildRouter(ctx, cfg, db, slog.Default())
	if err != nil {
		return err
	}
	defer cleanup()

	// Redisに保存する場合はTTLで失効するため、PostgreSQL保存時のみ掃除する
	if cfg.RedisURL == "" {
		go cleanupjob.NewTokenCleanupJob(db, slog.Default()).Start(ctx, cfg.TokenCleanupInterval)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter は設定に従って全依存関係をワイヤリングし、ルーターを返す。
// 返されるcleanupはレートリミッターやRedis接続などのバックグラウンド資源を解放する。
func buildRouter(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)
	userQueryRepo := repository.NewPostgresUserQueryRepo(db)
	manufacturerRepo := repository.NewPostgresManufacturerRepo(db)
	carRepo := repository.NewPostgresCarRepo(db)

	// 2. 確認トークンの保存先
	var tokens identity.TokenStore
	if cfg.RedisURL != "" {
		client, err := identity.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = client.Close() })
		tokens = identity.NewRedisTokenStore(client)
		log.Info("email tokens stored in redis")
	} else {
		tokens = identity.NewPostgresTokenStore(repository.NewPostgresEmailTokenRepo(db))
	}
	manager := identity.NewManager(userRepo, roleRepo, tokens, cfg.ConfirmTokenTTL)

	// 3. 画像の保存先
	var images imagestore.Store
	imagesDir := ""
	if cfg.S3Bucket != "" {
		client, err := imagestore.NewS3Client(ctx, imagestore.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, cleanup, err
		}
		images = imagestore.NewS3Store(client, cfg.S3Bucket, cfg.S3PublicURL)
		log.Info("images stored in s3", slog.String("bucket", cfg.S3Bucket))
	} else {
		images = imagestore.NewFileSystemStore(cfg.Paths.ImagesPath, "/images")
		imagesDir = cfg.Paths.ImagesPath
	}

	// 4. メール送信
	var mailer mail.Sender
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	} else {
		mailer = mail.NewLogSender(log)
		log.Warn("SMTP_HOST is not set; confirmation mails are written to the log")
	}

	// 5. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 6. ドメインサービス
	issuer := auth.NewTokenIssuer(auth.Config{
		SecretKey:         cfg.JWTKey,
		Issuer:            cfg.JWTIssuer,
		Audience:          cfg.JWTAudience,
		ExpirationMinutes: cfg.JWTExpMinutes,
	})
	sanitizer := security.NewTextSanitizer()
	fetcher := security.NewImageFetcher(security.NewSSRFGuard(), cfg.ImageFetchTimeout, cfg.ImageFetchMaxSize)

	accountService := account.NewService(manager, issuer, mailer, collector, cfg.BaseURL)
	carService := catalog.NewCarService(carRepo, manufacturerRepo, images, sanitizer, collector, cfg.Paths)
	manufacturerService := catalog.NewManufacturerService(manufacturerRepo, images, fetcher, sanitizer, cfg.Paths)
	userService := user.NewService(userQueryRepo)

	// 7. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth))
	closers = append(closers, rateLimiter.Stop)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		TokenParser:       issuer,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     db,

		AccountService:          accountService,
		ConfirmEmailRedirectURL: cfg.ConfirmEmailRedirectURL,

		CarService:          carService,
		ManufacturerService: manufacturerService,
		MaxUploadSize:       cfg.MaxUploadSize,

		UserService: userService,
		ImagesDir:   imagesDir,
	})

	return router, cleanup, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSeed はADMIN_*の設定から管理者ユーザーを投入する。既に存在する場合は何もしない。
func runSeed(cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return errors.New("seed requires ADMIN_EMAIL and ADMIN_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	manager := identity.NewManager(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresRoleRepo(db),
		identity.NewPostgresTokenStore(repository.NewPostgresEmailTokenRepo(db)),
		cfg.ConfirmTokenTTL,
	)
	if err := manager.EnsureAdmin(ctx, cfg.AdminUserName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("admin user ensured", slog.String("user_name", cfg.AdminUserName))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
