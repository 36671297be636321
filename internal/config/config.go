package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// JWT
	JWTKey        string
	JWTIssuer     string
	JWTAudience   string
	JWTExpMinutes int

	// Email confirmation
	ConfirmEmailRedirectURL string
	ConfirmTokenTTL         time.Duration
	TokenCleanupInterval    time.Duration

	// SMTP（SMTPHostが空の場合はメールを送信せずログに出力する）
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	// Redis（空の場合は確認トークンをPostgreSQLに保存する）
	RedisURL string

	// Images
	Paths             Paths
	MaxUploadSize     int64
	ImageFetchTimeout time.Duration
	ImageFetchMaxSize int64

	// S3（S3Bucketが空の場合はファイルシステムに保存する）
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int

	// Seed
	AdminEmail    string
	AdminUserName string
	AdminPassword string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Paths は画像保存先などファイルシステム上の位置をまとめる。
// フローにはこの値を明示的に渡し、グローバルな可変状態は持たない。
type Paths struct {
	RootPath        string
	ImagesPath      string
	CarsDir         string
	ManufacturesDir string
}

// CarImagesPath は指定した車両IDの画像ディレクトリ（ImagesPathからの相対パス）を返す。
func (p Paths) CarImagesPath(carID string) string {
	return filepath.ToSlash(filepath.Join(p.CarsDir, carID))
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTKey = os.Getenv("JWT_KEY")
	if cfg.JWTKey == "" {
		missing = append(missing, "JWT_KEY")
	}

	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")
	if cfg.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}

	cfg.JWTAudience = os.Getenv("JWT_AUDIENCE")
	if cfg.JWTAudience == "" {
		missing = append(missing, "JWT_AUDIENCE")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.JWTExpMinutes = getEnvInt("JWT_EXP_MINUTES", 60)
	cfg.ConfirmEmailRedirectURL = getEnvString("CONFIRM_EMAIL_REDIRECT_URL", cfg.BaseURL)
	cfg.ConfirmTokenTTL = getEnvDuration("CONFIRM_TOKEN_TTL", 24*time.Hour)
	cfg.TokenCleanupInterval = getEnvDuration("TOKEN_CLEANUP_INTERVAL", time.Hour)

	cfg.SMTPHost = getEnvString("SMTP_HOST", "")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "noreply@localhost")

	cfg.RedisURL = getEnvString("REDIS_URL", "")

	rootPath := getEnvString("ROOT_PATH", ".")
	cfg.Paths = Paths{
		RootPath:        rootPath,
		ImagesPath:      filepath.Join(rootPath, getEnvString("IMAGES_DIR", filepath.Join("wwwroot", "images"))),
		CarsDir:         "cars",
		ManufacturesDir: "manufactures",
	}
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 10<<20)
	cfg.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second)
	cfg.ImageFetchMaxSize = getEnvInt64("IMAGE_FETCH_MAX_SIZE", 5<<20)

	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnvString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_KEY", "")
	cfg.S3PublicURL = strings.TrimRight(getEnvString("S3_PUBLIC_URL", ""), "/")

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)

	cfg.AdminEmail = getEnvString("ADMIN_EMAIL", "")
	cfg.AdminUserName = getEnvString("ADMIN_USERNAME", "admin")
	cfg.AdminPassword = getEnvString("ADMIN_PASSWORD", "")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
