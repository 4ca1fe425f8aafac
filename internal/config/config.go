package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ストアバックエンドの種類
const (
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// OAuth
	GoogleClientID     string
	GoogleClientSecret string

	// Session
	SessionSecret  string
	SessionTTL     time.Duration
	AccessTokenTTL time.Duration

	// Credential
	// RefreshTokenKey はリフレッシュトークン暗号化用の256bit鍵。
	RefreshTokenKey         []byte
	CredentialRetentionDays int

	// Store
	StoreBackend            string
	DatabaseURL             string
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// Cache
	RedisURL string

	// Google API
	GoogleAPITimeout    time.Duration
	EnrichMaxConcurrent int
	SyncInterval        time.Duration
	SyncMaxConcurrent   int

	// Rate Limit (req/min/user)
	RateLimitGeneral int
	RateLimitAdd     int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	AppEnv     string

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	// 鍵が未設定のまま起動すると、再起動ごとに保存済みトークンが復号不能になる。
	// ランダム鍵へのフォールバックは行わず、起動エラーとする。
	rawKey := os.Getenv("REFRESH_TOKEN_ENCRYPTION_KEY")
	if rawKey == "" {
		missing = append(missing, "REFRESH_TOKEN_ENCRYPTION_KEY")
	}

	cfg.StoreBackend = getEnvString("STORE_BACKEND", StoreFirestore)
	switch cfg.StoreBackend {
	case StorePostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case StoreFirestore:
		cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
		if cfg.FirebaseProjectID == "" {
			missing = append(missing, "FIREBASE_PROJECT_ID")
		}
		cfg.FirebaseCredentialsFile = os.Getenv("FIREBASE_CREDENTIALS_FILE")
	default:
		return nil, fmt.Errorf("unsupported STORE_BACKEND: %q (want %q or %q)", cfg.StoreBackend, StoreFirestore, StorePostgres)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	key, err := ParseEncryptionKey(rawKey)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTokenKey = key

	// Optional fields with defaults
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", 24*time.Hour)
	cfg.AccessTokenTTL = getEnvDuration("ACCESS_TOKEN_TTL", time.Hour)
	cfg.CredentialRetentionDays = getEnvInt("CREDENTIAL_RETENTION_DAYS", 180)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.GoogleAPITimeout = getEnvDuration("GOOGLE_API_TIMEOUT", 10*time.Second)
	cfg.EnrichMaxConcurrent = getEnvInt("ENRICH_MAX_CONCURRENT", 8)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 0)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 4)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAdd = getEnvInt("RATE_LIMIT_ADD", 20)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AppEnv = getEnvString("APP_ENV", "production")
	cfg.CookieSecure = cfg.AppEnv != "development"
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	return cfg, nil
}

// ParseEncryptionKey は16進文字列の暗号鍵をデコードする。
// 32バイト（AES-256）でない場合はエラーを返す。
func ParseEncryptionKey(raw string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("REFRESH_TOKEN_ENCRYPTION_KEY must be hex encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("REFRESH_TOKEN_ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
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
