package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// HS256の秘密鍵として受け付ける最小バイト数（256ビット）
const minJWTSecretBytes = 32

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// JWT
	JWTSecretKey  string // Base64エンコードされたHS256の秘密鍵
	JWTExpiration time.Duration

	// SMTP
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	SMTPAuth        bool
	SMTPStartTLS    bool
	SMTPMaxAttempts int // 一時的な送信失敗時の試行回数（初回を含む）
	MailFrom        string

	// Rate Limit（req/min）
	RateLimitAuth    int
	RateLimitGeneral int

	// Cleanup
	PendingAccountRetention time.Duration
	CleanupInterval         time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
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

	cfg.JWTSecretKey = os.Getenv("JWT_SECRET_KEY")
	if cfg.JWTSecretKey == "" {
		missing = append(missing, "JWT_SECRET_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	secret, err := base64.StdEncoding.DecodeString(cfg.JWTSecretKey)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET_KEY must be base64 encoded: %w", err)
	}
	if len(secret) < minJWTSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET_KEY must decode to at least %d bytes: got %d", minJWTSecretBytes, len(secret))
	}

	// Optional fields with defaults
	cfg.JWTExpiration = time.Duration(getEnvInt64("JWT_EXPIRATION_MS", 3600000)) * time.Millisecond
	cfg.SMTPHost = getEnvString("SMTP_HOST", "localhost")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = getEnvString("SMTP_USERNAME", "")
	cfg.SMTPPassword = getEnvString("SMTP_PASSWORD", "")
	cfg.SMTPAuth = getEnvBool("SMTP_AUTH", true)
	cfg.SMTPStartTLS = getEnvBool("SMTP_STARTTLS", true)
	cfg.MailFrom = getEnvString("MAIL_FROM", cfg.SMTPUsername)
	if cfg.MailFrom == "" {
		cfg.MailFrom = "noreply@localhost"
	}
	cfg.SMTPMaxAttempts = getEnvInt("SMTP_MAX_ATTEMPTS", 1)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.PendingAccountRetention = getEnvDuration("PENDING_ACCOUNT_RETENTION", 7*24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は0以下では動作できない数値設定を検査する。
func (c *Config) validate() error {
	positiveDurations := []struct {
		name string
		val  time.Duration
	}{
		{"JWT_EXPIRATION_MS", c.JWTExpiration},
		{"PENDING_ACCOUNT_RETENTION", c.PendingAccountRetention},
		{"CLEANUP_INTERVAL", c.CleanupInterval},
	}
	for _, d := range positiveDurations {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive: %v", d.name, d.val)
		}
	}

	positiveInts := []struct {
		name string
		val  int
	}{
		{"SMTP_MAX_ATTEMPTS", c.SMTPMaxAttempts},
		{"RATE_LIMIT_AUTH", c.RateLimitAuth},
		{"RATE_LIMIT_GENERAL", c.RateLimitGeneral},
	}
	for _, n := range positiveInts {
		if n.val <= 0 {
			return fmt.Errorf("%s must be positive: %d", n.name, n.val)
		}
	}
	return nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
