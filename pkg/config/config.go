package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Cloudflare CloudflareConfig
	Storage    StorageConfig
	SMTP       SMTPConfig
	Webhook    WebhookConfig
	Cache      CacheConfig
	Worker     WorkerConfig
	Circle     CircleConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	PublicURL      string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// CloudflareConfig points at the SaaS zone that custom hostnames hang off.
type CloudflareConfig struct {
	APIToken string
	ZoneID   string

	// CNAMETarget is what customers point their domain at.
	CNAMETarget string
}

// StorageConfig selects where uploaded images live. Provider is "azure" or
// "s3". For Azure, an empty ConnectionString means AccountURL is used with
// the default credential chain; for S3, empty keys do the same.
type StorageConfig struct {
	Provider         string
	AccountURL       string
	ConnectionString string
	Container        string
	PublicBaseURL    string
	MaxUploadMB      int

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	TLS      bool
}

type WebhookConfig struct {
	PaymentSecret string
}

type CacheConfig struct {
	EntitlementsTTLSeconds int
}

type WorkerConfig struct {
	Concurrency          int
	DomainSweepCron      string
	DomainVerifyAttempts int
}

type CircleConfig struct {
	BaseURL string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (c *CloudflareConfig) Enabled() bool {
	return c.APIToken != "" && c.ZoneID != ""
}

func (s *StorageConfig) Enabled() bool {
	if s.Provider == "s3" {
		return s.S3Bucket != ""
	}
	return s.ConnectionString != "" || s.AccountURL != ""
}

func (s *StorageConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

func (s *SMTPConfig) Enabled() bool {
	return s.Host != ""
}

func (c *CacheConfig) EntitlementsTTL() time.Duration {
	return time.Duration(c.EntitlementsTTLSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_PUBLIC_URL", "http://localhost:3000")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "funnels")
	v.SetDefault("DATABASE_PASSWORD", "funnels_secret")
	v.SetDefault("DATABASE_NAME", "funnels")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("CLOUDFLARE_API_TOKEN", "")
	v.SetDefault("CLOUDFLARE_ZONE_ID", "")
	v.SetDefault("CLOUDFLARE_CNAME_TARGET", "proxy.funnels.local")
	v.SetDefault("STORAGE_PROVIDER", "azure")
	v.SetDefault("STORAGE_ACCOUNT_URL", "")
	v.SetDefault("STORAGE_CONNECTION_STRING", "")
	v.SetDefault("STORAGE_CONTAINER", "images")
	v.SetDefault("STORAGE_PUBLIC_BASE_URL", "")
	v.SetDefault("STORAGE_MAX_UPLOAD_MB", 10)
	v.SetDefault("STORAGE_S3_BUCKET", "")
	v.SetDefault("STORAGE_S3_REGION", "us-east-1")
	v.SetDefault("STORAGE_S3_ENDPOINT", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "no-reply@funnels.local")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_TLS", true)
	v.SetDefault("WEBHOOK_PAYMENT_SECRET", "")
	v.SetDefault("CACHE_ENTITLEMENTS_TTL_SECONDS", 300)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_DOMAIN_SWEEP_CRON", "*/15 * * * *")
	v.SetDefault("WORKER_DOMAIN_VERIFY_ATTEMPTS", 12)
	v.SetDefault("CIRCLE_BASE_URL", "https://app.circle.so")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			PublicURL:      strings.TrimRight(v.GetString("SERVER_PUBLIC_URL"), "/"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Cloudflare: CloudflareConfig{
			APIToken:    v.GetString("CLOUDFLARE_API_TOKEN"),
			ZoneID:      v.GetString("CLOUDFLARE_ZONE_ID"),
			CNAMETarget: v.GetString("CLOUDFLARE_CNAME_TARGET"),
		},
		Storage: StorageConfig{
			Provider:          strings.ToLower(v.GetString("STORAGE_PROVIDER")),
			AccountURL:        v.GetString("STORAGE_ACCOUNT_URL"),
			ConnectionString:  v.GetString("STORAGE_CONNECTION_STRING"),
			Container:         v.GetString("STORAGE_CONTAINER"),
			PublicBaseURL:     strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
			MaxUploadMB:       v.GetInt("STORAGE_MAX_UPLOAD_MB"),
			S3Bucket:          v.GetString("STORAGE_S3_BUCKET"),
			S3Region:          v.GetString("STORAGE_S3_REGION"),
			S3Endpoint:        v.GetString("STORAGE_S3_ENDPOINT"),
			S3AccessKeyID:     v.GetString("STORAGE_S3_ACCESS_KEY_ID"),
			S3SecretAccessKey: v.GetString("STORAGE_S3_SECRET_ACCESS_KEY"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			From:     v.GetString("SMTP_FROM"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			TLS:      v.GetBool("SMTP_TLS"),
		},
		Webhook: WebhookConfig{
			PaymentSecret: v.GetString("WEBHOOK_PAYMENT_SECRET"),
		},
		Cache: CacheConfig{
			EntitlementsTTLSeconds: v.GetInt("CACHE_ENTITLEMENTS_TTL_SECONDS"),
		},
		Worker: WorkerConfig{
			Concurrency:          v.GetInt("WORKER_CONCURRENCY"),
			DomainSweepCron:      v.GetString("WORKER_DOMAIN_SWEEP_CRON"),
			DomainVerifyAttempts: v.GetInt("WORKER_DOMAIN_VERIFY_ATTEMPTS"),
		},
		Circle: CircleConfig{
			BaseURL: strings.TrimRight(v.GetString("CIRCLE_BASE_URL"), "/"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
