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
	Email      EmailConfig
	Storage    StorageConfig
	Quota      QuotaConfig
	Tracing    TracingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
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

// EncryptionConfig holds the age identity used to seal notification payloads
// before they are written to the job queue.
type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type EmailConfig struct {
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	FromAddress string
	FromName    string
	AppBaseURL  string
}

type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

type QuotaConfig struct {
	StrictLocking  bool
	LockTTLSeconds int
	ReconcileCron  string
}

type TracingConfig struct {
	ServiceName string
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

// Enabled reports whether SMTP delivery is configured.
func (e *EmailConfig) Enabled() bool {
	return e.SMTPHost != ""
}

func (e *EmailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", e.SMTPHost, e.SMTPPort)
}

// Enabled reports whether avatar uploads have somewhere to go.
func (s *StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

func (q *QuotaConfig) LockTTL() time.Duration {
	return time.Duration(q.LockTTLSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "roster")
	v.SetDefault("DATABASE_PASSWORD", "roster_secret")
	v.SetDefault("DATABASE_NAME", "roster")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("EMAIL_FROM_ADDRESS", "no-reply@localhost")
	v.SetDefault("EMAIL_FROM_NAME", "Roster")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("QUOTA_STRICT_LOCKING", true)
	v.SetDefault("QUOTA_LOCK_TTL_SECONDS", 10)
	v.SetDefault("QUOTA_RECONCILE_CRON", "*/15 * * * *")
	v.SetDefault("TRACING_SERVICE_NAME", "go-roster")

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
		Email: EmailConfig{
			SMTPHost:    v.GetString("SMTP_HOST"),
			SMTPPort:    v.GetInt("SMTP_PORT"),
			SMTPUser:    v.GetString("SMTP_USER"),
			SMTPPass:    v.GetString("SMTP_PASS"),
			FromAddress: v.GetString("EMAIL_FROM_ADDRESS"),
			FromName:    v.GetString("EMAIL_FROM_NAME"),
			AppBaseURL:  strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("STORAGE_BUCKET"),
			Region:          v.GetString("STORAGE_REGION"),
			Endpoint:        v.GetString("STORAGE_ENDPOINT"),
			AccessKeyID:     v.GetString("STORAGE_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("STORAGE_SECRET_ACCESS_KEY"),
			PublicBaseURL:   strings.TrimRight(v.GetString("STORAGE_PUBLIC_BASE_URL"), "/"),
		},
		Quota: QuotaConfig{
			StrictLocking:  v.GetBool("QUOTA_STRICT_LOCKING"),
			LockTTLSeconds: v.GetInt("QUOTA_LOCK_TTL_SECONDS"),
			ReconcileCron:  v.GetString("QUOTA_RECONCILE_CRON"),
		},
		Tracing: TracingConfig{
			ServiceName: v.GetString("TRACING_SERVICE_NAME"),
		},
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
