package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultServerPort        = 8080
	DefaultDatabaseDriver    = "postgres"
	DefaultNATSSubjectPrefix = "tournaments.notify"
	DefaultGameClientURL     = "/#/pong"
	DefaultNotifyQueueSize   = 1024
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	MigrateOnStart bool
	JWTSecretKey   string
	ServerPort     int
	LogLevel       slog.Level

	CORSAllowedOrigins []string

	// NATS включается, только если задан NATSURL.
	NATSURL           string
	NATSSubjectPrefix string
	NotifyQueueSize   int

	GameClientURL string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// ArchiveEnabled reports whether the R2 bracket archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	// Загружаем .env файл, если он есть. Ошибку не считаем фатальной.
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from a variable lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DatabaseDriver:    valueOr(getenv("DATABASE_DRIVER"), DefaultDatabaseDriver),
		DatabaseURL:       getenv("DATABASE_URL"),
		JWTSecretKey:      getenv("JWT_SECRET_KEY"),
		NATSURL:           getenv("NATS_URL"),
		NATSSubjectPrefix: valueOr(getenv("NATS_SUBJECT_PREFIX"), DefaultNATSSubjectPrefix),
		GameClientURL:     valueOr(getenv("GAME_CLIENT_URL"), DefaultGameClientURL),
		R2AccountID:       getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   getenv("R2_PUBLIC_BASE_URL"),
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite3" {
		return nil, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite3, got %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intValue(getenv("SERVER_PORT"), DefaultServerPort)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	if err := cfg.LogLevel.UnmarshalText([]byte(valueOr(getenv("LOG_LEVEL"), "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
	}

	queueSize, err := intValue(getenv("NOTIFY_QUEUE_SIZE"), DefaultNotifyQueueSize)
	if err != nil || queueSize <= 0 {
		return nil, fmt.Errorf("NOTIFY_QUEUE_SIZE must be a positive integer, got %q", getenv("NOTIFY_QUEUE_SIZE"))
	}
	cfg.NotifyQueueSize = queueSize

	cfg.MigrateOnStart, err = boolValue(getenv("MIGRATE_ON_START"), true)
	if err != nil {
		return nil, fmt.Errorf("invalid MIGRATE_ON_START environment variable: %w", err)
	}

	cfg.CORSAllowedOrigins = splitList(valueOr(getenv("CORS_ALLOWED_ORIGINS"), "*"))

	r2 := []string{cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2BucketName, cfg.R2PublicBaseURL}
	set := 0
	for _, v := range r2 {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != len(r2) {
		return nil, fmt.Errorf("R2 archive configuration is partial: set all R2_* variables or none")
	}

	return cfg, nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func intValue(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func boolValue(value string, fallback bool) (bool, error) {
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseBool(value)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
