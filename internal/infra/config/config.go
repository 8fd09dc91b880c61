package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StoreDriverFile     = "file"
	StoreDriverPostgres = "postgres"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	Port        string
	Environment string
	LogLevel    string

	StoreDriver string // "file" or "postgres"
	DataDir     string
	DatabaseURL string

	VAPIDSubject    string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushTTLSeconds  int

	CronSpecHourly      string // daily check-in pass
	CronSpecQuarterHour string // follow-up and active check-in passes
	DispatchConcurrency int

	AllowedOrigins     []string
	AdminAPIKey        string
	RateLimitPerMinute int

	AppName      string
	PayloadIcon  string
	PayloadBadge string

	// Operator bot; disabled when TelegramToken is empty.
	TelegramToken   string
	AdminTelegramID int64
}

// IsProduction reports whether the server runs with production defaults.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{
		Port:                getEnv("PORT", "3000"),
		Environment:         strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreDriver:         strings.ToLower(getEnv("STORE_DRIVER", StoreDriverFile)),
		DataDir:             getEnv("DATA_DIR", "./data"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		VAPIDSubject:        getEnv("VAPID_SUBJECT", "mailto:admin@example.com"),
		VAPIDPublicKey:      os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:     os.Getenv("VAPID_PRIVATE_KEY"),
		CronSpecHourly:      getEnv("CRON_SPEC_HOURLY", "0 * * * *"),
		CronSpecQuarterHour: getEnv("CRON_SPEC_QUARTER_HOUR", "*/15 * * * *"),
		AdminAPIKey:         os.Getenv("ADMIN_API_KEY"),
		AppName:             os.Getenv("APP_NAME"),
		PayloadIcon:         os.Getenv("PAYLOAD_ICON"),
		PayloadBadge:        os.Getenv("PAYLOAD_BADGE"),
		TelegramToken:       os.Getenv("TELEGRAM_TOKEN"),
	}

	var err error
	if cfg.PushTTLSeconds, err = getEnvInt("PUSH_TTL_SECONDS", 86400); err != nil {
		return nil, err
	}
	if cfg.DispatchConcurrency, err = getEnvInt("DISPATCH_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 100); err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}

	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set")
	}

	switch cfg.StoreDriver {
	case StoreDriverFile:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q, expected %q or %q", cfg.StoreDriver, StoreDriverFile, StoreDriverPostgres)
	}

	if cfg.TelegramToken != "" {
		adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID")
		if adminIDStr == "" {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_ID is not set")
		}
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return v, nil
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
