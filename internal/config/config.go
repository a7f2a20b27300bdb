package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the service.
type AppConfig struct {
	DatabaseDSN string
	Port        string
	JWTSecret   string
	LogLevel    string
	Environment string

	// Matching & dispatch
	DispatchBatchSize    int           // max candidates notified per dispatch round
	RedispatchMaxRetries int           // extra dispatch rounds allowed per alert after delivery failures
	OverNotifyFactor     float64       // outstanding active intents may not exceed units_required * factor
	ExpandCompatible     bool          // consult the ABO/Rh compatibility table instead of exact match
	SearchRadiusKm       float64       // donor search radius around the hospital
	FulfillmentUnits     int           // units credited per completed response
	DispatchTimeout      time.Duration // budget for one dispatch round, including deliveries

	// Lifecycle
	AlertTTL        time.Duration // alert age after which ExpireStale applies
	DonorCooldown   time.Duration // minimum gap between donations
	RetentionWindow time.Duration // terminal alerts older than this are archived

	// Scheduler cron specs
	CronSpecExpire    string
	CronSpecRetry     string
	CronSpecRetention string

	// Notification delivery
	WebhookURL     string
	NotifyTimeout  time.Duration
	DefaultAdminEmail    string
	DefaultAdminPassword string

	// CORS and websocket origin checks
	AllowedOrigins []string
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is not set")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}

	cfg.Port = envString("PORT", "3000")
	cfg.LogLevel = strings.ToLower(envString("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(envString("ENVIRONMENT", "development"))

	var err error
	if cfg.DispatchBatchSize, err = envInt("DISPATCH_BATCH_SIZE", 25); err != nil {
		return nil, err
	}
	if cfg.RedispatchMaxRetries, err = envInt("REDISPATCH_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.OverNotifyFactor, err = envFloat("OVER_NOTIFY_FACTOR", 3.0); err != nil {
		return nil, err
	}
	if cfg.SearchRadiusKm, err = envFloat("SEARCH_RADIUS_KM", 50); err != nil {
		return nil, err
	}
	if cfg.FulfillmentUnits, err = envInt("FULFILLMENT_UNITS", 1); err != nil {
		return nil, err
	}
	cfg.ExpandCompatible = envString("EXPAND_COMPATIBLE_GROUPS", "false") == "true"

	if cfg.AlertTTL, err = envDuration("ALERT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DonorCooldown, err = envDuration("DONOR_COOLDOWN", 90*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RetentionWindow, err = envDuration("RETENTION_WINDOW", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DispatchTimeout, err = envDuration("DISPATCH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = envDuration("NOTIFY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.CronSpecExpire = envString("CRON_SPEC_EXPIRE", "* * * * *")
	cfg.CronSpecRetry = envString("CRON_SPEC_RETRY", "*/5 * * * *")
	cfg.CronSpecRetention = envString("CRON_SPEC_RETENTION", "0 4 * * *")

	cfg.WebhookURL = os.Getenv("NOTIFY_WEBHOOK_URL")
	cfg.DefaultAdminEmail = envString("DEFAULT_ADMIN_EMAIL", "admin@bloodlink.local")
	cfg.DefaultAdminPassword = os.Getenv("DEFAULT_ADMIN_PASSWORD")

	cfg.AllowedOrigins = loadAllowedOrigins()

	return cfg, nil
}

// loadAllowedOrigins merges the local dev origins with CLIENT_URL and the
// comma-separated ALLOWED_ORIGINS list.
func loadAllowedOrigins() []string {
	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	if clientURL := os.Getenv("CLIENT_URL"); clientURL != "" {
		origins = append(origins, clientURL)
	}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
