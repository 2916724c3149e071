package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Realtime     RealtimeConfig
	Directory    DirectoryConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory stores.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables Redis.
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	FacilityCacheTTL time.Duration
	NotifyChannel    string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Service     string
	Development bool
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig sizes the delivery pool and the optional email channel.
type NotificationConfig struct {
	EmailFrom    string
	ResendAPIKey string
	Workers      int
	QueueSize    int
	MaxAttempts  int
	RetryBase    time.Duration
}

// RealtimeConfig configures the live push listener.
type RealtimeConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DirectoryConfig points at an optional JSON file of facilities and users
// loaded into the directories at startup.
type DirectoryConfig struct {
	SeedFile string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cacheTTL, err := getEnvAsDuration("REDIS_FACILITY_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	retryBase, err := getEnvAsDuration("NOTIFY_RETRY_BASE", 200*time.Millisecond)
	if err != nil {
		return nil, err
	}

	env := getEnv("APP_ENV", "development")
	name := getEnv("APP_NAME", "facility-helpdesk")

	cfg := &Config{
		App: AppConfig{
			Name:                  name,
			Env:                   env,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:             os.Getenv("REDIS_ADDR"),
			Password:         os.Getenv("REDIS_PASSWORD"),
			DB:               redisDB,
			FacilityCacheTTL: cacheTTL,
			NotifyChannel:    getEnv("REDIS_NOTIFY_CHANNEL", "helpdesk:notifications"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Service:     name,
			Development: env == "development",
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			ResendAPIKey: os.Getenv("NOTIFY_RESEND_API_KEY"),
			Workers:      getEnvAsInt("NOTIFY_WORKERS", 4),
			QueueSize:    getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			MaxAttempts:  getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 5),
			RetryBase:    retryBase,
		},
		Realtime: RealtimeConfig{
			Host:           getEnv("REALTIME_HOST", "0.0.0.0"),
			Port:           getEnv("REALTIME_PORT", "8081"),
			AllowedOrigins: getEnvAsList("REALTIME_ALLOWED_ORIGINS"),
		},
		Directory: DirectoryConfig{
			SeedFile: os.Getenv("DIRECTORY_SEED_FILE"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the push listener bind address.
func (r RealtimeConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// EmailEnabled reports whether notifications are also mailed.
func (n NotificationConfig) EmailEnabled() bool {
	return n.ResendAPIKey != "" && n.EmailFrom != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
