package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Version     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Bus         BusConfig
	Outbox      OutboxConfig
	Reminders   RemindersConfig
	Backend     BackendConfig
	ServiceAuth ServiceAuthConfig
	Notify      NotifyConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
	// ConnectAttempts bounds the startup connection retries.
	ConnectAttempts int
}

type RedisConfig struct {
	URL            string
	Password       string
	DB             int
	DialTimeout    time.Duration
	IdempotencyTTL time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// BusConfig points at the local pub/sub sidecar.
type BusConfig struct {
	Enabled        bool
	Host           string
	Port           int
	PubsubName     string
	PublishTimeout time.Duration
	HealthInterval time.Duration
}

// OutboxConfig controls the bbolt spool for events the gateway did not accept.
type OutboxConfig struct {
	Enabled      bool
	Path         string
	SyncInterval time.Duration
	BatchSize    int
	MaxRetry     int
	MaxAge       time.Duration
}

type RemindersConfig struct {
	Enabled      bool
	ScanInterval time.Duration
	BatchSize    int
}

// BackendConfig locates the owning task service for consumers that call it.
type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// ServiceAuthConfig signs service tokens when no user token is forwarded.
// An empty secret disables service tokens.
type ServiceAuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

type NotifyConfig struct {
	Channel    string
	WebhookURL string
	Timeout    time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
// defaultName and defaultPort let each binary keep its own identity.
func Load(defaultName, defaultPort string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", defaultName),
		Version:     getString("APP_VERSION", "1.0.0"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", defaultPort),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "tasks_db"),
			User:            getString("DB_USER", "tasks_user"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
			ConnectAttempts: getInt("DB_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			URL:            getString("REDIS_URL", "redis://localhost:6379"),
			Password:       os.Getenv("REDIS_PASSWORD"),
			DB:             getInt("REDIS_DB", 0),
			DialTimeout:    getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			IdempotencyTTL: getDuration("REDIS_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "taskstream"),
		},
		Bus: BusConfig{
			Enabled:        getBool("DAPR_ENABLED", true),
			Host:           getString("DAPR_HOST", "localhost"),
			Port:           getInt("DAPR_HTTP_PORT", 3500),
			PubsubName:     getString("PUBSUB_NAME", "kafka-pubsub"),
			PublishTimeout: getDuration("PUBLISH_TIMEOUT", 30*time.Second),
			HealthInterval: getDuration("GATEWAY_HEALTH_INTERVAL", 10*time.Second),
		},
		Outbox: OutboxConfig{
			Enabled:      getBool("OUTBOX_ENABLED", true),
			Path:         getString("OUTBOX_PATH", "./data/outbox.db"),
			SyncInterval: getDuration("OUTBOX_SYNC_INTERVAL", 30*time.Second),
			BatchSize:    getInt("OUTBOX_BATCH_SIZE", 50),
			MaxRetry:     getInt("OUTBOX_MAX_RETRIES", 5),
			MaxAge:       getDuration("OUTBOX_MAX_AGE", 24*time.Hour),
		},
		Reminders: RemindersConfig{
			Enabled:      getBool("REMINDERS_ENABLED", true),
			ScanInterval: getDuration("REMINDER_SCAN_INTERVAL", time.Minute),
			BatchSize:    getInt("REMINDER_BATCH_SIZE", 100),
		},
		Backend: BackendConfig{
			URL:     getString("BACKEND_URL", "http://localhost:8000"),
			Timeout: getDuration("BACKEND_TIMEOUT", 10*time.Second),
		},
		ServiceAuth: ServiceAuthConfig{
			Secret:   os.Getenv("SERVICE_TOKEN_SECRET"),
			TokenTTL: getDuration("SERVICE_TOKEN_TTL", 5*time.Minute),
		},
		Notify: NotifyConfig{
			Channel:    strings.ToLower(getString("NOTIFY_CHANNEL", "log")),
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
			Timeout:    getDuration("NOTIFY_TIMEOUT", 10*time.Second),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}
	if cfg.ServiceAuth.Secret == "" {
		cfg.ServiceAuth.Secret = cfg.JWT.Secret
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad(defaultName, defaultPort string) *Config {
	cfg, err := Load(defaultName, defaultPort)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Notify.Channel {
	case "log":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_CHANNEL=webhook")
		}
	default:
		return fmt.Errorf("unsupported NOTIFY_CHANNEL %q", c.Notify.Channel)
	}
	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		return fmt.Errorf("invalid DAPR_HTTP_PORT %d", c.Bus.Port)
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
