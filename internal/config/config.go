// Package config loads the marketplace configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	pkgconfig "github.com/gule/marketplace/pkg/config"
	"github.com/gule/marketplace/pkg/database"
	"github.com/gule/marketplace/pkg/tracing"
)

const (
	// DevJWTSecret is the placeholder secret accepted only in development.
	DevJWTSecret = "change-this-to-a-secure-secret"

	minJWTSecretLen = 32
)

// Config holds all configuration for the marketplace server.
type Config struct {
	ServiceName    string `env:"SERVICE_NAME" envDefault:"gule-marketplace"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort            int           `env:"HTTP_PORT" envDefault:"8080"`
	HTTPReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	CORSAllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	RateLimitRPS        float64       `env:"RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst      int           `env:"RATE_LIMIT_BURST" envDefault:"10"`
	PprofAllowedCIDRs   []string      `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`
	MetricsEnabled      bool          `env:"METRICS_ENABLED" envDefault:"true"`
	MigrateOnStart      bool          `env:"MIGRATE_ON_START" envDefault:"true"`
	StoreDriver         string        `env:"STORE_DRIVER" envDefault:"postgres"`
	SlowQueryThreshold  time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`
	RestockAfterShipped bool          `env:"RESTOCK_AFTER_SHIPMENT" envDefault:"false"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"gule"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"gule"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"gule"`
	PostgresSSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns       int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns       int32  `env:"DB_MIN_CONNS" envDefault:"2"`

	// Redis
	RedisHost      string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	CartTTL        time.Duration `env:"CART_TTL" envDefault:"168h"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret    string        `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTAccessTTL time.Duration `env:"JWT_ACCESS_TTL" envDefault:"1h"`

	// Search
	SearchEngine       string `env:"SEARCH_ENGINE" envDefault:"store"`
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"gule_products"`

	// Audit
	AuditSink string `env:"AUDIT_SINK" envDefault:"store"`

	// Email
	SMTPHost        string        `env:"SMTP_HOST"`
	SMTPPort        int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername    string        `env:"SMTP_USERNAME"`
	SMTPPassword    string        `env:"SMTP_PASSWORD"`
	MailFrom        string        `env:"MAIL_FROM" envDefault:"Gule <no-reply@gule.example>"`
	MailWorkers     int           `env:"MAIL_WORKERS" envDefault:"2"`
	MailQueueSize   int           `env:"MAIL_QUEUE_SIZE" envDefault:"256"`
	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT" envDefault:"15s"`

	// Escrow
	EscrowBaseURL string        `env:"ESCROW_BASE_URL"`
	EscrowTimeout time.Duration `env:"ESCROW_TIMEOUT" envDefault:"5s"`

	// Auto-complete
	AutoCompleteAfter    time.Duration `env:"AUTO_COMPLETE_AFTER" envDefault:"336h"`
	AutoCompleteSchedule string        `env:"AUTO_COMPLETE_SCHEDULE" envDefault:"@every 1h"`
	SchedulerTimezone    string        `env:"SCHEDULER_TIMEZONE" envDefault:"Europe/Istanbul"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelInsecure   bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithEnv(nil)
}

// LoadWithEnv is Load with an explicit environment; nil reads the process
// environment.
func LoadWithEnv(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithEnv(cfg, environ); err != nil {
		return nil, fmt.Errorf("load marketplace config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field rules. It runs as part of Load.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.HTTPPort >= 1 && c.HTTPPort <= 65535, "invalid HTTP port: %d", c.HTTPPort)
	check(slices.Contains([]string{"postgres", "memory"}, c.StoreDriver), "STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver)
	check(slices.Contains([]string{"store", "memory", "elasticsearch"}, c.SearchEngine), "SEARCH_ENGINE must be store, memory or elasticsearch, got %q", c.SearchEngine)
	check(slices.Contains([]string{"store", "log", "none"}, c.AuditSink), "AUDIT_SINK must be store, log or none, got %q", c.AuditSink)
	check(c.JWTAccessTTL > 0, "JWT_ACCESS_TTL must be positive")
	check(c.CartTTL > 0 && c.IdempotencyTTL > 0, "CART_TTL and IDEMPOTENCY_TTL must be positive")
	check(c.MailWorkers > 0 && c.MailQueueSize > 0, "MAIL_WORKERS and MAIL_QUEUE_SIZE must be positive")
	check(c.AutoCompleteAfter > 0, "AUTO_COMPLETE_AFTER must be positive")
	check(c.OTelSampleRate >= 0 && c.OTelSampleRate <= 1, "OTEL_SAMPLE_RATE must be within [0, 1], got %v", c.OTelSampleRate)
	check(c.RateLimitRPS > 0 && c.RateLimitBurst > 0, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	check(c.DBMinConns <= c.DBMaxConns, "DB_MIN_CONNS exceeds DB_MAX_CONNS")
	if c.KafkaEnabled {
		check(len(c.KafkaBrokers) > 0, "KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.AutoCompleteSchedule != "" {
		_, err := cron.ParseStandard(c.AutoCompleteSchedule)
		check(err == nil, "invalid AUTO_COMPLETE_SCHEDULE %q: %v", c.AutoCompleteSchedule, err)
	}
	_, err := time.LoadLocation(c.SchedulerTimezone)
	check(err == nil, "invalid SCHEDULER_TIMEZONE %q", c.SchedulerTimezone)

	// In non-development environments, require an explicitly set, strong JWT secret.
	if !c.IsDevelopment() {
		check(c.JWTSecret != DevJWTSecret, "JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		check(len(c.JWTSecret) >= minJWTSecretLen, "JWT_SECRET must be at least %d characters long, got %d", minJWTSecretLen, len(c.JWTSecret))
		check(c.StoreDriver != "memory", "STORE_DRIVER=memory is only allowed in development")
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	pg.MaxConns = c.DBMaxConns
	pg.MinConns = c.DBMinConns
	return pg
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Tracing returns the OpenTelemetry configuration.
func (c *Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:        c.OTelEnabled,
		ServiceName:    c.ServiceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		Insecure:       c.OTelInsecure,
		SampleRate:     c.OTelSampleRate,
	}
}

// SMTPEnabled reports whether email goes out over SMTP rather than to the
// log.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}
