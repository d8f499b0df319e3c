package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration shared by the API and worker
// binaries.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Bus       BusConfig
	Redis     RedisConfig
	Saga      SagaConfig
	Payment   PaymentConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

// BusConfig selects the event bus backing. Driver is "memory" for a
// single-process deployment or "kafka" for a brokered one.
type BusConfig struct {
	Driver  string
	Brokers []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SagaConfig tunes the failure-correlation behavior. MarkerPath, when
// set, switches processed-event markers to an embedded BoltDB file.
type SagaConfig struct {
	CorrelationWindow time.Duration
	TransientRetries  int
	MarkerTTL         time.Duration
	MarkerPath        string
}

type PaymentConfig struct {
	BaseURL string
	Timeout time.Duration
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	defaultHTTPPort          = 8080
	defaultMetricsPath       = "/metrics"
	defaultShutdownGrace     = 15
	defaultMigrationsPath    = "migrations"
	defaultAutoMigrate       = true
	defaultServiceName       = "fulfillment-api"
	defaultServiceVersion    = "0.1.0"
	defaultEnvironment       = "development"
	defaultLogLevel          = "info"
	defaultOTelSampleRate    = 1.0
	defaultBusDriver         = "memory"
	defaultCorrelationWindow = 30 * time.Second
	defaultTransientRetries  = 3
	defaultMarkerTTL         = 24 * time.Hour
	defaultPaymentTimeout    = 10 * time.Second
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()
	busCfg := loadBusConfig()
	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("loading redis config: %w", err)
	}

	sagaCfg, err := loadSagaConfig()
	if err != nil {
		return nil, fmt.Errorf("loading saga config: %w", err)
	}

	paymentCfg, err := loadPaymentConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Bus:       busCfg,
		Redis:     redisCfg,
		Saga:      sagaCfg,
		Payment:   paymentCfg,
		Telemetry: telCfg,
		Service:   serviceCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	metricsPath := getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath)

	return HTTPConfig{
		Port:          port,
		MetricsPath:   metricsPath,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	autoMigrate := defaultAutoMigrate
	if value, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		autoMigrate = value == "true"
	}

	migrationsPath := getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath)

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: migrationsPath,
	}
}

func loadBusConfig() BusConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		brokers = strings.Split(value, ",")
	}

	return BusConfig{
		Driver:  getEnvOrDefault("BUS_DRIVER", defaultBusDriver),
		Brokers: brokers,
	}
}

func loadRedisConfig() (RedisConfig, error) {
	db := 0
	if value, ok := os.LookupEnv("REDIS_DB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		db = parsed
	}

	return RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", ""),
		Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		DB:       db,
	}, nil
}

func loadSagaConfig() (SagaConfig, error) {
	window := defaultCorrelationWindow
	if value, ok := os.LookupEnv("SAGA_CORRELATION_WINDOW"); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return SagaConfig{}, fmt.Errorf("invalid SAGA_CORRELATION_WINDOW: %w", err)
		}
		window = parsed
	}

	retries := defaultTransientRetries
	if value, ok := os.LookupEnv("SAGA_TRANSIENT_RETRY_LIMIT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return SagaConfig{}, fmt.Errorf("invalid SAGA_TRANSIENT_RETRY_LIMIT: %w", err)
		}
		retries = parsed
	}

	markerTTL := defaultMarkerTTL
	if value, ok := os.LookupEnv("SAGA_MARKER_TTL"); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return SagaConfig{}, fmt.Errorf("invalid SAGA_MARKER_TTL: %w", err)
		}
		markerTTL = parsed
	}

	return SagaConfig{
		CorrelationWindow: window,
		TransientRetries:  retries,
		MarkerTTL:         markerTTL,
		MarkerPath:        getEnvOrDefault("SAGA_MARKER_PATH", ""),
	}, nil
}

func loadPaymentConfig() (PaymentConfig, error) {
	timeout := defaultPaymentTimeout
	if value, ok := os.LookupEnv("PAYMENT_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return PaymentConfig{}, fmt.Errorf("invalid PAYMENT_TIMEOUT: %w", err)
		}
		timeout = parsed
	}

	return PaymentConfig{
		BaseURL: getEnvOrDefault("PAYMENT_BASE_URL", ""),
		Timeout: timeout,
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "fulfillment")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}
