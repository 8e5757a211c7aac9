package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Pricing   PricingConfig
	Orders    OrdersConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
	// MigrationsPath overrides the migrations embedded in the binary.
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers []string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
	// MetricInterval is how often metrics are pushed to the collector.
	MetricInterval time.Duration
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type PricingConfig struct {
	WaiveDelivery    bool
	SurchargePercent decimal.Decimal
	SurchargeMinimum decimal.Decimal
}

type OrdersConfig struct {
	NumberPrefix       string
	NumberMaxAttempts  int
	CurrencyPerPoint   decimal.Decimal
	RestockOnCancel    bool
	IdempotencyTTL     time.Duration
	IdempotencyPurge   time.Duration
	UseInMemoryStorage bool
}

type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
	MinAge   time.Duration
	Statuses []domain.OrderStatus
	Limit    int
}

type NotifyConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

const (
	defaultHTTPPort       = 8080
	defaultShutdownGrace  = 15
	defaultMigrationsPath = ""
	defaultAutoMigrate    = true
	defaultServiceName    = "storefront-api"
	defaultServiceVersion = "0.1.0"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOTelSampleRate = 1.0
	defaultMetricInterval = 30 * time.Second

	defaultOrderNumberPrefix   = "ORD"
	defaultOrderNumberAttempts = 5
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyPurge    = time.Hour
	defaultSchedulerInterval   = time.Hour
	defaultSchedulerMinAge     = 24 * time.Hour
	defaultSchedulerStatuses   = "pending,confirmed,processing,shipped"
	defaultSchedulerLimit      = 500
	defaultNotifyQueueSize     = 256
	defaultNotifyWorkers       = 2
	defaultNotifySendTimeout   = 10 * time.Second
)

var (
	defaultCurrencyPerPoint = decimal.NewFromInt(100)
	defaultSurchargePercent = decimal.NewFromInt(2)
	defaultSurchargeMinimum = decimal.NewFromInt(10)
)

// Load reads configuration from environment variables, applying defaults when needed.
// Variables from a .env file in the working directory fill in anything not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()
	kafkaCfg := loadKafkaConfig()
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	pricingCfg, err := loadPricingConfig()
	if err != nil {
		return nil, fmt.Errorf("loading pricing config: %w", err)
	}

	ordersCfg, err := loadOrdersConfig()
	if err != nil {
		return nil, fmt.Errorf("loading orders config: %w", err)
	}

	schedulerCfg, err := loadSchedulerConfig()
	if err != nil {
		return nil, fmt.Errorf("loading scheduler config: %w", err)
	}

	notifyCfg, err := loadNotifyConfig()
	if err != nil {
		return nil, fmt.Errorf("loading notification config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Kafka:     kafkaCfg,
		Telemetry: telCfg,
		Service:   serviceCfg,
		Pricing:   pricingCfg,
		Orders:    ordersCfg,
		Scheduler: schedulerCfg,
		Notify:    notifyCfg,
	}, nil
}

// PricingPolicy converts the pricing settings into the domain policy.
func (c PricingConfig) PricingPolicy() domain.PricingPolicy {
	return domain.PricingPolicy{
		WaiveDelivery:    c.WaiveDelivery,
		SurchargePercent: c.SurchargePercent,
		SurchargeMinimum: c.SurchargeMinimum,
	}
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

	return HTTPConfig{
		Port:          port,
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

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		brokers = strings.Split(value, ",")
	}

	return KafkaConfig{
		Brokers: brokers,
	}
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

	metricInterval, err := getDurationEnv("OTEL_METRIC_EXPORT_INTERVAL", defaultMetricInterval)
	if err != nil {
		return TelemetryConfig{}, err
	}

	return TelemetryConfig{
		LogLevel:       logLevel,
		OTelEndpoint:   otelEndpoint,
		EnableTracing:  enableTracing,
		EnableMetrics:  enableMetrics,
		SampleRate:     sampleRate,
		MetricInterval: metricInterval,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadPricingConfig() (PricingConfig, error) {
	percent, err := getDecimalEnv("PRICING_SURCHARGE_PERCENT", defaultSurchargePercent)
	if err != nil {
		return PricingConfig{}, err
	}
	minimum, err := getDecimalEnv("PRICING_SURCHARGE_MINIMUM", defaultSurchargeMinimum)
	if err != nil {
		return PricingConfig{}, err
	}

	return PricingConfig{
		WaiveDelivery:    getBoolEnv("PRICING_WAIVE_DELIVERY", true),
		SurchargePercent: percent,
		SurchargeMinimum: minimum,
	}, nil
}

func loadOrdersConfig() (OrdersConfig, error) {
	attempts, err := getIntEnv("ORDER_NUMBER_MAX_ATTEMPTS", defaultOrderNumberAttempts)
	if err != nil {
		return OrdersConfig{}, err
	}
	if attempts < 1 {
		return OrdersConfig{}, fmt.Errorf("invalid ORDER_NUMBER_MAX_ATTEMPTS: must be at least 1")
	}

	perPoint, err := getDecimalEnv("POINTS_CURRENCY_PER_POINT", defaultCurrencyPerPoint)
	if err != nil {
		return OrdersConfig{}, err
	}
	if !perPoint.IsPositive() {
		return OrdersConfig{}, fmt.Errorf("invalid POINTS_CURRENCY_PER_POINT: must be positive")
	}

	ttl, err := getDurationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	if err != nil {
		return OrdersConfig{}, err
	}

	// Zero disables the purge loop.
	purge, err := getDurationEnv("IDEMPOTENCY_PURGE_INTERVAL", defaultIdempotencyPurge)
	if err != nil {
		return OrdersConfig{}, err
	}

	return OrdersConfig{
		NumberPrefix:       strings.ToUpper(getEnvOrDefault("ORDER_NUMBER_PREFIX", defaultOrderNumberPrefix)),
		NumberMaxAttempts:  attempts,
		CurrencyPerPoint:   perPoint,
		RestockOnCancel:    getBoolEnv("ORDERS_RESTOCK_ON_CANCEL", true),
		IdempotencyTTL:     ttl,
		IdempotencyPurge:   purge,
		UseInMemoryStorage: getBoolEnv("USE_IN_MEMORY_STORAGE", false),
	}, nil
}

func loadSchedulerConfig() (SchedulerConfig, error) {
	interval, err := getDurationEnv("SCHEDULER_INTERVAL", defaultSchedulerInterval)
	if err != nil {
		return SchedulerConfig{}, err
	}
	if interval <= 0 {
		return SchedulerConfig{}, fmt.Errorf("invalid SCHEDULER_INTERVAL: must be positive")
	}

	minAge, err := getDurationEnv("SCHEDULER_MIN_AGE", defaultSchedulerMinAge)
	if err != nil {
		return SchedulerConfig{}, err
	}

	limit, err := getIntEnv("SCHEDULER_BATCH_LIMIT", defaultSchedulerLimit)
	if err != nil {
		return SchedulerConfig{}, err
	}

	var statuses []domain.OrderStatus
	for _, raw := range strings.Split(getEnvOrDefault("SCHEDULER_STATUSES", defaultSchedulerStatuses), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		status, ok := domain.ParseStatus(raw)
		if !ok {
			return SchedulerConfig{}, fmt.Errorf("invalid SCHEDULER_STATUSES: unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}

	return SchedulerConfig{
		Enabled:  getBoolEnv("SCHEDULER_ENABLED", true),
		Interval: interval,
		MinAge:   minAge,
		Statuses: statuses,
		Limit:    limit,
	}, nil
}

func loadNotifyConfig() (NotifyConfig, error) {
	queueSize, err := getIntEnv("NOTIFY_QUEUE_SIZE", defaultNotifyQueueSize)
	if err != nil {
		return NotifyConfig{}, err
	}
	workers, err := getIntEnv("NOTIFY_WORKERS", defaultNotifyWorkers)
	if err != nil {
		return NotifyConfig{}, err
	}
	timeout, err := getDurationEnv("NOTIFY_SEND_TIMEOUT", defaultNotifySendTimeout)
	if err != nil {
		return NotifyConfig{}, err
	}

	return NotifyConfig{
		QueueSize:   queueSize,
		Workers:     workers,
		SendTimeout: timeout,
	}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "storefront")
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

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
