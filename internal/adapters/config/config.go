package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"premiummeter/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	ClickHouse    ClickHouseConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	Query         QueryConfig
	QueryLog      QueryLogConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"premiummeter"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// AutoMigrate applies the embedded schema migrations on startup
	AutoMigrate bool `envconfig:"AUTO_MIGRATE" default:"false"`
}

type HTTPConfig struct {
	Port         int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"premiums"`
}

// PostgresConfig points at the ticker catalog. The catalog check is skipped when disabled.
type PostgresConfig struct {
	Enabled  bool   `envconfig:"POSTGRES_ENABLED" default:"false"`
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"premiummeter"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB" default:"premiummeter"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"true"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int           `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"REDIS_CACHE_TTL" default:"5m"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig configures the ingestion-event consumer used for cache invalidation
type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"premiummeter-query"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// QueryConfig holds the engine parameters
type QueryConfig struct {
	RiskFreeRate         float64       `envconfig:"QUERY_RISK_FREE_RATE" default:"0.045"`
	DayCount             string        `envconfig:"QUERY_DAY_COUNT" default:"calendar"` // calendar|trading
	DefaultToleranceDays int           `envconfig:"QUERY_DEFAULT_TOLERANCE_DAYS" default:"3"`
	DefaultLookbackDays  int           `envconfig:"QUERY_DEFAULT_LOOKBACK_DAYS" default:"30"`
	MaxLookbackDays      int           `envconfig:"QUERY_MAX_LOOKBACK_DAYS" default:"3650"`
	MaxNearestCount      int           `envconfig:"QUERY_MAX_NEAREST_COUNT" default:"50"`
	ChartDurations       []int         `envconfig:"QUERY_CHART_DURATIONS" default:"7,14,30,45,60,90"`
	StoreTimeout         time.Duration `envconfig:"QUERY_STORE_TIMEOUT" default:"15s"`
	MaxConcurrentReads   int           `envconfig:"QUERY_MAX_CONCURRENT_READS" default:"4"`
	StoreReadsPerSecond  float64       `envconfig:"QUERY_STORE_READS_PER_SECOND" default:"50"`
	StoreReadBurst       int           `envconfig:"QUERY_STORE_READ_BURST" default:"10"`
}

// QueryLogConfig controls the ClickHouse query log batch writer
type QueryLogConfig struct {
	Enabled       bool          `envconfig:"QUERY_LOG_ENABLED" default:"true"`
	MaxBatchSize  int           `envconfig:"QUERY_LOG_MAX_BATCH_SIZE" default:"200"`
	FlushInterval time.Duration `envconfig:"QUERY_LOG_FLUSH_INTERVAL" default:"5s"`
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	var verrs errors.ValidationErrors

	switch c.Query.DayCount {
	case "calendar", "trading":
	default:
		verrs.Add("QUERY_DAY_COUNT", "must be calendar or trading", c.Query.DayCount)
	}
	if c.Query.DefaultToleranceDays < 0 {
		verrs.Add("QUERY_DEFAULT_TOLERANCE_DAYS", "must be >= 0", c.Query.DefaultToleranceDays)
	}
	if c.Query.DefaultLookbackDays < 1 || c.Query.DefaultLookbackDays > c.Query.MaxLookbackDays {
		verrs.Add("QUERY_DEFAULT_LOOKBACK_DAYS", "must be between 1 and QUERY_MAX_LOOKBACK_DAYS", c.Query.DefaultLookbackDays)
	}
	if c.Query.MaxConcurrentReads < 1 {
		verrs.Add("QUERY_MAX_CONCURRENT_READS", "must be >= 1", c.Query.MaxConcurrentReads)
	}
	if c.Query.StoreReadsPerSecond <= 0 {
		verrs.Add("QUERY_STORE_READS_PER_SECOND", "must be > 0", c.Query.StoreReadsPerSecond)
	}
	for _, d := range c.Query.ChartDurations {
		if d < 0 {
			verrs.Add("QUERY_CHART_DURATIONS", "durations must be >= 0", d)
			break
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		verrs.Add("KAFKA_BROKERS", "required when KAFKA_ENABLED", nil)
	}

	return verrs.ToError()
}

// Load reads configuration from environment variables.
// A .env file is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &cfg, nil
}
