package bootstrap

import (
	"context"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	chclient "premiummeter/internal/adapters/clickhouse"
	"premiummeter/internal/adapters/config"
	errnoop "premiummeter/internal/adapters/errors/noop"
	"premiummeter/internal/adapters/errors/sentry"
	"premiummeter/internal/adapters/kafka"
	pgclient "premiummeter/internal/adapters/postgres"
	redisclient "premiummeter/internal/adapters/redis"
	"premiummeter/internal/api"
	"premiummeter/internal/api/health"
	"premiummeter/internal/api/query"
	"premiummeter/internal/consumers"
	"premiummeter/internal/domain/premium"
	"premiummeter/internal/engine/expiry"
	"premiummeter/internal/engine/greeks"
	"premiummeter/internal/metrics"
	chrepo "premiummeter/internal/repository/clickhouse"
	pgrepo "premiummeter/internal/repository/postgres"
	redisrepo "premiummeter/internal/repository/redis"
	"premiummeter/internal/services/premium_query"
	"premiummeter/migrations"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

// MustInitConfig loads configuration and initializes logging and error tracking
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)

	metrics.Init()
}

// MustInitInfrastructure connects to the data stores.
// ClickHouse is required; Postgres and Redis only when enabled.
func (c *Container) MustInitInfrastructure() {
	var err error

	c.Log.Info("Connecting to ClickHouse...")
	c.CH, err = chclient.NewClient(c.Context, c.Config.ClickHouse)
	if err != nil {
		c.Log.Fatalf("failed to connect clickhouse: %v", err)
	}
	c.Log.Infow("✓ ClickHouse connected", "database", c.CH.Database())

	if c.Config.Postgres.Enabled {
		c.Log.Info("Connecting to PostgreSQL...")
		c.PG, err = pgclient.NewClient(c.Context, c.Config.Postgres)
		if err != nil {
			c.Log.Fatalf("failed to connect postgres: %v", err)
		}
		c.Log.Info("✓ PostgreSQL connected")
	} else {
		c.Log.Info("PostgreSQL disabled, ticker catalog check is off")
	}

	if c.Config.Redis.Enabled {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(c.Context, c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis disabled, result cache and query counter are off")
	}

	if c.Config.App.AutoMigrate {
		if err := c.applyMigrations(c.Context); err != nil {
			c.Log.Fatalf("failed to apply migrations: %v", err)
		}
	}
}

// applyMigrations runs the embedded schema against every enabled store
func (c *Container) applyMigrations(ctx context.Context) error {
	n, err := migrations.Apply(ctx, migrations.ClickHouse, func(ctx context.Context, stmt string) error {
		return c.CH.Conn().Exec(ctx, stmt)
	})
	if err != nil {
		return err
	}
	c.Log.Infow("✓ ClickHouse migrations applied", "statements", n)

	if c.PG == nil {
		return nil
	}
	n, err = migrations.Apply(ctx, migrations.Postgres, func(ctx context.Context, stmt string) error {
		_, err := c.PG.DB().ExecContext(ctx, stmt)
		return err
	})
	if err != nil {
		return err
	}
	c.Log.Infow("✓ PostgreSQL migrations applied", "statements", n)
	return nil
}

// MustInitRepositories creates the repositories over the connected stores
func (c *Container) MustInitRepositories() {
	c.Repos.PremiumRecords = chrepo.NewPremiumRecordRepository(c.CH.Conn())
	c.Repos.QueryLog = chrepo.NewQueryLogRepository(c.CH.Conn())

	if c.PG != nil {
		c.Repos.Stocks = pgrepo.NewStockRepository(c.PG.DB())
	}
	if c.Redis != nil {
		c.Repos.QueryCache = redisrepo.NewQueryCacheRepository(c.Redis.Client())
		c.Repos.QueryCounter = redisrepo.NewQueryCounterRepository(c.Redis.Client())
	}

	c.Log.Info("✓ Repositories initialized")
}

// MustInitAdapters creates the Kafka consumer when Kafka is enabled
func (c *Container) MustInitAdapters() {
	if c.Config.Kafka.Enabled {
		c.Adapters.IngestionConsumer = provideKafkaConsumer(c.Config, kafka.TopicPremiumsIngested, c.Log)
	}
}

// MustInitServices builds the query engine and the service that drives it
func (c *Container) MustInitServices() {
	counter, err := expiry.NewDayCounter(c.Config.Query.DayCount)
	if err != nil {
		c.Log.Fatalf("invalid day count: %v", err)
	}
	matcher := expiry.NewMatcher(counter)
	calc := greeks.NewCalculator(c.Config.Query.RiskFreeRate, counter.DaysPerYear())

	opts := []premium_query.Option{
		premium_query.WithLimiter(rate.NewLimiter(
			rate.Limit(c.Config.Query.StoreReadsPerSecond),
			c.Config.Query.StoreReadBurst,
		)),
	}
	if c.Repos.Stocks != nil {
		opts = append(opts, premium_query.WithCatalog(c.Repos.Stocks))
	}
	if c.Repos.QueryCache != nil {
		opts = append(opts, premium_query.WithCache(c.Repos.QueryCache))
	}
	if c.Repos.QueryCounter != nil {
		opts = append(opts, premium_query.WithCounter(c.Repos.QueryCounter))
	}
	if c.Config.QueryLog.Enabled {
		c.Background.QueryLogWriter = chrepo.NewQueryLogWriter(c.Repos.QueryLog, chrepo.QueryLogWriterConfig{
			MaxBatchSize:  c.Config.QueryLog.MaxBatchSize,
			FlushInterval: c.Config.QueryLog.FlushInterval,
		}, c.Log)
		opts = append(opts, premium_query.WithQueryLog(c.Background.QueryLogWriter))
	}

	c.Services.PremiumQuery = premium_query.NewService(
		c.Repos.PremiumRecords,
		matcher,
		calc,
		serviceConfig(c.Config),
		c.Log,
		opts...,
	)

	c.Log.Infow("✓ Premium query service initialized",
		"day_count", counter.Name(),
		"risk_free_rate", c.Config.Query.RiskFreeRate,
		"cache", c.Repos.QueryCache != nil,
		"catalog", c.Repos.Stocks != nil,
		"query_log", c.Config.QueryLog.Enabled,
	)
}

// MustInitApplication wires the HTTP layer and custom metrics
func (c *Container) MustInitApplication() {
	c.Application.HealthHandler = health.New(c.Log, c.Config.App.Name, c.Config.App.Version, c.healthComponents()...)

	var queryLog premium.QueryLogReader
	if c.Config.QueryLog.Enabled {
		queryLog = c.Repos.QueryLog
	}
	c.Application.QueryHandler = query.NewHandler(c.Services.PremiumQuery, queryLog, c.Log)

	c.Application.HTTPServer = provideHTTPServer(c.Config, c.Application.HealthHandler, c.Application.QueryHandler, c.Log)

	var counter premium.QueryCounter
	if c.Repos.QueryCounter != nil {
		counter = c.Repos.QueryCounter
	}
	collector := metrics.NewCustomCollector(c.Log, c.pgDB(), c.CH.Conn(), counter)
	metrics.RegisterCustomCollector(collector)

	c.Log.Info("✓ Application layer initialized")
}

// MustInitBackground creates the ingestion consumer
func (c *Container) MustInitBackground() {
	if c.Adapters.IngestionConsumer == nil {
		return
	}
	c.Background.IngestionSvc = consumers.NewIngestionConsumer(c.Adapters.IngestionConsumer, c.Services.PremiumQuery, c.Log)
	c.Log.Info("✓ Background consumers initialized")
}

func (c *Container) healthComponents() []health.Component {
	components := []health.Component{
		{Name: "clickhouse", Checker: c.CH, Critical: true},
	}
	if c.PG != nil {
		components = append(components, health.Component{Name: "postgres", Checker: c.PG})
	}
	if c.Redis != nil {
		components = append(components, health.Component{Name: "redis", Checker: c.Redis})
	}
	return components
}

func (c *Container) pgDB() *sqlx.DB {
	if c.PG == nil {
		return nil
	}
	return c.PG.DB()
}

func serviceConfig(cfg *config.Config) premium_query.Config {
	return premium_query.Config{
		DefaultToleranceDays: cfg.Query.DefaultToleranceDays,
		DefaultLookbackDays:  cfg.Query.DefaultLookbackDays,
		MaxLookbackDays:      cfg.Query.MaxLookbackDays,
		MaxNearestCount:      cfg.Query.MaxNearestCount,
		ChartDurations:       cfg.Query.ChartDurations,
		StoreTimeout:         cfg.Query.StoreTimeout,
		MaxConcurrentReads:   cfg.Query.MaxConcurrentReads,
		CacheTTL:             cfg.Redis.CacheTTL,
	}
}

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaConsumer(cfg *config.Config, topic string, log *logger.Logger) *kafka.Consumer {
	log.Infow("Initializing Kafka consumer", "topic", topic)

	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
		Topic:   topic,
	}, log)
	log.Infow("✓ Kafka consumer initialized", "topic", topic, "group_id", cfg.Kafka.GroupID)
	return consumer
}

func provideHTTPServer(cfg *config.Config, healthHandler *health.Handler, queryHandler *query.Handler, log *logger.Logger) *api.Server {
	return api.NewServer(api.ServerConfig{
		Port:         cfg.HTTP.Port,
		ServiceName:  cfg.App.Name,
		Version:      cfg.App.Version,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, healthHandler, queryHandler, log)
}
