package bootstrap

import (
	"context"
	"sync"

	chclient "premiummeter/internal/adapters/clickhouse"
	"premiummeter/internal/adapters/config"
	"premiummeter/internal/adapters/kafka"
	pgclient "premiummeter/internal/adapters/postgres"
	redisclient "premiummeter/internal/adapters/redis"
	"premiummeter/internal/api"
	"premiummeter/internal/api/health"
	"premiummeter/internal/api/query"
	"premiummeter/internal/consumers"
	chrepo "premiummeter/internal/repository/clickhouse"
	pgrepo "premiummeter/internal/repository/postgres"
	redisrepo "premiummeter/internal/repository/redis"
	"premiummeter/internal/services/premium_query"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores). PG and Redis are nil when disabled.
	CH    *chclient.Client
	PG    *pgclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Services    *Services
	Adapters    *Adapters
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups all domain repositories
type Repositories struct {
	PremiumRecords *chrepo.PremiumRecordRepository
	QueryLog       *chrepo.QueryLogRepository
	Stocks         *pgrepo.StockRepository         // nil without Postgres
	QueryCache     *redisrepo.QueryCacheRepository // nil without Redis
	QueryCounter   *redisrepo.QueryCounterRepository
}

// Services groups all domain services
type Services struct {
	PremiumQuery *premium_query.Service
}

// Adapters groups all external adapters
type Adapters struct {
	IngestionConsumer *kafka.Consumer // nil when Kafka is disabled
}

// Application groups application layer components
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
	QueryHandler  *query.Handler
}

// Background groups all background processing components
type Background struct {
	QueryLogWriter *chrepo.QueryLogWriter       // nil when the query log is disabled
	IngestionSvc   *consumers.IngestionConsumer // nil when Kafka is disabled
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Services:    &Services{},
		Adapters:    &Adapters{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts all background components
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if w := c.Background.QueryLogWriter; w != nil {
		w.Start(c.Context)
	}

	c.startConsumers()

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	c.Log.Info("✓ All systems operational")
	return nil
}

// startConsumers starts the Kafka consumers in background goroutines
func (c *Container) startConsumers() {
	svc := c.Background.IngestionSvc
	if svc == nil {
		c.Log.Info("Kafka disabled, cache invalidation relies on TTL only")
		return
	}

	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := svc.Start(c.Context); err != nil && c.Context.Err() == nil {
			c.Log.Errorw("Ingestion consumer failed", "error", err)
		}
	}()

	c.Log.Infow("✓ Event consumers started", "consumers", []string{kafka.TopicPremiumsIngested})
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(
		c.WG,
		c.Application.HTTPServer,
		c.Adapters.IngestionConsumer,
		c.Background.QueryLogWriter,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}
