package metrics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/logger"
)

// CustomCollector collects store-level gauges at scrape time.
// Every source is optional; a nil source contributes nothing.
type CustomCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn
	counter    premium.QueryCounter
	now        func() time.Time

	// Descriptors
	trackedTickers *prometheus.Desc
	records24h     *prometheus.Desc
	queriesToday   *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn, counter premium.QueryCounter) *CustomCollector {
	return &CustomCollector{
		log:        log.With("component", "metrics_collector"),
		postgres:   postgres,
		clickhouse: clickhouse,
		counter:    counter,
		now:        time.Now,

		trackedTickers: prometheus.NewDesc(
			"premiummeter_catalog_tickers",
			"Tickers in the catalog by status",
			[]string{"status"}, nil,
		),
		records24h: prometheus.NewDesc(
			"premiummeter_premium_records_24h",
			"Premium observations collected in the last 24h",
			[]string{"option_type"}, nil,
		),
		queriesToday: prometheus.NewDesc(
			"premiummeter_queries_today",
			"Queries served since UTC midnight",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.trackedTickers
	ch <- c.records24h
	ch <- c.queriesToday
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.postgres != nil {
		c.collectCatalog(ctx, ch)
	}
	if c.clickhouse != nil {
		c.collectRecordVolume(ctx, ch)
	}
	if c.counter != nil {
		c.collectQueriesToday(ctx, ch)
	}
}

func (c *CustomCollector) collectCatalog(ctx context.Context, ch chan<- prometheus.Metric) {
	type catalogStat struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}

	var stats []catalogStat
	err := c.postgres.SelectContext(ctx, &stats, `
		SELECT status, COUNT(*) as count
		FROM stocks
		GROUP BY status
	`)
	if err != nil {
		c.log.Warnw("Failed to collect catalog stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.trackedTickers,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Status,
		)
	}
}

func (c *CustomCollector) collectRecordVolume(ctx context.Context, ch chan<- prometheus.Metric) {
	var stats []struct {
		OptionType string `ch:"option_type"`
		Count      uint64 `ch:"count"`
	}

	err := c.clickhouse.Select(ctx, &stats, `
		SELECT option_type, count() AS count
		FROM premium_records
		WHERE collection_timestamp > now() - INTERVAL 24 HOUR
		GROUP BY option_type
	`)
	if err != nil {
		c.log.Warnw("Failed to collect record volume", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.records24h,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.OptionType,
		)
	}
}

func (c *CustomCollector) collectQueriesToday(ctx context.Context, ch chan<- prometheus.Metric) {
	count, err := c.counter.Count(ctx, c.now().UTC())
	if err != nil {
		c.log.Warnw("Failed to collect query counter", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.queriesToday,
		prometheus.GaugeValue,
		float64(count),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
