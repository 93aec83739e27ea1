package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/dustin/go-humanize"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/metrics"
	chbatch "premiummeter/pkg/clickhouse"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

// Compile-time check
var _ premium.QueryLogReader = (*QueryLogRepository)(nil)

// QueryLogRepository writes finished queries to premium_query_log
type QueryLogRepository struct {
	conn driver.Conn
}

// NewQueryLogRepository creates a new query log repository
func NewQueryLogRepository(conn driver.Conn) *QueryLogRepository {
	return &QueryLogRepository{conn: conn}
}

// InsertBatch inserts query log entries in one batch
func (r *QueryLogRepository) InsertBatch(ctx context.Context, entries []premium.QueryLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO premium_query_log (
			query_id, kind, ticker, option_type, strike_mode, status, empty_at,
			results, data_points, cache_hit, latency_ms, requested_at
		)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for i := range entries {
		if err := batch.AppendStruct(&entries[i]); err != nil {
			return errors.Wrap(err, "failed to append query log entry")
		}
	}

	start := time.Now()
	err = batch.Send()
	metrics.RecordDBQuery("clickhouse", "insert_query_log", time.Since(start), err)
	return err
}

// CountByStatus summarises the log since a point in time
func (r *QueryLogRepository) CountByStatus(ctx context.Context, since time.Time) ([]premium.StatusCount, error) {
	var rows []premium.StatusCount

	query := `
		SELECT status, count() AS count
		FROM premium_query_log
		WHERE requested_at >= $1
		GROUP BY status
		ORDER BY count DESC, status`

	start := time.Now()
	err := r.conn.Select(ctx, &rows, query, since)
	metrics.RecordDBQuery("clickhouse", "query_log_summary", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "select query log summary")
	}
	return rows, nil
}

// Compile-time check
var _ premium.QueryLog = (*QueryLogWriter)(nil)

// QueryLogWriter buffers entries and flushes them through a batch writer.
// Record never blocks on ClickHouse.
type QueryLogWriter struct {
	writer *chbatch.BatchWriter[premium.QueryLogEntry]
	log    *logger.Logger
}

// QueryLogWriterConfig tunes the underlying batch writer
type QueryLogWriterConfig struct {
	MaxBatchSize  int
	FlushInterval time.Duration
}

// NewQueryLogWriter creates a writer backed by repo
func NewQueryLogWriter(repo *QueryLogRepository, cfg QueryLogWriterConfig, log *logger.Logger) *QueryLogWriter {
	log = log.With("component", "query_log")

	writer := chbatch.NewBatchWriter(chbatch.BatchWriterConfig[premium.QueryLogEntry]{
		FlushFunc: repo.InsertBatch,
		OnFlush: func(rows int, err error) {
			metrics.RecordQueryLogFlush(err)
			if err == nil {
				log.Debugw("Query log flushed", "rows", humanize.Comma(int64(rows)))
			}
		},
		TableName:    "premium_query_log",
		MaxBatchSize: cfg.MaxBatchSize,
		MaxAge:       cfg.FlushInterval,
		Logger:       log,
	})

	return &QueryLogWriter{writer: writer, log: log}
}

// Start begins background flushing
func (w *QueryLogWriter) Start(ctx context.Context) {
	w.writer.Start(ctx)
}

// Stop flushes buffered entries
func (w *QueryLogWriter) Stop(ctx context.Context) error {
	stats := w.writer.GetStats()
	if stats.Dropped > 0 {
		w.log.Warnw("Query log entries dropped while saturated", "dropped", humanize.Comma(int64(stats.Dropped)))
	}
	return w.writer.Stop(ctx)
}

// Record buffers one entry
func (w *QueryLogWriter) Record(_ context.Context, entry premium.QueryLogEntry) error {
	if !w.writer.Add(entry) {
		return errors.Wrap(errors.ErrUnavailable, "query log buffer saturated")
	}
	return nil
}
