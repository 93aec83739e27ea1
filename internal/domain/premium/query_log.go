package premium

import (
	"context"
	"time"
)

// QueryKind distinguishes the two engine entry points in the query log
type QueryKind string

const (
	QueryKindPremium QueryKind = "premium"
	QueryKindChart   QueryKind = "chart"
)

// QueryLogEntry is one finished query, written to ClickHouse premium_query_log
type QueryLogEntry struct {
	QueryID     string    `ch:"query_id"`
	Kind        string    `ch:"kind"`
	Ticker      string    `ch:"ticker"`
	OptionType  string    `ch:"option_type"`
	StrikeMode  string    `ch:"strike_mode"`
	Status      string    `ch:"status"` // responded, empty, or an API error code
	EmptyAt     string    `ch:"empty_at"`
	Results     uint32    `ch:"results"`
	DataPoints  uint64    `ch:"data_points"`
	CacheHit    bool      `ch:"cache_hit"`
	LatencyMs   uint32    `ch:"latency_ms"`
	RequestedAt time.Time `ch:"requested_at"`
}

// QueryLog records finished queries. Implementations must not block the caller on I/O.
type QueryLog interface {
	Record(ctx context.Context, entry QueryLogEntry) error
}

// StatusCount is the number of logged queries with one status
type StatusCount struct {
	Status string `ch:"status" json:"status"`
	Count  uint64 `ch:"count" json:"count"`
}

// QueryLogReader summarises the query log
type QueryLogReader interface {
	CountByStatus(ctx context.Context, since time.Time) ([]StatusCount, error)
}
