package premium

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CachedQuery is the cacheable part of a premium query answer
type CachedQuery struct {
	Results         []AggregatedResult `json:"results"`
	UnderlyingPrice *decimal.Decimal   `json:"underlying_price,omitempty"`
}

// ResultCache stores query answers keyed by a query fingerprint.
// Entries are scoped to a per-ticker generation so an ingestion event invalidates them all at once.
type ResultCache interface {
	Generation(ctx context.Context, ticker string) (int64, error)
	Get(ctx context.Context, ticker string, generation int64, key string) (*CachedQuery, error) // nil, nil on miss
	Set(ctx context.Context, ticker string, generation int64, key string, value *CachedQuery, ttl time.Duration) error
	Invalidate(ctx context.Context, ticker string) (int64, error)
}

// QueryCounter counts served queries per UTC day
type QueryCounter interface {
	Increment(ctx context.Context, day time.Time) (int64, error)
	Count(ctx context.Context, day time.Time) (int64, error)
}

// NoopCache never hits. Used when Redis is disabled.
type NoopCache struct{}

func (NoopCache) Generation(context.Context, string) (int64, error) { return 0, nil }

func (NoopCache) Get(context.Context, string, int64, string) (*CachedQuery, error) {
	return nil, nil
}

func (NoopCache) Set(context.Context, string, int64, string, *CachedQuery, time.Duration) error {
	return nil
}

func (NoopCache) Invalidate(context.Context, string) (int64, error) { return 0, nil }
