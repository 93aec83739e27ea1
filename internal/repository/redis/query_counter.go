package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/errors"
)

// Compile-time check
var _ premium.QueryCounter = (*QueryCounterRepository)(nil)

// counterRetention keeps a week of daily counters around
const counterRetention = 8 * 24 * time.Hour

// QueryCounterRepository implements premium.QueryCounter using Redis
type QueryCounterRepository struct {
	client *redis.Client
}

// NewQueryCounterRepository creates a new query counter repository
func NewQueryCounterRepository(client *redis.Client) *QueryCounterRepository {
	return &QueryCounterRepository{client: client}
}

// Increment adds one query to the day's counter
func (r *QueryCounterRepository) Increment(ctx context.Context, day time.Time) (int64, error) {
	key := counterKey(day)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, counterRetention)
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to increment query counter: key=%s", key)
	}

	return incr.Val(), nil
}

// Count returns the day's counter, 0 when no query was served
func (r *QueryCounterRepository) Count(ctx context.Context, day time.Time) (int64, error) {
	key := counterKey(day)

	count, err := r.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read query counter: key=%s", key)
	}

	return count, nil
}

func counterKey(day time.Time) string {
	return fmt.Sprintf("premium:queries:%s", day.UTC().Format(time.DateOnly))
}
