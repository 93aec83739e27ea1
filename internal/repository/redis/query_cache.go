package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/errors"
)

// Compile-time check
var _ premium.ResultCache = (*QueryCacheRepository)(nil)

// QueryCacheRepository implements premium.ResultCache using Redis.
// Entries live under the ticker's current generation; bumping it orphans them until their TTL expires.
type QueryCacheRepository struct {
	client *redis.Client
}

// NewQueryCacheRepository creates a new query cache repository
func NewQueryCacheRepository(client *redis.Client) *QueryCacheRepository {
	return &QueryCacheRepository{client: client}
}

// Generation returns the ticker's current generation, 0 if never invalidated
func (r *QueryCacheRepository) Generation(ctx context.Context, ticker string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(ticker)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read cache generation: ticker=%s", ticker)
	}
	return gen, nil
}

// Get retrieves a cached answer, nil on miss
func (r *QueryCacheRepository) Get(ctx context.Context, ticker string, generation int64, key string) (*premium.CachedQuery, error) {
	data, err := r.client.Get(ctx, entryKey(ticker, generation, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get cached query: ticker=%s", ticker)
	}

	var cached premium.CachedQuery
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal cached query: ticker=%s", ticker)
	}

	return &cached, nil
}

// Set stores an answer with TTL
func (r *QueryCacheRepository) Set(ctx context.Context, ticker string, generation int64, key string, value *premium.CachedQuery, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal cached query: ticker=%s", ticker)
	}

	if err := r.client.Set(ctx, entryKey(ticker, generation, key), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to save cached query: ticker=%s", ticker)
	}

	return nil
}

// Invalidate bumps the ticker's generation and returns the new value
func (r *QueryCacheRepository) Invalidate(ctx context.Context, ticker string) (int64, error) {
	gen, err := r.client.Incr(ctx, generationKey(ticker)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to bump cache generation: ticker=%s", ticker)
	}
	return gen, nil
}

func generationKey(ticker string) string {
	return fmt.Sprintf("premium:gen:%s", ticker)
}

func entryKey(ticker string, generation int64, key string) string {
	return fmt.Sprintf("premium:cache:%s:%d:%s", ticker, generation, key)
}
