package testsupport

import (
	"context"
	"sort"
	"testing"

	"github.com/redis/go-redis/v9"

	"premiummeter/internal/adapters/config"
	redisclient "premiummeter/internal/adapters/redis"
)

// NewRedisClient connects through the production adapter and empties the test database
// before and after the test.
func NewRedisClient(t *testing.T, cfg config.RedisConfig) *redis.Client {
	t.Helper()
	ctx := context.Background()

	client, err := redisclient.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	rdb := client.Client()

	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return rdb
}

// RedisKeys returns the keys matching pattern, sorted
func RedisKeys(t *testing.T, rdb *redis.Client, pattern string) []string {
	t.Helper()

	var keys []string
	iter := rdb.Scan(context.Background(), 0, pattern, 100).Iterator()
	for iter.Next(context.Background()) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("failed to scan redis keys %q: %v", pattern, err)
	}

	sort.Strings(keys)
	return keys
}
