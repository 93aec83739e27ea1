package premium_query

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/domain/stock"
	"premiummeter/internal/engine/expiry"
	"premiummeter/internal/engine/greeks"
	"premiummeter/internal/engine/strikes"
	"premiummeter/pkg/logger"
)

var fixedNow = time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)

func testLogger() *logger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return logger.New(zapLogger)
}

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestService(records premium.Repository, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(
		records,
		expiry.NewMatcher(expiry.CalendarDays{}),
		greeks.NewCalculator(0.045, 365),
		DefaultConfig(),
		testLogger(),
		opts...,
	)
}

// recordBuilder builds premium records relative to the fixed clock
type recordBuilder struct {
	r premium.Record
}

func newRecord() *recordBuilder {
	spot := decimal.NewFromInt(100)
	iv := 0.25
	return &recordBuilder{r: premium.Record{
		Ticker:              "SPY",
		OptionType:          "call",
		StrikePrice:         decimal.NewFromInt(100),
		CollectionTimestamp: fixedNow.Add(-time.Hour),
		ExpirationDate:      fixedNow.AddDate(0, 0, 30),
		Premium:             decimal.RequireFromString("2.50"),
		UnderlyingPrice:     &spot,
		ImpliedVolatility:   &iv,
	}}
}

func (b *recordBuilder) Strike(s string) *recordBuilder {
	b.r.StrikePrice = decimal.RequireFromString(s)
	return b
}

func (b *recordBuilder) Put() *recordBuilder {
	b.r.OptionType = "put"
	return b
}

func (b *recordBuilder) Premium(s string) *recordBuilder {
	b.r.Premium = decimal.RequireFromString(s)
	return b
}

func (b *recordBuilder) CollectedDaysAgo(days int) *recordBuilder {
	b.r.CollectionTimestamp = fixedNow.Add(-time.Hour).AddDate(0, 0, -days)
	return b
}

// DTE sets the expiration so that the record is dte calendar days from expiry
func (b *recordBuilder) DTE(dte int) *recordBuilder {
	y, m, d := b.r.CollectionTimestamp.Date()
	b.r.ExpirationDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, dte)
	return b
}

func (b *recordBuilder) Underlying(s string) *recordBuilder {
	b.r.UnderlyingPrice = decPtr(s)
	return b
}

func (b *recordBuilder) NoGreeksInputs() *recordBuilder {
	b.r.UnderlyingPrice = nil
	b.r.ImpliedVolatility = nil
	return b
}

func (b *recordBuilder) Build() premium.Record {
	return b.r
}

// memoryStore is an in-memory premium.Repository with the same filter semantics as ClickHouse
type memoryStore struct {
	mu      sync.Mutex
	records []premium.Record
	fetches int
}

func newMemoryStore(records ...premium.Record) *memoryStore {
	return &memoryStore{records: records}
}

func (m *memoryStore) matching(ticker string, optionType premium.OptionType, window premium.Window) []premium.Record {
	var out []premium.Record
	for _, r := range m.records {
		if r.Ticker == ticker && r.Type() == optionType && window.Contains(r.CollectionTimestamp) {
			out = append(out, r)
		}
	}
	return out
}

func (m *memoryStore) ObservedStrikes(_ context.Context, ticker string, optionType premium.OptionType, window premium.Window) ([]decimal.Decimal, error) {
	var out []decimal.Decimal
	for _, r := range m.matching(ticker, optionType, window) {
		out = append(out, r.StrikePrice)
	}
	return strikes.Distinct(out), nil
}

func (m *memoryStore) ObservedExpirations(_ context.Context, ticker string, optionType premium.OptionType, window premium.Window) ([]time.Time, error) {
	seen := map[time.Time]struct{}{}
	var out []time.Time
	for _, r := range m.matching(ticker, optionType, window) {
		if _, ok := seen[r.ExpirationDate]; !ok {
			seen[r.ExpirationDate] = struct{}{}
			out = append(out, r.ExpirationDate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *memoryStore) FetchRecords(_ context.Context, f premium.RecordFilter) ([]premium.Record, error) {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()

	var out []premium.Record
	for _, r := range m.matching(f.Ticker, f.OptionType, f.Window) {
		if len(f.Strikes) > 0 && !containsStrike(f.Strikes, r.StrikePrice) {
			continue
		}
		if len(f.Expirations) > 0 && !containsDate(f.Expirations, r.ExpirationDate) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CollectionTimestamp.Before(out[j].CollectionTimestamp)
	})
	return out, nil
}

func (m *memoryStore) LatestUnderlyingPrice(_ context.Context, ticker string, window premium.Window) (*decimal.Decimal, error) {
	var latest *premium.Record
	for i, r := range m.records {
		if r.Ticker != ticker || !window.Contains(r.CollectionTimestamp) || r.UnderlyingPrice == nil {
			continue
		}
		if latest == nil || r.CollectionTimestamp.After(latest.CollectionTimestamp) {
			latest = &m.records[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.UnderlyingPrice, nil
}

func (m *memoryStore) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func containsStrike(set []decimal.Decimal, k decimal.Decimal) bool {
	for _, s := range set {
		if s.Equal(k) {
			return true
		}
	}
	return false
}

func containsDate(set []time.Time, d time.Time) bool {
	y, m, day := d.UTC().Date()
	for _, s := range set {
		sy, sm, sd := s.UTC().Date()
		if y == sy && m == sm && day == sd {
			return true
		}
	}
	return false
}

// MockRepository is a mock for premium.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ObservedStrikes(ctx context.Context, ticker string, optionType premium.OptionType, window premium.Window) ([]decimal.Decimal, error) {
	args := m.Called(ctx, ticker, optionType, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]decimal.Decimal), args.Error(1)
}

func (m *MockRepository) ObservedExpirations(ctx context.Context, ticker string, optionType premium.OptionType, window premium.Window) ([]time.Time, error) {
	args := m.Called(ctx, ticker, optionType, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]time.Time), args.Error(1)
}

func (m *MockRepository) FetchRecords(ctx context.Context, filter premium.RecordFilter) ([]premium.Record, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]premium.Record), args.Error(1)
}

func (m *MockRepository) LatestUnderlyingPrice(ctx context.Context, ticker string, window premium.Window) (*decimal.Decimal, error) {
	args := m.Called(ctx, ticker, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decimal.Decimal), args.Error(1)
}

// MockCatalog is a mock for stock.Repository
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetByTicker(ctx context.Context, ticker string) (*stock.Stock, error) {
	args := m.Called(ctx, ticker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.Stock), args.Error(1)
}

func (m *MockCatalog) ListActive(ctx context.Context) ([]*stock.Stock, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*stock.Stock), args.Error(1)
}

// memoryCache is a premium.ResultCache backed by a map
type memoryCache struct {
	mu          sync.Mutex
	generations map[string]int64
	entries     map[string]*premium.CachedQuery
}

func newMemoryCache() *memoryCache {
	return &memoryCache{generations: map[string]int64{}, entries: map[string]*premium.CachedQuery{}}
}

func (c *memoryCache) Generation(_ context.Context, ticker string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[ticker], nil
}

func (c *memoryCache) Get(_ context.Context, ticker string, generation int64, key string) (*premium.CachedQuery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[cacheEntry(ticker, generation, key)], nil
}

func (c *memoryCache) Set(_ context.Context, ticker string, generation int64, key string, value *premium.CachedQuery, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheEntry(ticker, generation, key)] = value
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, ticker string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ticker]++
	return c.generations[ticker], nil
}

func cacheEntry(ticker string, generation int64, key string) string {
	return ticker + "|" + decimal.NewFromInt(generation).String() + "|" + key
}

// memoryQueryLog collects query log entries
type memoryQueryLog struct {
	mu      sync.Mutex
	entries []premium.QueryLogEntry
}

func (l *memoryQueryLog) Record(_ context.Context, entry premium.QueryLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// memoryCounter counts queries per day
type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *memoryCounter) Increment(_ context.Context, day time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[day.UTC().Format(time.DateOnly)]++
	return c.counts[day.UTC().Format(time.DateOnly)], nil
}

func (c *memoryCounter) Count(_ context.Context, day time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[day.UTC().Format(time.DateOnly)], nil
}
