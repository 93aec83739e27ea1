package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"premiummeter/internal/adapters/clickhouse"
	"premiummeter/internal/adapters/config"
	"premiummeter/internal/domain/premium"
	"premiummeter/migrations"
)

// ClickHouseTestHelper manages schema and cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client for tests and applies the schema.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := clickhouse.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	exec := func(ctx context.Context, stmt string) error {
		return client.Conn().Exec(ctx, stmt)
	}
	if _, err := migrations.Apply(ctx, migrations.ClickHouse, exec); err != nil {
		t.Fatalf("failed to apply clickhouse schema: %v", err)
	}

	return &ClickHouseTestHelper{client: client}
}

// Client exposes the raw ClickHouse client for queries.
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// Count returns count() of table rows matching condition
func (h *ClickHouseTestHelper) Count(t *testing.T, table, condition string, args ...any) uint64 {
	t.Helper()

	var count uint64
	query := fmt.Sprintf("SELECT count() FROM %s WHERE %s", table, condition)
	if err := h.client.Conn().QueryRow(context.Background(), query, args...).Scan(&count); err != nil {
		t.Fatalf("failed to count %s rows: %v", table, err)
	}
	return count
}

// RegisterTableCleanup schedules cleanup of specific table data after test completes.
// Shared tables are never dropped.
func (h *ClickHouseTestHelper) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// lightweight delete, visible to the next SELECT
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition)
		_ = h.client.Conn().Exec(ctx, query)
	})
}

// CreateBatch inserts test rows into a ClickHouse table
// Usage: testsupport.CreateBatch(t, helper, testsupport.InsertPremiumRecords, records)
func CreateBatch[T any](t *testing.T, helper *ClickHouseTestHelper, insertQuery string, items []T) {
	t.Helper()

	if len(items) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	batch, err := helper.client.Conn().PrepareBatch(ctx, insertQuery)
	if err != nil {
		t.Fatalf("failed to prepare batch: %v", err)
	}

	for i := range items {
		if err := batch.AppendStruct(&items[i]); err != nil {
			t.Fatalf("failed to append item to batch: %v", err)
		}
	}

	if err := batch.Send(); err != nil {
		t.Fatalf("failed to send batch: %v", err)
	}
}

// InsertPremiumRecords is the insert statement for premium.Record rows
const InsertPremiumRecords = `
	INSERT INTO premium_records (
		ticker, option_type, strike_price, expiration_date, collection_timestamp,
		premium, underlying_price, implied_volatility, volume, open_interest
	)
`

// ========================================
// Fixture Builders for ClickHouse Tests
// ========================================

// PremiumRecordFixture provides builder pattern for creating premium observations
type PremiumRecordFixture struct {
	record premium.Record
}

// NewPremiumRecordFixture creates a default record for testing
// Default: AAPL 100 call expiring 30 days after collection, premium 5.00, spot 102, IV 25%
func NewPremiumRecordFixture() *PremiumRecordFixture {
	collected := time.Now().UTC().Truncate(time.Hour)
	spot := decimal.NewFromInt(102)
	iv := 0.25
	volume := uint64(120)
	oi := uint64(3400)

	return &PremiumRecordFixture{
		record: premium.Record{
			Ticker:              "AAPL",
			OptionType:          string(premium.Call),
			StrikePrice:         decimal.NewFromInt(100),
			ExpirationDate:      dateOf(collected).AddDate(0, 0, 30),
			CollectionTimestamp: collected,
			Premium:             decimal.RequireFromString("5.00"),
			UnderlyingPrice:     &spot,
			ImpliedVolatility:   &iv,
			Volume:              &volume,
			OpenInterest:        &oi,
		},
	}
}

// WithTicker sets the ticker
func (f *PremiumRecordFixture) WithTicker(ticker string) *PremiumRecordFixture {
	f.record.Ticker = ticker
	return f
}

// Put switches the record to a put
func (f *PremiumRecordFixture) Put() *PremiumRecordFixture {
	f.record.OptionType = string(premium.Put)
	return f
}

// WithStrike sets the strike from a decimal string
func (f *PremiumRecordFixture) WithStrike(strike string) *PremiumRecordFixture {
	f.record.StrikePrice = decimal.RequireFromString(strike)
	return f
}

// WithPremium sets the premium from a decimal string
func (f *PremiumRecordFixture) WithPremium(p string) *PremiumRecordFixture {
	f.record.Premium = decimal.RequireFromString(p)
	return f
}

// CollectedAt sets the collection timestamp and keeps days-to-expiry unchanged
func (f *PremiumRecordFixture) CollectedAt(ts time.Time) *PremiumRecordFixture {
	dte := f.record.ExpirationDate.Sub(dateOf(f.record.CollectionTimestamp))
	f.record.CollectionTimestamp = ts.UTC()
	f.record.ExpirationDate = dateOf(ts).Add(dte)
	return f
}

// ExpiringIn sets the expiration to days after the collection date
func (f *PremiumRecordFixture) ExpiringIn(days int) *PremiumRecordFixture {
	f.record.ExpirationDate = dateOf(f.record.CollectionTimestamp).AddDate(0, 0, days)
	return f
}

// WithExpiration sets an absolute expiration date
func (f *PremiumRecordFixture) WithExpiration(date time.Time) *PremiumRecordFixture {
	f.record.ExpirationDate = dateOf(date)
	return f
}

// WithUnderlying sets the underlying price
func (f *PremiumRecordFixture) WithUnderlying(price string) *PremiumRecordFixture {
	p := decimal.RequireFromString(price)
	f.record.UnderlyingPrice = &p
	return f
}

// WithoutGreeksInputs clears underlying price and implied volatility
func (f *PremiumRecordFixture) WithoutGreeksInputs() *PremiumRecordFixture {
	f.record.UnderlyingPrice = nil
	f.record.ImpliedVolatility = nil
	return f
}

// Build returns the constructed record
func (f *PremiumRecordFixture) Build() premium.Record {
	return f.record
}

// BuildMany creates daily observations of the same contract ending at the current collection time.
// Days-to-expiry grows by one per step back in time.
func (f *PremiumRecordFixture) BuildMany(count int) []premium.Record {
	records := make([]premium.Record, count)

	for i := 0; i < count; i++ {
		record := f.record
		record.CollectionTimestamp = f.record.CollectionTimestamp.AddDate(0, 0, i-count+1)
		records[i] = record
	}

	return records
}

func dateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
