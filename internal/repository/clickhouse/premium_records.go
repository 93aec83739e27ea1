package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/metrics"
	"premiummeter/pkg/errors"
)

// Compile-time check
var _ premium.Repository = (*PremiumRecordRepository)(nil)

// PremiumRecordRepository implements premium.Repository using ClickHouse
type PremiumRecordRepository struct {
	conn driver.Conn
}

// NewPremiumRecordRepository creates a new premium record repository
func NewPremiumRecordRepository(conn driver.Conn) *PremiumRecordRepository {
	return &PremiumRecordRepository{conn: conn}
}

const recordColumns = `ticker, option_type, strike_price, expiration_date, collection_timestamp,
		premium, underlying_price, implied_volatility, volume, open_interest`

// InsertRecords inserts records in batch. Used by fixtures and backfills; the engine never writes.
func (r *PremiumRecordRepository) InsertRecords(ctx context.Context, records []premium.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `INSERT INTO premium_records (`+recordColumns+`)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for i := range records {
		if err := batch.AppendStruct(&records[i]); err != nil {
			return errors.Wrap(err, "failed to append record")
		}
	}

	return batch.Send()
}

// ObservedStrikes returns the distinct strikes seen in the window, ascending
func (r *PremiumRecordRepository) ObservedStrikes(ctx context.Context, ticker string, optionType premium.OptionType, window premium.Window) ([]decimal.Decimal, error) {
	var rows []struct {
		Strike decimal.Decimal `ch:"strike_price"`
	}

	query := `
		SELECT DISTINCT strike_price
		FROM premium_records
		WHERE ticker = $1 AND option_type = $2
		  AND collection_timestamp BETWEEN $3 AND $4
		ORDER BY strike_price`

	start := time.Now()
	err := r.conn.Select(ctx, &rows, query, ticker, string(optionType), window.Start, window.End)
	metrics.RecordDBQuery("clickhouse", "observed_strikes", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "select observed strikes")
	}

	out := make([]decimal.Decimal, len(rows))
	for i, row := range rows {
		out[i] = row.Strike
	}
	return out, nil
}

// ObservedExpirations returns the distinct expiration dates seen in the window, ascending
func (r *PremiumRecordRepository) ObservedExpirations(ctx context.Context, ticker string, optionType premium.OptionType, window premium.Window) ([]time.Time, error) {
	var rows []struct {
		Expiration time.Time `ch:"expiration_date"`
	}

	query := `
		SELECT DISTINCT expiration_date
		FROM premium_records
		WHERE ticker = $1 AND option_type = $2
		  AND collection_timestamp BETWEEN $3 AND $4
		ORDER BY expiration_date`

	start := time.Now()
	err := r.conn.Select(ctx, &rows, query, ticker, string(optionType), window.Start, window.End)
	metrics.RecordDBQuery("clickhouse", "observed_expirations", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "select observed expirations")
	}

	out := make([]time.Time, len(rows))
	for i, row := range rows {
		out[i] = row.Expiration.UTC()
	}
	return out, nil
}

// FetchRecords returns matching records ordered by collection_timestamp.
// FINAL collapses duplicate observations of the same contract and instant.
func (r *PremiumRecordRepository) FetchRecords(ctx context.Context, filter premium.RecordFilter) ([]premium.Record, error) {
	var records []premium.Record

	query := `
		SELECT ` + recordColumns + `
		FROM premium_records FINAL
		WHERE ticker = $1 AND option_type = $2
		  AND collection_timestamp BETWEEN $3 AND $4`
	args := []interface{}{filter.Ticker, string(filter.OptionType), filter.Window.Start, filter.Window.End}

	if len(filter.Strikes) > 0 {
		placeholders := make([]string, len(filter.Strikes))
		for i, k := range filter.Strikes {
			args = append(args, k.String())
			placeholders[i] = fmt.Sprintf("toDecimal64($%d, 4)", len(args))
		}
		query += ` AND strike_price IN (` + strings.Join(placeholders, ", ") + `)`
	}

	if len(filter.Expirations) > 0 {
		placeholders := make([]string, len(filter.Expirations))
		for i, e := range filter.Expirations {
			args = append(args, e.UTC().Format(time.DateOnly))
			placeholders[i] = fmt.Sprintf("toDate($%d)", len(args))
		}
		query += ` AND expiration_date IN (` + strings.Join(placeholders, ", ") + `)`
	}

	query += ` ORDER BY collection_timestamp, strike_price, expiration_date`

	start := time.Now()
	err := r.conn.Select(ctx, &records, query, args...)
	metrics.RecordDBQuery("clickhouse", "fetch_records", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "select premium records")
	}
	return records, nil
}

// LatestUnderlyingPrice returns the most recent underlying price in the window, nil if none
func (r *PremiumRecordRepository) LatestUnderlyingPrice(ctx context.Context, ticker string, window premium.Window) (*decimal.Decimal, error) {
	var price *decimal.Decimal

	query := `
		SELECT underlying_price
		FROM premium_records
		WHERE ticker = $1
		  AND collection_timestamp BETWEEN $2 AND $3
		  AND underlying_price IS NOT NULL
		ORDER BY collection_timestamp DESC
		LIMIT 1`

	start := time.Now()
	err := r.conn.QueryRow(ctx, query, ticker, window.Start, window.End).Scan(&price)
	metrics.RecordDBQuery("clickhouse", "latest_underlying", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest underlying price")
	}
	return price, nil
}
