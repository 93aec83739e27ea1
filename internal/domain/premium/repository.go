package premium

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RecordFilter narrows a record read. Empty Strikes or Expirations means no restriction.
type RecordFilter struct {
	Ticker      string
	OptionType  OptionType
	Strikes     []decimal.Decimal
	Expirations []time.Time
	Window      Window
}

// Repository is the read-only record store (ClickHouse)
type Repository interface {
	// ObservedStrikes returns the distinct strikes seen in the window, ascending
	ObservedStrikes(ctx context.Context, ticker string, optionType OptionType, window Window) ([]decimal.Decimal, error)

	// ObservedExpirations returns the distinct expiration dates seen in the window, ascending
	ObservedExpirations(ctx context.Context, ticker string, optionType OptionType, window Window) ([]time.Time, error)

	// FetchRecords returns matching records ordered by collection_timestamp
	FetchRecords(ctx context.Context, filter RecordFilter) ([]Record, error)

	// LatestUnderlyingPrice returns the most recent underlying price in the window, nil if none
	LatestUnderlyingPrice(ctx context.Context, ticker string, window Window) (*decimal.Decimal, error)
}
