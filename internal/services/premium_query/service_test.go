package premium_query

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/domain/stock"
	"premiummeter/pkg/errors"
)

func exactRequest(strike string, duration int) QueryRequest {
	return QueryRequest{
		Ticker:       "spy",
		OptionType:   "call",
		StrikeMode:   "exact",
		StrikePrice:  decPtr(strike),
		DurationDays: intPtr(duration),
	}
}

func TestQueryPremiums_ExactUnknownStrike(t *testing.T) {
	store := newMemoryStore(
		newRecord().Strike("100").Build(),
		newRecord().Strike("105").Build(),
	)
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), exactRequest("101", 30))
	require.NoError(t, err)

	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 0, resp.TotalStrikes)
	assert.Equal(t, "SPY", resp.Ticker)
	assert.Equal(t, "exact", resp.StrikeMode)
	assert.Equal(t, 30, resp.DurationDays)
	assert.Equal(t, 3, resp.DurationToleranceDays)
	assert.Equal(t, 30, resp.LookbackDays)
	assert.Equal(t, 0, store.fetchCount(), "no record read once strikes come up empty")
}

func TestQueryPremiums_DurationTolerance(t *testing.T) {
	var records []premium.Record
	for _, dte := range []int{20, 27, 33, 50} {
		records = append(records, newRecord().CollectedDaysAgo(1).DTE(dte).Build())
	}
	svc := newTestService(newMemoryStore(records...))

	req := exactRequest("100", 30)
	req.DurationToleranceDays = intPtr(5)

	resp, err := svc.QueryPremiums(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, 27, resp.Results[0].DurationDays)
	assert.Equal(t, 33, resp.Results[1].DurationDays)
	assert.Equal(t, 1, resp.TotalStrikes)
	assert.Equal(t, 2, resp.TotalDataPoints)
}

func TestQueryPremiums_Aggregation(t *testing.T) {
	store := newMemoryStore(
		newRecord().CollectedDaysAgo(3).DTE(30).Premium("1").Build(),
		newRecord().CollectedDaysAgo(3).DTE(30).Premium("2").Build(),
		newRecord().CollectedDaysAgo(3).DTE(30).Premium("3").Underlying("101").Build(),
		newRecord().CollectedDaysAgo(3).DTE(30).Premium("9").Put().Build(),
	)
	// give the records distinct timestamps
	for i := range store.records {
		store.records[i].CollectionTimestamp = store.records[i].CollectionTimestamp.Add(time.Duration(i) * time.Minute)
	}
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	res := resp.Results[0]
	assert.Equal(t, "1", res.MinPremium.String())
	assert.Equal(t, "3", res.MaxPremium.String())
	assert.Equal(t, "2", res.AvgPremium.String())
	assert.Equal(t, "3", res.LatestPremium.String())
	assert.Equal(t, 3, res.DataPoints)
	require.NotNil(t, res.Greeks)
	assert.Equal(t, 3, res.Greeks.DeltaCount)
	require.NotNil(t, resp.UnderlyingPrice)
	assert.Equal(t, "101", resp.UnderlyingPrice.String())
}

func TestQueryPremiums_GreeksCoverage(t *testing.T) {
	store := newMemoryStore(
		newRecord().CollectedDaysAgo(2).DTE(30).Build(),
		newRecord().CollectedDaysAgo(2).DTE(30).NoGreeksInputs().Build(),
	)
	store.records[1].CollectionTimestamp = store.records[1].CollectionTimestamp.Add(time.Minute)
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	assert.Equal(t, 2, resp.Results[0].DataPoints)
	require.NotNil(t, resp.Results[0].Greeks)
	assert.Equal(t, 1, resp.Results[0].Greeks.DeltaCount)
}

func TestQueryPremiums_PercentageRange(t *testing.T) {
	store := newMemoryStore(
		newRecord().Strike("90").Build(),
		newRecord().Strike("95").Build(),
		newRecord().Strike("100").Build(),
		newRecord().Strike("105").Build(),
		newRecord().Strike("110").Build(),
	)
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), QueryRequest{
		Ticker:             "SPY",
		OptionType:         "CALL",
		StrikeMode:         "percentage_range",
		StrikePrice:        decPtr("100"),
		StrikeRangePercent: decPtr("5"),
		DurationDays:       intPtr(30),
	})
	require.NoError(t, err)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, "95", resp.Results[0].StrikePrice.String())
	assert.Equal(t, "105", resp.Results[2].StrikePrice.String())
	assert.Equal(t, 3, resp.TotalStrikes)
}

func TestQueryPremiums_NearestFromUnderlying(t *testing.T) {
	store := newMemoryStore(
		newRecord().Strike("95").Underlying("99").CollectedDaysAgo(2).Build(),
		newRecord().Strike("100").Underlying("103").Build(),
		newRecord().Strike("105").Underlying("103").Build(),
		newRecord().Strike("110").Underlying("103").Build(),
	)
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), QueryRequest{
		Ticker:            "SPY",
		OptionType:        "call",
		StrikeMode:        "nearest",
		NearestCountAbove: intPtr(1),
		NearestCountBelow: intPtr(1),
		DurationDays:      intPtr(30),
	})
	require.NoError(t, err)

	require.NotNil(t, resp.UnderlyingPrice)
	assert.Equal(t, "103", resp.UnderlyingPrice.String())
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "100", resp.Results[0].StrikePrice.String())
	assert.Equal(t, "105", resp.Results[1].StrikePrice.String())
}

func TestQueryPremiums_NearestWithoutUnderlying(t *testing.T) {
	store := newMemoryStore(newRecord().NoGreeksInputs().Build())
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), QueryRequest{
		Ticker:            "SPY",
		OptionType:        "call",
		StrikeMode:        "nearest",
		NearestCountAbove: intPtr(2),
		DurationDays:      intPtr(30),
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Nil(t, resp.UnderlyingPrice)
}

func TestQueryPremiums_Idempotent(t *testing.T) {
	store := newMemoryStore(
		newRecord().Strike("100").CollectedDaysAgo(1).Premium("2.10").Build(),
		newRecord().Strike("100").CollectedDaysAgo(2).Premium("2.40").Build(),
		newRecord().Strike("105").CollectedDaysAgo(1).Premium("1.20").Build(),
	)
	svc := newTestService(store)

	req := QueryRequest{
		Ticker:             "SPY",
		OptionType:         "call",
		StrikeMode:         "percentage_range",
		StrikePrice:        decPtr("100"),
		StrikeRangePercent: decPtr("10"),
		DurationDays:       intPtr(30),
	}

	first, err := svc.QueryPremiums(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.QueryPremiums(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.NotEqual(t, first.QueryID, second.QueryID)
}

func TestQueryPremiums_Validation(t *testing.T) {
	svc := newTestService(newMemoryStore())

	tests := []struct {
		name   string
		req    QueryRequest
		fields []string
	}{
		{
			name: "collects every failing field",
			req: QueryRequest{
				Ticker:       "",
				OptionType:   "straddle",
				StrikeMode:   "exact",
				DurationDays: intPtr(-1),
			},
			fields: []string{"duration_days", "option_type", "strike_price", "ticker"},
		},
		{
			name: "unknown strike mode",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "put", StrikeMode: "widest", DurationDays: intPtr(30),
			},
			fields: []string{"strike_mode"},
		},
		{
			name: "fields of another mode",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "exact",
				StrikePrice: decPtr("100"), NearestCountAbove: intPtr(2), DurationDays: intPtr(30),
			},
			fields: []string{"nearest_count_above"},
		},
		{
			name: "percent out of range",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "percentage_range",
				StrikePrice: decPtr("100"), StrikeRangePercent: decPtr("150"), DurationDays: intPtr(30),
			},
			fields: []string{"strike_range_percent"},
		},
		{
			name: "nearest counts both zero",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "nearest",
				NearestCountAbove: intPtr(0), NearestCountBelow: intPtr(0), DurationDays: intPtr(30),
			},
			fields: []string{"nearest_count_above"},
		},
		{
			name: "nearest count above maximum",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "nearest",
				NearestCountBelow: intPtr(51), DurationDays: intPtr(30),
			},
			fields: []string{"nearest_count_below"},
		},
		{
			name: "non-positive strike",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "exact",
				StrikePrice: decPtr("0"), DurationDays: intPtr(30),
			},
			fields: []string{"strike_price"},
		},
		{
			name: "tolerance above duration",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "exact",
				StrikePrice: decPtr("100"), DurationDays: intPtr(2), DurationToleranceDays: intPtr(5),
			},
			fields: []string{"duration_tolerance_days"},
		},
		{
			name: "lookback out of range",
			req: QueryRequest{
				Ticker: "SPY", OptionType: "call", StrikeMode: "exact",
				StrikePrice: decPtr("100"), DurationDays: intPtr(30), LookbackDays: intPtr(0),
			},
			fields: []string{"lookback_days"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := svc.QueryPremiums(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)

			var verrs errors.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tt.fields, verrs.FieldNames())
		})
	}
}

func TestQueryPremiums_DefaultToleranceCappedAtDuration(t *testing.T) {
	store := newMemoryStore(newRecord().CollectedDaysAgo(1).DTE(0).Build())
	svc := newTestService(store)

	resp, err := svc.QueryPremiums(context.Background(), exactRequest("100", 0))
	require.NoError(t, err)
	assert.Equal(t, 0, resp.DurationToleranceDays)
	require.Len(t, resp.Results, 1)
}

func TestQueryPremiums_UpstreamUnavailable(t *testing.T) {
	repo := new(MockRepository)
	repo.On("ObservedStrikes", mock.Anything, "SPY", premium.Call, mock.Anything).
		Return([]decimal.Decimal{decimal.NewFromInt(100)}, nil)
	repo.On("ObservedExpirations", mock.Anything, "SPY", premium.Call, mock.Anything).
		Return([]time.Time{fixedNow.AddDate(0, 0, 30).Truncate(24 * time.Hour)}, nil)
	repo.On("FetchRecords", mock.Anything, mock.AnythingOfType("premium.RecordFilter")).
		Return(nil, errors.New("dial tcp 10.0.0.5:9000: connection refused"))

	svc := newTestService(repo)

	resp, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.Error(t, err)
	assert.Nil(t, resp, "store failures are never turned into empty results")
	assert.ErrorIs(t, err, errors.ErrUpstreamUnavailable)
	assert.Equal(t, errors.CodeUpstreamUnavailable, errors.ToAPIError(err).Code)
	repo.AssertExpectations(t)
}

func TestQueryPremiums_Cancelled(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.QueryPremiums(ctx, exactRequest("100", 30))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, errors.CodeDeadlineExceeded, errors.ToAPIError(err).Code)
	repo.AssertNotCalled(t, "ObservedStrikes", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryPremiums_TickerCatalog(t *testing.T) {
	catalog := new(MockCatalog)
	catalog.On("GetByTicker", mock.Anything, "ZZZZ").Return(nil, errors.ErrNotFound)
	catalog.On("GetByTicker", mock.Anything, "SPY").
		Return(&stock.Stock{Ticker: "SPY", Status: stock.StatusActive}, nil)

	repo := new(MockRepository)
	repo.On("ObservedStrikes", mock.Anything, "SPY", premium.Call, mock.Anything).
		Return([]decimal.Decimal{}, nil)

	svc := newTestService(repo, WithCatalog(catalog))

	req := exactRequest("100", 30)
	req.Ticker = "zzzz"
	_, err := svc.QueryPremiums(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTickerNotFound)
	assert.Equal(t, 404, errors.ToAPIError(err).Status)

	resp, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	catalog.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "ObservedStrikes", 1)
}

func TestQueryPremiums_Cache(t *testing.T) {
	store := newMemoryStore(newRecord().Build())
	cache := newMemoryCache()
	svc := newTestService(store, WithCache(cache))

	first, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, store.fetchCount())

	require.NoError(t, svc.InvalidateTicker(context.Background(), "SPY"))

	third, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, store.fetchCount())
}

func TestQueryPremiums_Bookkeeping(t *testing.T) {
	store := newMemoryStore(newRecord().Build())
	queryLog := &memoryQueryLog{}
	counter := &memoryCounter{}
	svc := newTestService(store, WithQueryLog(queryLog), WithCounter(counter))

	_, err := svc.QueryPremiums(context.Background(), exactRequest("100", 30))
	require.NoError(t, err)
	_, err = svc.QueryPremiums(context.Background(), exactRequest("101", 30))
	require.NoError(t, err)
	_, err = svc.QueryPremiums(context.Background(), QueryRequest{Ticker: "SPY"})
	require.Error(t, err)

	n, err := svc.QueriesOn(context.Background(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, queryLog.entries, 3)
	assert.Equal(t, "responded", queryLog.entries[0].Status)
	assert.Equal(t, uint32(1), queryLog.entries[0].Results)
	assert.Equal(t, "empty", queryLog.entries[1].Status)
	assert.Equal(t, "strikes_resolved", queryLog.entries[1].EmptyAt)
	assert.Equal(t, errors.CodeValidation, queryLog.entries[2].Status)
	for _, e := range queryLog.entries {
		assert.NotEmpty(t, e.QueryID)
		assert.Equal(t, string(premium.QueryKindPremium), e.Kind)
	}
}

func TestQueriesOn_Disabled(t *testing.T) {
	svc := newTestService(newMemoryStore())

	_, err := svc.QueriesOn(context.Background(), fixedNow)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
}
