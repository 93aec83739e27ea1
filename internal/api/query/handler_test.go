package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"premiummeter/internal/domain/premium"
	"premiummeter/internal/services/premium_query"
	"premiummeter/pkg/errors"
	"premiummeter/pkg/logger"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) QueryPremiums(ctx context.Context, req premium_query.QueryRequest) (*premium_query.QueryResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*premium_query.QueryResponse), args.Error(1)
}

func (m *MockEngine) BuildChart(ctx context.Context, req premium_query.ChartRequest) (*premium_query.ChartResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*premium_query.ChartResponse), args.Error(1)
}

func (m *MockEngine) QueriesOn(ctx context.Context, day time.Time) (int64, error) {
	args := m.Called(ctx, day)
	return args.Get(0).(int64), args.Error(1)
}

type stubQueryLog struct {
	counts []premium.StatusCount
	err    error
	since  time.Time
}

func (s *stubQueryLog) CountByStatus(_ context.Context, since time.Time) ([]premium.StatusCount, error) {
	s.since = since
	return s.counts, s.err
}

func testLogger() *logger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return logger.New(zapLogger)
}

func newTestServer(engine Engine, queryLog premium.QueryLogReader) *httptest.Server {
	h := NewHandler(engine, queryLog, testLogger())
	h.now = func() time.Time { return time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC) }

	mux := http.NewServeMux()
	h.Register(mux)
	return httptest.NewServer(mux)
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errors.APIError {
	t.Helper()
	var body errors.APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandlePremium_Success(t *testing.T) {
	engine := new(MockEngine)
	srv := newTestServer(engine, nil)
	defer srv.Close()

	strike := decimal.NewFromInt(100)
	engine.On("QueryPremiums", mock.Anything, mock.MatchedBy(func(req premium_query.QueryRequest) bool {
		return req.Ticker == "AAPL" && req.StrikeMode == "exact" &&
			req.StrikePrice != nil && req.StrikePrice.Equal(strike) &&
			req.DurationDays != nil && *req.DurationDays == 30
	})).Return(&premium_query.QueryResponse{
		Ticker:     "AAPL",
		OptionType: "call",
		StrikeMode: "exact",
		Results: []premium.AggregatedResult{{
			StrikePrice: strike,
			DataPoints:  3,
			AvgPremium:  decimal.RequireFromString("2.5"),
		}},
		TotalStrikes:    1,
		TotalDataPoints: 3,
	}, nil).Once()

	resp := post(t, srv.URL+"/api/v1/query/premium",
		`{"ticker":"AAPL","option_type":"call","strike_mode":"exact","strike_price":100,"duration_days":30}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body premium_query.QueryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Results, 1)
	assert.True(t, body.Results[0].AvgPremium.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 3, body.TotalDataPoints)

	engine.AssertExpectations(t)
}

func TestHandlePremium_ErrorMapping(t *testing.T) {
	var verrs errors.ValidationErrors
	verrs.Add("duration_days", "is required", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		retryAfter bool
	}{
		{"validation", verrs.ToError(), http.StatusBadRequest, errors.CodeValidation, false},
		{"ticker not found", errors.Wrap(errors.ErrTickerNotFound, "ticker ZZZ"), http.StatusNotFound, errors.CodeTickerNotFound, false},
		{"upstream", errors.Wrap(errors.ErrUpstreamUnavailable, "fetch records"), http.StatusServiceUnavailable, errors.CodeUpstreamUnavailable, true},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, errors.CodeDeadlineExceeded, true},
		{"internal", errors.New("boom"), http.StatusInternalServerError, errors.CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockEngine)
			srv := newTestServer(engine, nil)
			defer srv.Close()

			engine.On("QueryPremiums", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			resp := post(t, srv.URL+"/api/v1/query/premium", `{"ticker":"AAPL"}`)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.retryAfter, resp.Header.Get("Retry-After") != "")
			body := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandlePremium_MalformedBody(t *testing.T) {
	engine := new(MockEngine)
	srv := newTestServer(engine, nil)
	defer srv.Close()

	for _, body := range []string{``, `{"ticker":`, `{"ticker":"AAPL","unknown_field":1}`} {
		resp := post(t, srv.URL+"/api/v1/query/premium", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
		assert.Equal(t, errors.CodeValidation, decodeError(t, resp).Code)
	}

	engine.AssertNotCalled(t, "QueryPremiums", mock.Anything, mock.Anything)
}

func TestHandlePremium_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(new(MockEngine), nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/query/premium")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleChart(t *testing.T) {
	engine := new(MockEngine)
	srv := newTestServer(engine, nil)
	defer srv.Close()

	cell := 2.5
	engine.On("BuildChart", mock.Anything, mock.MatchedBy(func(req premium_query.ChartRequest) bool {
		return req.ChartType == "heatmap" && len(req.StrikePrices) == 2 && len(req.DurationDays) == 1
	})).Return(&premium_query.ChartResponse{
		Ticker:         "AAPL",
		ChartType:      "heatmap",
		StrikePrices:   []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(105)},
		DurationsDays:  []int{30},
		PremiumGrid:    [][]*float64{{&cell}, {nil}},
		DataPointsGrid: [][]int{{3}, {0}},
	}, nil).Once()

	resp := post(t, srv.URL+"/api/v1/query/chart",
		`{"ticker":"AAPL","option_type":"call","chart_type":"heatmap","strike_prices":[100,105],"duration_days":[30]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	grid := body["premium_grid"].([]interface{})
	require.Len(t, grid, 2)
	assert.Equal(t, 2.5, grid[0].([]interface{})[0])
	assert.Nil(t, grid[1].([]interface{})[0], "cells without data serialize as null")

	engine.AssertExpectations(t)
}

func TestHandleStats(t *testing.T) {
	engine := new(MockEngine)
	queryLog := &stubQueryLog{counts: []premium.StatusCount{{Status: "responded", Count: 1200}, {Status: "empty", Count: 34}}}
	srv := newTestServer(engine, queryLog)
	defer srv.Close()

	today := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	engine.On("QueriesOn", mock.Anything, today).Return(int64(1234), nil).Once()

	resp, err := http.Get(srv.URL + "/api/v1/stats/queries")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "2024-03-01", body.Date)
	assert.Equal(t, int64(1234), body.Queries)
	assert.Equal(t, "1,234", body.QueriesDisplay)
	assert.Len(t, body.ByStatus, 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), queryLog.since)
}

func TestHandleStats_ExplicitDateAndErrors(t *testing.T) {
	engine := new(MockEngine)
	queryLog := &stubQueryLog{err: errors.New("clickhouse down")}
	srv := newTestServer(engine, queryLog)
	defer srv.Close()

	day := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	engine.On("QueriesOn", mock.Anything, day).Return(int64(7), nil).Once()

	resp, err := http.Get(srv.URL + "/api/v1/stats/queries?date=2024-02-28")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(7), body.Queries)
	assert.Empty(t, body.ByStatus)

	bad, err := http.Get(srv.URL + "/api/v1/stats/queries?date=yesterday")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	engine.On("QueriesOn", mock.Anything, mock.Anything).Return(int64(0), errors.Wrap(errors.ErrUnavailable, "query counter disabled")).Once()
	off, err := http.Get(srv.URL + "/api/v1/stats/queries?date=2024-02-27")
	require.NoError(t, err)
	defer off.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, off.StatusCode)
}
