package premium_query

import (
	"time"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
)

// QueryResponse answers a QueryRequest. Results is never nil.
type QueryResponse struct {
	QueryID               string                     `json:"query_id"`
	Ticker                string                     `json:"ticker"`
	OptionType            string                     `json:"option_type"`
	QueryTimestamp        time.Time                  `json:"query_timestamp"`
	StrikeMode            string                     `json:"strike_mode"`
	DurationDays          int                        `json:"duration_days"`
	DurationToleranceDays int                        `json:"duration_tolerance_days"`
	LookbackDays          int                        `json:"lookback_days"`
	UnderlyingPrice       *decimal.Decimal           `json:"underlying_price"`
	Results               []premium.AggregatedResult `json:"results"`
	TotalStrikes          int                        `json:"total_strikes"`
	TotalDataPoints       int                        `json:"total_data_points"`
	Cached                bool                       `json:"cached"`
}

// Period is a closed time interval
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ChartResponse answers a ChartRequest. Surface and heatmap answers always carry both
// grids, empty when there is no data; time series leave them null.
type ChartResponse struct {
	QueryID          string            `json:"query_id"`
	Ticker           string            `json:"ticker"`
	OptionType       string            `json:"option_type"`
	ChartType        string            `json:"chart_type"`
	Statistic        string            `json:"statistic,omitempty"`
	StrikePrices     []decimal.Decimal `json:"strike_prices"`
	DurationsDays    []int             `json:"durations_days"`
	PremiumGrid      [][]*float64      `json:"premium_grid"`
	DataPointsGrid   [][]int           `json:"data_points_grid"`
	Timestamps       []time.Time       `json:"timestamps,omitempty"`
	Series           []premium.Series  `json:"series,omitempty"`
	TotalDataPoints  int               `json:"total_data_points"`
	CollectionPeriod Period            `json:"collection_period"`
}

func newQueryResponse(id string, q premiumQuery, now time.Time) *QueryResponse {
	return &QueryResponse{
		QueryID:               id,
		Ticker:                q.ticker,
		OptionType:            q.optionType.String(),
		QueryTimestamp:        now,
		StrikeMode:            string(q.selection.Mode()),
		DurationDays:          q.duration.RequestedDays,
		DurationToleranceDays: q.duration.ToleranceDays,
		LookbackDays:          q.lookbackDays,
		Results:               []premium.AggregatedResult{},
	}
}

func (r *QueryResponse) setResults(results []premium.AggregatedResult) {
	if results == nil {
		results = []premium.AggregatedResult{}
	}
	r.Results = results

	strikes := make(map[string]struct{}, len(results))
	r.TotalDataPoints = 0
	for _, res := range results {
		strikes[res.StrikePrice.String()] = struct{}{}
		r.TotalDataPoints += res.DataPoints
	}
	r.TotalStrikes = len(strikes)
}

func newChartResponse(id string, q chartQuery, window premium.Window, g premium.ChartGrid) *ChartResponse {
	resp := &ChartResponse{
		QueryID:          id,
		Ticker:           q.ticker,
		OptionType:       q.optionType.String(),
		ChartType:        string(q.chartType),
		StrikePrices:     g.StrikeAxis,
		DurationsDays:    g.DurationAxis,
		CollectionPeriod: Period{Start: window.Start, End: window.End},
	}
	if resp.StrikePrices == nil {
		resp.StrikePrices = []decimal.Decimal{}
	}
	if resp.DurationsDays == nil {
		resp.DurationsDays = []int{}
	}

	switch q.chartType {
	case premium.ChartTimeSeries2D:
		resp.Timestamps = g.TimeAxis
		resp.Series = g.Series
		for _, s := range g.Series {
			for _, p := range s.Points {
				resp.TotalDataPoints += p.DataPoints
			}
		}
	default:
		resp.Statistic = string(q.statistic)
		resp.PremiumGrid = g.Values
		resp.DataPointsGrid = g.Counts
		if resp.PremiumGrid == nil {
			resp.PremiumGrid = [][]*float64{}
		}
		if resp.DataPointsGrid == nil {
			resp.DataPointsGrid = [][]int{}
		}
		for _, row := range g.Counts {
			for _, n := range row {
				resp.TotalDataPoints += n
			}
		}
	}
	return resp
}
