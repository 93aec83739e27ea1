package premium

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cohort groups the records of one (strike, expiration) pair that matched a duration request
type Cohort struct {
	Strike         decimal.Decimal
	ExpirationDate time.Time
	DurationDays   int      // representative days-to-expiry
	Records        []Record // ordered as read from the store
	DaysToExpiry   []int    // parallel to Records
}

// AveragedGreeks holds per-field means over the records where that field was computable
type AveragedGreeks struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Theta *float64 `json:"theta"`
	Vega  *float64 `json:"vega"`
	Rho   *float64 `json:"rho"`

	DeltaCount int `json:"delta_count"`
	GammaCount int `json:"gamma_count"`
	ThetaCount int `json:"theta_count"`
	VegaCount  int `json:"vega_count"`
	RhoCount   int `json:"rho_count"`
}

// AggregatedResult summarises one cohort. Immutable once built.
type AggregatedResult struct {
	StrikePrice    decimal.Decimal `json:"strike_price"`
	ExpirationDate time.Time       `json:"expiration_date"`
	DurationDays   int             `json:"duration_days"`
	DataPoints     int             `json:"data_points"`
	MinPremium     decimal.Decimal `json:"min_premium"`
	MaxPremium     decimal.Decimal `json:"max_premium"`
	AvgPremium     decimal.Decimal `json:"avg_premium"`
	LatestPremium  decimal.Decimal `json:"latest_premium"`
	MedianPremium  decimal.Decimal `json:"median_premium"`
	StdPremium     decimal.Decimal `json:"std_premium"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	Greeks         *AveragedGreeks `json:"greeks,omitempty"`

	// PremiumSum is the exact sum of the cohort's premiums, kept for merging results
	PremiumSum decimal.Decimal `json:"-"`
}

// ChartType selects the grid layout
type ChartType string

const (
	ChartSurface3D    ChartType = "surface_3d"
	ChartTimeSeries2D ChartType = "time_series_2d"
	ChartHeatmap      ChartType = "heatmap"
)

// ParseChartType validates a wire chart type
func ParseChartType(s string) (ChartType, bool) {
	switch ChartType(s) {
	case ChartSurface3D, ChartTimeSeries2D, ChartHeatmap:
		return ChartType(s), true
	}
	return "", false
}

// Statistic selects the value plotted in surface and heatmap cells
type Statistic string

const (
	StatAvg    Statistic = "avg"
	StatMin    Statistic = "min"
	StatMax    Statistic = "max"
	StatLatest Statistic = "latest"
)

// ParseStatistic validates a wire statistic, defaulting to avg
func ParseStatistic(s string) (Statistic, bool) {
	switch Statistic(s) {
	case "":
		return StatAvg, true
	case StatAvg, StatMin, StatMax, StatLatest:
		return Statistic(s), true
	}
	return "", false
}

// SeriesPoint is one day bucket of a time series
type SeriesPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	AvgPremium float64   `json:"avg_premium"`
	DataPoints int       `json:"data_points"`
}

// Series is the ordered sequence of one (strike, duration) combination
type Series struct {
	StrikePrice  decimal.Decimal `json:"strike_price"`
	DurationDays int             `json:"duration_days"`
	Points       []SeriesPoint   `json:"points"`
}

// ChartGrid is the axis-aligned data of a chart.
// Values[i][j] belongs to (StrikeAxis[i], DurationAxis[j]); nil means no data.
type ChartGrid struct {
	Type         ChartType
	StrikeAxis   []decimal.Decimal
	DurationAxis []int
	Values       [][]*float64
	Counts       [][]int
	TimeAxis     []time.Time
	Series       []Series
}
