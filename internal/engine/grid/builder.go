// Package grid arranges aggregated results into chart-ready matrices and series.
package grid

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/errors"
)

const scale = 4

// SeriesInput is the raw data of one (strike, requested duration) series
type SeriesInput struct {
	Strike       decimal.Decimal
	DurationDays int
	Records      []premium.Record
}

// Input carries everything a chart may need. Surface and heatmap read Results,
// time series read Series.
type Input struct {
	Results   []premium.AggregatedResult
	Series    []SeriesInput
	Statistic premium.Statistic

	// Optional axis values that must appear even without data
	Strikes   []decimal.Decimal
	Durations []int
}

// Build dispatches on the chart type
func Build(chartType premium.ChartType, in Input) (premium.ChartGrid, error) {
	switch chartType {
	case premium.ChartSurface3D, premium.ChartHeatmap:
		g := Surface(in.Results, in.Statistic, in.Strikes, in.Durations)
		g.Type = chartType
		return g, nil
	case premium.ChartTimeSeries2D:
		return TimeSeries(in.Series), nil
	}
	return premium.ChartGrid{}, errors.Wrapf(errors.ErrInvalidInput, "unknown chart type %q", chartType)
}

type cell struct {
	sum      decimal.Decimal
	points   int
	min      decimal.Decimal
	max      decimal.Decimal
	latest   decimal.Decimal
	lastSeen time.Time
}

func (c *cell) merge(r premium.AggregatedResult) {
	if c.points == 0 {
		c.min, c.max = r.MinPremium, r.MaxPremium
		c.latest, c.lastSeen = r.LatestPremium, r.LastSeen
	} else {
		if r.MinPremium.LessThan(c.min) {
			c.min = r.MinPremium
		}
		if r.MaxPremium.GreaterThan(c.max) {
			c.max = r.MaxPremium
		}
		if r.LastSeen.After(c.lastSeen) {
			c.latest, c.lastSeen = r.LatestPremium, r.LastSeen
		}
	}
	c.sum = c.sum.Add(r.PremiumSum)
	c.points += r.DataPoints
}

func (c *cell) value(stat premium.Statistic) *float64 {
	if c == nil || c.points == 0 {
		return nil
	}
	var v decimal.Decimal
	switch stat {
	case premium.StatMin:
		v = c.min
	case premium.StatMax:
		v = c.max
	case premium.StatLatest:
		v = c.latest
	default:
		v = c.sum.Div(decimal.NewFromInt(int64(c.points)))
	}
	f := v.Round(scale).InexactFloat64()
	return &f
}

// Surface builds the strike by duration matrix. Values[i][j] is nil when no result
// landed on (StrikeAxis[i], DurationAxis[j]). Results sharing a cell are merged.
func Surface(results []premium.AggregatedResult, stat premium.Statistic, strikes []decimal.Decimal, durations []int) premium.ChartGrid {
	strikeAxis := append([]decimal.Decimal(nil), strikes...)
	durationAxis := append([]int(nil), durations...)
	for _, r := range results {
		strikeAxis = append(strikeAxis, r.StrikePrice)
		durationAxis = append(durationAxis, r.DurationDays)
	}
	strikeAxis = distinctStrikes(strikeAxis)
	durationAxis = distinctInts(durationAxis)

	strikeIdx := make(map[string]int, len(strikeAxis))
	for i, k := range strikeAxis {
		strikeIdx[k.String()] = i
	}
	durationIdx := make(map[int]int, len(durationAxis))
	for j, d := range durationAxis {
		durationIdx[d] = j
	}

	cells := make([][]*cell, len(strikeAxis))
	for i := range cells {
		cells[i] = make([]*cell, len(durationAxis))
	}
	for _, r := range results {
		i, j := strikeIdx[r.StrikePrice.String()], durationIdx[r.DurationDays]
		if cells[i][j] == nil {
			cells[i][j] = &cell{}
		}
		cells[i][j].merge(r)
	}

	values := make([][]*float64, len(strikeAxis))
	counts := make([][]int, len(strikeAxis))
	for i := range cells {
		values[i] = make([]*float64, len(durationAxis))
		counts[i] = make([]int, len(durationAxis))
		for j, c := range cells[i] {
			values[i][j] = c.value(stat)
			if c != nil {
				counts[i][j] = c.points
			}
		}
	}

	return premium.ChartGrid{
		Type:         premium.ChartSurface3D,
		StrikeAxis:   strikeAxis,
		DurationAxis: durationAxis,
		Values:       values,
		Counts:       counts,
	}
}

// TimeSeries builds one series per input with UTC day buckets. Days without
// observations are absent, never interpolated.
func TimeSeries(inputs []SeriesInput) premium.ChartGrid {
	g := premium.ChartGrid{Type: premium.ChartTimeSeries2D}

	sorted := append([]SeriesInput(nil), inputs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := sorted[i].Strike.Cmp(sorted[j].Strike); c != 0 {
			return c < 0
		}
		return sorted[i].DurationDays < sorted[j].DurationDays
	})

	days := make(map[time.Time]struct{})
	var strikes []decimal.Decimal
	var durations []int

	for _, in := range sorted {
		points := dailyPoints(in.Records)
		if len(points) == 0 {
			continue
		}
		for _, p := range points {
			days[p.Timestamp] = struct{}{}
		}
		strikes = append(strikes, in.Strike)
		durations = append(durations, in.DurationDays)
		g.Series = append(g.Series, premium.Series{
			StrikePrice:  in.Strike,
			DurationDays: in.DurationDays,
			Points:       points,
		})
	}

	for day := range days {
		g.TimeAxis = append(g.TimeAxis, day)
	}
	sort.Slice(g.TimeAxis, func(i, j int) bool { return g.TimeAxis[i].Before(g.TimeAxis[j]) })

	g.StrikeAxis = distinctStrikes(strikes)
	g.DurationAxis = distinctInts(durations)
	return g
}

type bucket struct {
	sum   decimal.Decimal
	count int
}

func dailyPoints(records []premium.Record) []premium.SeriesPoint {
	buckets := make(map[time.Time]*bucket)
	for _, r := range records {
		y, m, d := r.CollectionTimestamp.UTC().Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		b, ok := buckets[day]
		if !ok {
			b = &bucket{}
			buckets[day] = b
		}
		b.sum = b.sum.Add(r.Premium)
		b.count++
	}

	points := make([]premium.SeriesPoint, 0, len(buckets))
	for day, b := range buckets {
		points = append(points, premium.SeriesPoint{
			Timestamp:  day,
			AvgPremium: b.sum.Div(decimal.NewFromInt(int64(b.count))).Round(scale).InexactFloat64(),
			DataPoints: b.count,
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points
}

func distinctStrikes(values []decimal.Decimal) []decimal.Decimal {
	sort.SliceStable(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
	out := make([]decimal.Decimal, 0, len(values))
	for _, v := range values {
		if len(out) == 0 || !v.Equal(out[len(out)-1]) {
			out = append(out, v)
		}
	}
	return out
}

func distinctInts(values []int) []int {
	sort.Ints(values)
	out := make([]int, 0, len(values))
	for _, v := range values {
		if len(out) == 0 || v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
