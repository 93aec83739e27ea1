// Package aggregate reduces a cohort of premium records to summary statistics.
package aggregate

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/errors"
)

// Derived statistics and Greek averages are rounded to the storage scale of premiums
const scale = 4

// GreeksFunc computes the Greeks of one record; ok=false drops the record from the averages
type GreeksFunc func(r premium.Record, dte int) (g premium.Greeks, ok bool)

// Aggregate summarises a cohort. greeks may be nil, in which case no Greeks are reported.
func Aggregate(c premium.Cohort, greeks GreeksFunc) (premium.AggregatedResult, error) {
	n := len(c.Records)
	if n == 0 {
		return premium.AggregatedResult{}, errors.ErrEmptyCohort
	}

	first := c.Records[0]
	res := premium.AggregatedResult{
		StrikePrice:    c.Strike,
		ExpirationDate: c.ExpirationDate,
		DurationDays:   c.DurationDays,
		DataPoints:     n,
		MinPremium:     first.Premium,
		MaxPremium:     first.Premium,
		LatestPremium:  first.Premium,
		FirstSeen:      first.CollectionTimestamp,
		LastSeen:       first.CollectionTimestamp,
	}

	sum := decimal.Zero
	values := make([]decimal.Decimal, n)
	for i, r := range c.Records {
		values[i] = r.Premium
		sum = sum.Add(r.Premium)

		if r.Premium.LessThan(res.MinPremium) {
			res.MinPremium = r.Premium
		}
		if r.Premium.GreaterThan(res.MaxPremium) {
			res.MaxPremium = r.Premium
		}
		// strictly later only, so the first record wins a timestamp tie
		if r.CollectionTimestamp.After(res.LastSeen) {
			res.LastSeen = r.CollectionTimestamp
			res.LatestPremium = r.Premium
		}
		if r.CollectionTimestamp.Before(res.FirstSeen) {
			res.FirstSeen = r.CollectionTimestamp
		}
	}

	res.PremiumSum = sum
	count := decimal.NewFromInt(int64(n))
	mean := sum.Div(count)
	res.AvgPremium = mean.Round(scale)
	res.MedianPremium = median(values).Round(scale)
	res.StdPremium = stdDev(values, mean).Round(scale)

	if greeks != nil {
		res.Greeks = averageGreeks(c, greeks)
	}
	return res, nil
}

func median(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// stdDev is the population standard deviation
func stdDev(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	variance := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(values))))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

type runningMean struct {
	sum   float64
	count int
}

func (m *runningMean) add(v float64) {
	m.sum += v
	m.count++
}

func (m *runningMean) value() *float64 {
	if m.count == 0 {
		return nil
	}
	v := decimal.NewFromFloat(m.sum / float64(m.count)).Round(scale).InexactFloat64()
	return &v
}

func averageGreeks(c premium.Cohort, greeks GreeksFunc) *premium.AveragedGreeks {
	var delta, gamma, theta, vega, rho runningMean

	for i, r := range c.Records {
		dte := c.DurationDays
		if i < len(c.DaysToExpiry) {
			dte = c.DaysToExpiry[i]
		}
		g, ok := greeks(r, dte)
		if !ok {
			continue
		}
		delta.add(g.Delta)
		gamma.add(g.Gamma)
		theta.add(g.Theta)
		vega.add(g.Vega)
		rho.add(g.Rho)
	}

	if delta.count+gamma.count+theta.count+vega.count+rho.count == 0 {
		return nil
	}
	return &premium.AveragedGreeks{
		Delta:      delta.value(),
		Gamma:      gamma.value(),
		Theta:      theta.value(),
		Vega:       vega.value(),
		Rho:        rho.value(),
		DeltaCount: delta.count,
		GammaCount: gamma.count,
		ThetaCount: theta.count,
		VegaCount:  vega.count,
		RhoCount:   rho.count,
	}
}
