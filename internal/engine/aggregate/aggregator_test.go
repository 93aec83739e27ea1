package aggregate

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/errors"
)

var t0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func cohort(premiums ...string) premium.Cohort {
	c := premium.Cohort{
		Strike:         decimal.NewFromInt(100),
		ExpirationDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DurationDays:   30,
	}
	for i, p := range premiums {
		c.Records = append(c.Records, premium.Record{
			StrikePrice:         c.Strike,
			ExpirationDate:      c.ExpirationDate,
			CollectionTimestamp: t0.Add(time.Duration(i) * time.Hour),
			Premium:             decimal.RequireFromString(p),
		})
		c.DaysToExpiry = append(c.DaysToExpiry, 30)
	}
	return c
}

func TestAggregate_Basic(t *testing.T) {
	res, err := Aggregate(cohort("1", "2", "3"), nil)
	require.NoError(t, err)

	assert.True(t, res.MinPremium.Equal(decimal.NewFromInt(1)))
	assert.True(t, res.MaxPremium.Equal(decimal.NewFromInt(3)))
	assert.True(t, res.AvgPremium.Equal(decimal.NewFromInt(2)))
	assert.True(t, res.MedianPremium.Equal(decimal.NewFromInt(2)))
	assert.True(t, res.LatestPremium.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 3, res.DataPoints)
	assert.Equal(t, "0.8165", res.StdPremium.String())
	assert.Equal(t, t0, res.FirstSeen)
	assert.Equal(t, t0.Add(2*time.Hour), res.LastSeen)
	assert.Nil(t, res.Greeks)
}

func TestAggregate_LatestTieGoesToFirst(t *testing.T) {
	c := cohort("4.10", "3.90", "4.50")
	c.Records[0].CollectionTimestamp = t0.Add(5 * time.Hour)
	c.Records[1].CollectionTimestamp = t0.Add(5 * time.Hour)

	res, err := Aggregate(c, nil)
	require.NoError(t, err)

	assert.Equal(t, "4.1", res.LatestPremium.String())
	assert.Equal(t, t0.Add(5*time.Hour), res.LastSeen)
	assert.Equal(t, t0.Add(2*time.Hour), res.FirstSeen)
}

func TestAggregate_EvenMedian(t *testing.T) {
	res, err := Aggregate(cohort("1", "4", "2", "3"), nil)
	require.NoError(t, err)

	assert.Equal(t, "2.5", res.MedianPremium.String())
	assert.Equal(t, "2.5", res.AvgPremium.String())
}

func TestAggregate_Empty(t *testing.T) {
	_, err := Aggregate(premium.Cohort{}, nil)
	assert.ErrorIs(t, err, errors.ErrEmptyCohort)
}

func TestAggregate_Greeks(t *testing.T) {
	c := cohort("1", "2", "3")

	calls := 0
	fn := func(r premium.Record, dte int) (premium.Greeks, bool) {
		calls++
		assert.Equal(t, 30, dte)
		if r.Premium.Equal(decimal.NewFromInt(2)) {
			return premium.Greeks{}, false
		}
		v := r.Premium.InexactFloat64()
		return premium.Greeks{Delta: v / 10, Gamma: v, Theta: -v, Vega: v, Rho: v}, true
	}

	res, err := Aggregate(c, fn)
	require.NoError(t, err)
	require.NotNil(t, res.Greeks)

	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, res.Greeks.DeltaCount)
	assert.Equal(t, 2, res.Greeks.RhoCount)
	assert.InDelta(t, 0.2, *res.Greeks.Delta, 1e-12)
	assert.InDelta(t, -2.0, *res.Greeks.Theta, 1e-12)
	assert.Equal(t, 3, res.DataPoints, "data points count every record")
}

func TestAggregate_GreeksRounded(t *testing.T) {
	fn := func(r premium.Record, _ int) (premium.Greeks, bool) {
		v := r.Premium.InexactFloat64()
		return premium.Greeks{Delta: v / 3, Gamma: v / 7, Theta: -v / 3, Vega: v, Rho: v}, true
	}

	res, err := Aggregate(cohort("1", "1"), fn)
	require.NoError(t, err)
	require.NotNil(t, res.Greeks)

	assert.Equal(t, 0.3333, *res.Greeks.Delta)
	assert.Equal(t, 0.1429, *res.Greeks.Gamma)
	assert.Equal(t, -0.3333, *res.Greeks.Theta)
	assert.True(t, res.AvgPremium.Equal(decimal.NewFromInt(1)))
	assert.True(t, res.PremiumSum.Equal(decimal.NewFromInt(2)))
}

func TestAggregate_NoComputableGreeks(t *testing.T) {
	fn := func(premium.Record, int) (premium.Greeks, bool) { return premium.Greeks{}, false }

	res, err := Aggregate(cohort("1", "2"), fn)
	require.NoError(t, err)
	assert.Nil(t, res.Greeks)
}
