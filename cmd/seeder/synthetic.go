package main

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
)

// SyntheticConfig describes the generated history of one ticker
type SyntheticConfig struct {
	Ticker          string
	Spot            decimal.Decimal // price at the start of the history
	StrikeStep      decimal.Decimal
	StrikesEachSide int
	ExpiryOffsets   []int // days after End
	Days            int
	End             time.Time
	Seed            uint64
}

// Synthesize produces one end-of-day snapshot per day for every strike, expiration and
// option type. Strikes form a fixed grid around the starting spot so that every contract
// is observed on every day.
func Synthesize(cfg SyntheticConfig) []premium.Record {
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(len(cfg.Ticker))))

	end := time.Date(cfg.End.Year(), cfg.End.Month(), cfg.End.Day(), 20, 0, 0, 0, time.UTC)
	expirations := make([]time.Time, 0, len(cfg.ExpiryOffsets))
	for _, off := range cfg.ExpiryOffsets {
		expirations = append(expirations, end.AddDate(0, 0, off).Truncate(24*time.Hour))
	}

	center := cfg.Spot.Div(cfg.StrikeStep).Round(0).Mul(cfg.StrikeStep)
	strikes := make([]decimal.Decimal, 0, 2*cfg.StrikesEachSide+1)
	for i := -cfg.StrikesEachSide; i <= cfg.StrikesEachSide; i++ {
		k := center.Add(cfg.StrikeStep.Mul(decimal.NewFromInt(int64(i))))
		if k.IsPositive() {
			strikes = append(strikes, k)
		}
	}

	spot := cfg.Spot.InexactFloat64()
	records := make([]premium.Record, 0, cfg.Days*len(expirations)*len(strikes)*2)

	for d := range cfg.Days {
		ts := end.AddDate(0, 0, d-cfg.Days+1)
		if d > 0 {
			spot *= 1 + rng.NormFloat64()*0.012
		}
		underlying := decimal.NewFromFloat(spot).Round(2)

		for _, exp := range expirations {
			years := exp.Sub(ts.Truncate(24*time.Hour)).Hours() / 24 / 365
			if years <= 0 {
				continue
			}
			for _, k := range strikes {
				strike := k.InexactFloat64()
				moneyness := math.Log(strike / spot)
				iv := 0.22 + 0.15*math.Abs(moneyness) + rng.Float64()*0.01

				for _, typ := range []premium.OptionType{premium.Call, premium.Put} {
					records = append(records, premium.Record{
						Ticker:              cfg.Ticker,
						OptionType:          string(typ),
						StrikePrice:         k,
						ExpirationDate:      exp,
						CollectionTimestamp: ts,
						Premium:             syntheticPremium(typ, spot, strike, iv, years, moneyness),
						UnderlyingPrice:     &underlying,
						ImpliedVolatility:   &iv,
						Volume:              uintPtr(uint64(rng.IntN(5000))),
						OpenInterest:        uintPtr(uint64(1000 + rng.IntN(20000))),
					})
				}
			}
		}
	}

	return records
}

// syntheticPremium is intrinsic value plus a time value that decays with distance from the money
func syntheticPremium(typ premium.OptionType, spot, strike, iv, years, moneyness float64) decimal.Decimal {
	intrinsic := math.Max(spot-strike, 0)
	if typ == premium.Put {
		intrinsic = math.Max(strike-spot, 0)
	}
	variance := iv * iv * years
	timeValue := 0.4 * spot * iv * math.Sqrt(years) * math.Exp(-moneyness*moneyness/(2*variance))

	p := decimal.NewFromFloat(intrinsic + timeValue).Round(2)
	if p.LessThan(minPremium) {
		return minPremium
	}
	return p
}

var minPremium = decimal.RequireFromString("0.01")

func uintPtr(v uint64) *uint64 { return &v }
