package greeks

import (
	"premiummeter/internal/domain/premium"
)

// Outcome classifies a per-record computation
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeMissingInputs Outcome = "missing_inputs" // no underlying price or implied volatility
	OutcomeDegenerate    Outcome = "degenerate"
)

// Calculator binds a risk-free rate and a year length to Calculate
type Calculator struct {
	rate        float64
	daysPerYear float64
}

// NewCalculator creates a calculator. daysPerYear converts days-to-expiry into T.
func NewCalculator(rate, daysPerYear float64) *Calculator {
	if daysPerYear <= 0 {
		daysPerYear = 365
	}
	return &Calculator{rate: rate, daysPerYear: daysPerYear}
}

// Rate returns the risk-free rate in use
func (c *Calculator) Rate() float64 {
	return c.rate
}

// ForRecord computes the Greeks of one observation dte days before expiry
func (c *Calculator) ForRecord(r premium.Record, dte int) (premium.Greeks, Outcome) {
	if r.UnderlyingPrice == nil || r.ImpliedVolatility == nil {
		return premium.Greeks{}, OutcomeMissingInputs
	}

	g, ok := Calculate(Input{
		Spot:       r.UnderlyingPrice.InexactFloat64(),
		Strike:     r.StrikePrice.InexactFloat64(),
		Years:      float64(dte) / c.daysPerYear,
		Rate:       c.rate,
		Volatility: *r.ImpliedVolatility,
		Type:       r.Type(),
	})
	if !ok {
		return premium.Greeks{}, OutcomeDegenerate
	}
	return g, OutcomeOK
}
