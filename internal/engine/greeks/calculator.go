// Package greeks computes Black-Scholes sensitivities for single premium observations.
package greeks

import (
	"math"

	"premiummeter/internal/domain/premium"
)

// Input holds the Black-Scholes parameters
type Input struct {
	Spot       float64 // S
	Strike     float64 // K
	Years      float64 // T
	Rate       float64 // r, annualized
	Volatility float64 // sigma, annualized
	Type       premium.OptionType
}

// Calculate returns the Greeks of in. ok is false when an input is out of domain
// or the result is not finite.
func Calculate(in Input) (g premium.Greeks, ok bool) {
	if in.Years <= 0 || in.Volatility <= 0 || in.Spot <= 0 || in.Strike <= 0 {
		return premium.Greeks{}, false
	}
	if in.Type != premium.Call && in.Type != premium.Put {
		return premium.Greeks{}, false
	}

	sqrtT := math.Sqrt(in.Years)
	d1 := (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.Years) / (in.Volatility * sqrtT)
	d2 := d1 - in.Volatility*sqrtT
	discount := in.Strike * math.Exp(-in.Rate*in.Years)
	pdf := normPdf(d1)

	g.Gamma = pdf / (in.Spot * in.Volatility * sqrtT)
	g.Vega = in.Spot * pdf * sqrtT / 100
	decay := -in.Spot * pdf * in.Volatility / (2 * sqrtT)

	if in.Type == premium.Call {
		g.Delta = normCdf(d1)
		g.Theta = (decay - in.Rate*discount*normCdf(d2)) / 365
		g.Rho = discount * in.Years * normCdf(d2) / 100
	} else {
		g.Delta = normCdf(d1) - 1
		g.Theta = (decay + in.Rate*discount*normCdf(-d2)) / 365
		g.Rho = -discount * in.Years * normCdf(-d2) / 100
	}

	for _, v := range []float64{g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return premium.Greeks{}, false
		}
	}
	return g, true
}

func normCdf(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPdf(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
