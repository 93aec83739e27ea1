package premium

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is the contract right
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ParseOptionType accepts call/put in any case
func ParseOptionType(s string) (OptionType, bool) {
	switch OptionType(strings.ToLower(strings.TrimSpace(s))) {
	case Call:
		return Call, true
	case Put:
		return Put, true
	}
	return "", false
}

func (t OptionType) String() string { return string(t) }

// Record is one premium observation. Written once by ingestion, never mutated.
// Unique on (ticker, option_type, strike_price, expiration_date, collection_timestamp).
type Record struct {
	Ticker              string           `ch:"ticker"`
	OptionType          string           `ch:"option_type"` // call, put
	StrikePrice         decimal.Decimal  `ch:"strike_price"`
	ExpirationDate      time.Time        `ch:"expiration_date"`
	CollectionTimestamp time.Time        `ch:"collection_timestamp"`
	Premium             decimal.Decimal  `ch:"premium"`
	UnderlyingPrice     *decimal.Decimal `ch:"underlying_price"`
	ImpliedVolatility   *float64         `ch:"implied_volatility"` // annualized, 0.25 = 25%
	Volume              *uint64          `ch:"volume"`
	OpenInterest        *uint64          `ch:"open_interest"`
}

// Type returns the parsed option type of the record
func (r Record) Type() OptionType {
	t, _ := ParseOptionType(r.OptionType)
	return t
}

// Window is a closed interval of collection timestamps
type Window struct {
	Start time.Time
	End   time.Time
}

// LookbackWindow returns [now - days, now]
func LookbackWindow(now time.Time, days int) Window {
	return Window{Start: now.AddDate(0, 0, -days), End: now}
}

// Contains reports whether ts lies inside the window, bounds included
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && !ts.After(w.End)
}

// Greeks are Black-Scholes sensitivities of a single observation
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64 // per calendar day
	Vega  float64 // per 1% volatility
	Rho   float64 // per 1% rate
}
