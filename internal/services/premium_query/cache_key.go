package premium_query

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
)

type cacheKeyInput struct {
	Ticker      string   `json:"t"`
	OptionType  string   `json:"o"`
	Strikes     []string `json:"k"`
	Expirations []string `json:"e"`
	Requested   int      `json:"d"`
	Tolerance   int      `json:"tol"`
	WindowStart string   `json:"ws"`
	WindowEnd   string   `json:"we"`
	DayCount    string   `json:"dc"`
	Rate        float64  `json:"r"`
}

// cacheKey fingerprints everything that determines a query's results.
// Window bounds are truncated to the minute so repeated queries share an entry.
func cacheKey(q premiumQuery, strikes []decimal.Decimal, expirations []time.Time, window premium.Window, dayCount string, rate float64) string {
	in := cacheKeyInput{
		Ticker:      q.ticker,
		OptionType:  q.optionType.String(),
		Strikes:     make([]string, len(strikes)),
		Expirations: make([]string, len(expirations)),
		Requested:   q.duration.RequestedDays,
		Tolerance:   q.duration.ToleranceDays,
		WindowStart: window.Start.UTC().Truncate(time.Minute).Format(time.RFC3339),
		WindowEnd:   window.End.UTC().Truncate(time.Minute).Format(time.RFC3339),
		DayCount:    dayCount,
		Rate:        rate,
	}
	for i, k := range strikes {
		in.Strikes[i] = k.String()
	}
	for i, e := range expirations {
		in.Expirations[i] = e.Format(time.DateOnly)
	}

	data, _ := json.Marshal(in)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
