package premium

import (
	"strings"
	"time"

	"premiummeter/pkg/errors"
)

// IngestionEvent announces that the collector wrote new records for a ticker
type IngestionEvent struct {
	Ticker      string    `json:"ticker"`
	OptionType  string    `json:"option_type,omitempty"` // empty means both
	CollectedAt time.Time `json:"collected_at"`
	RecordCount int       `json:"record_count"`
}

// Normalize upper-cases the ticker and checks the event is usable
func (e *IngestionEvent) Normalize() error {
	var verrs errors.ValidationErrors

	e.Ticker = strings.ToUpper(strings.TrimSpace(e.Ticker))
	if e.Ticker == "" {
		verrs.Add("ticker", "is required", nil)
	}
	if e.OptionType != "" {
		if t, ok := ParseOptionType(e.OptionType); ok {
			e.OptionType = string(t)
		} else {
			verrs.Add("option_type", "must be call or put", e.OptionType)
		}
	}
	if e.RecordCount < 0 {
		verrs.Add("record_count", "must be >= 0", e.RecordCount)
	}

	return verrs.ToError()
}
