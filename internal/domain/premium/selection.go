package premium

import "github.com/shopspring/decimal"

// StrikeMode names a strike-selection policy on the wire
type StrikeMode string

const (
	StrikeModeExact           StrikeMode = "exact"
	StrikeModePercentageRange StrikeMode = "percentage_range"
	StrikeModeNearest         StrikeMode = "nearest"
)

// StrikeSelection is one of ExactStrike, PercentageRange or NearestStrikes.
// The unexported method keeps the set closed.
type StrikeSelection interface {
	Mode() StrikeMode
	isStrikeSelection()
}

// ExactStrike selects a single strike at full stored precision
type ExactStrike struct {
	Strike decimal.Decimal
}

// PercentageRange selects every strike within ±Percent% of Center, bounds inclusive
type PercentageRange struct {
	Center  decimal.Decimal
	Percent decimal.Decimal // 5 means ±5%
}

// NearestStrikes selects the Above closest strikes above Target and the Below closest below it.
// A strike equal to Target is always included.
type NearestStrikes struct {
	Target decimal.Decimal
	Above  int
	Below  int
}

func (ExactStrike) Mode() StrikeMode     { return StrikeModeExact }
func (PercentageRange) Mode() StrikeMode { return StrikeModePercentageRange }
func (NearestStrikes) Mode() StrikeMode  { return StrikeModeNearest }

func (ExactStrike) isStrikeSelection()     {}
func (PercentageRange) isStrikeSelection() {}
func (NearestStrikes) isStrikeSelection()  {}

// Bounds returns the inclusive strike band of the range
func (p PercentageRange) Bounds() (lower, upper decimal.Decimal) {
	frac := p.Percent.Div(decimal.NewFromInt(100))
	one := decimal.NewFromInt(1)
	return p.Center.Mul(one.Sub(frac)), p.Center.Mul(one.Add(frac))
}

// DurationRequest asks for contracts RequestedDays ± ToleranceDays from expiry
type DurationRequest struct {
	RequestedDays int
	ToleranceDays int
}

// Min returns the lowest accepted days-to-expiry
func (d DurationRequest) Min() int { return d.RequestedDays - d.ToleranceDays }

// Max returns the highest accepted days-to-expiry
func (d DurationRequest) Max() int { return d.RequestedDays + d.ToleranceDays }

// Accepts reports whether dte falls inside the tolerance band
func (d DurationRequest) Accepts(dte int) bool {
	return dte >= d.Min() && dte <= d.Max()
}
