package premium_query

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
	"premiummeter/pkg/errors"
)

const (
	maxChartStrikes   = 100
	maxChartDurations = 24
)

var tickerPattern = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)

// QueryRequest is the wire form of a premium statistics query
type QueryRequest struct {
	Ticker                string           `json:"ticker"`
	OptionType            string           `json:"option_type"`
	StrikeMode            string           `json:"strike_mode"`
	StrikePrice           *decimal.Decimal `json:"strike_price,omitempty"`
	StrikeRangePercent    *decimal.Decimal `json:"strike_range_percent,omitempty"`
	NearestCountAbove     *int             `json:"nearest_count_above,omitempty"`
	NearestCountBelow     *int             `json:"nearest_count_below,omitempty"`
	DurationDays          *int             `json:"duration_days,omitempty"`
	DurationToleranceDays *int             `json:"duration_tolerance_days,omitempty"`
	LookbackDays          *int             `json:"lookback_days,omitempty"`
}

// ChartRequest is the wire form of a chart query
type ChartRequest struct {
	Ticker                string            `json:"ticker"`
	OptionType            string            `json:"option_type"`
	ChartType             string            `json:"chart_type"`
	StrikePrices          []decimal.Decimal `json:"strike_prices,omitempty"`
	DurationDays          []int             `json:"duration_days,omitempty"`
	DurationToleranceDays *int              `json:"duration_tolerance_days,omitempty"`
	LookbackDays          *int              `json:"lookback_days,omitempty"`
	Statistic             string            `json:"statistic,omitempty"`
}

// premiumQuery is a QueryRequest that passed validation
type premiumQuery struct {
	ticker       string
	optionType   premium.OptionType
	selection    premium.StrikeSelection
	duration     premium.DurationRequest
	lookbackDays int

	// nearest mode without strike_price: target is the latest underlying price
	targetFromUnderlying bool
}

type chartQuery struct {
	ticker       string
	optionType   premium.OptionType
	chartType    premium.ChartType
	strikes      []decimal.Decimal
	durations    []int
	tolerance    int
	lookbackDays int
	statistic    premium.Statistic

	toleranceDefaulted bool
}

// durationRequest caps a defaulted tolerance at d so short durations stay valid
func (q chartQuery) durationRequest(d int) premium.DurationRequest {
	tol := q.tolerance
	if q.toleranceDefaulted && tol > d {
		tol = d
	}
	return premium.DurationRequest{RequestedDays: d, ToleranceDays: tol}
}

func validateTicker(verrs *errors.ValidationErrors, raw string) string {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case ticker == "":
		verrs.Add("ticker", "is required", raw)
	case !tickerPattern.MatchString(ticker):
		verrs.Add("ticker", "must be 1-10 characters of letters, digits, '.' or '-'", raw)
	}
	return ticker
}

func validateOptionType(verrs *errors.ValidationErrors, raw string) premium.OptionType {
	t, ok := premium.ParseOptionType(raw)
	if !ok {
		verrs.Add("option_type", "must be call or put", raw)
	}
	return t
}

func validateLookback(verrs *errors.ValidationErrors, raw *int, cfg Config) int {
	if raw == nil {
		return cfg.DefaultLookbackDays
	}
	if *raw < 1 || *raw > cfg.MaxLookbackDays {
		verrs.Add("lookback_days", "must be between 1 and the configured maximum", *raw)
	}
	return *raw
}

func validateTolerance(verrs *errors.ValidationErrors, raw *int, cfg Config) int {
	if raw == nil {
		return cfg.DefaultToleranceDays
	}
	if *raw < 0 {
		verrs.Add("duration_tolerance_days", "must be >= 0", *raw)
	}
	return *raw
}

func positive(verrs *errors.ValidationErrors, field string, v *decimal.Decimal) {
	if v != nil && !v.IsPositive() {
		verrs.Add(field, "must be > 0", v.String())
	}
}

func rejectField(verrs *errors.ValidationErrors, set bool, field string, mode string) {
	if set {
		verrs.Add(field, "not allowed with strike_mode "+mode, nil)
	}
}

// validate checks every field and returns all failures at once
func (r QueryRequest) validate(cfg Config) (premiumQuery, error) {
	var verrs errors.ValidationErrors

	q := premiumQuery{
		ticker:     validateTicker(&verrs, r.Ticker),
		optionType: validateOptionType(&verrs, r.OptionType),
	}

	positive(&verrs, "strike_price", r.StrikePrice)

	mode := premium.StrikeMode(strings.ToLower(strings.TrimSpace(r.StrikeMode)))
	switch mode {
	case premium.StrikeModeExact:
		if r.StrikePrice == nil {
			verrs.Add("strike_price", "is required for exact mode", nil)
		} else {
			q.selection = premium.ExactStrike{Strike: *r.StrikePrice}
		}
		rejectField(&verrs, r.StrikeRangePercent != nil, "strike_range_percent", string(mode))
		rejectField(&verrs, r.NearestCountAbove != nil, "nearest_count_above", string(mode))
		rejectField(&verrs, r.NearestCountBelow != nil, "nearest_count_below", string(mode))

	case premium.StrikeModePercentageRange:
		if r.StrikePrice == nil {
			verrs.Add("strike_price", "is required for percentage_range mode", nil)
		}
		hundred := decimal.NewFromInt(100)
		switch {
		case r.StrikeRangePercent == nil:
			verrs.Add("strike_range_percent", "is required for percentage_range mode", nil)
		case !r.StrikeRangePercent.IsPositive() || r.StrikeRangePercent.GreaterThan(hundred):
			verrs.Add("strike_range_percent", "must be in (0, 100]", r.StrikeRangePercent.String())
		}
		if r.StrikePrice != nil && r.StrikeRangePercent != nil {
			q.selection = premium.PercentageRange{Center: *r.StrikePrice, Percent: *r.StrikeRangePercent}
		}
		rejectField(&verrs, r.NearestCountAbove != nil, "nearest_count_above", string(mode))
		rejectField(&verrs, r.NearestCountBelow != nil, "nearest_count_below", string(mode))

	case premium.StrikeModeNearest:
		above, below := 0, 0
		if r.NearestCountAbove != nil {
			above = *r.NearestCountAbove
		}
		if r.NearestCountBelow != nil {
			below = *r.NearestCountBelow
		}
		if above < 0 || above > cfg.MaxNearestCount {
			verrs.Add("nearest_count_above", "must be between 0 and the configured maximum", above)
		}
		if below < 0 || below > cfg.MaxNearestCount {
			verrs.Add("nearest_count_below", "must be between 0 and the configured maximum", below)
		}
		if above == 0 && below == 0 {
			verrs.Add("nearest_count_above", "at least one of nearest_count_above or nearest_count_below must be > 0", nil)
		}
		rejectField(&verrs, r.StrikeRangePercent != nil, "strike_range_percent", string(mode))

		sel := premium.NearestStrikes{Above: above, Below: below}
		if r.StrikePrice != nil {
			sel.Target = *r.StrikePrice
		} else {
			q.targetFromUnderlying = true
		}
		q.selection = sel

	default:
		verrs.Add("strike_mode", "must be exact, percentage_range or nearest", r.StrikeMode)
	}

	if r.DurationDays == nil {
		verrs.Add("duration_days", "is required", nil)
	} else if *r.DurationDays < 0 {
		verrs.Add("duration_days", "must be >= 0", *r.DurationDays)
	}
	tolerance := validateTolerance(&verrs, r.DurationToleranceDays, cfg)
	if r.DurationDays != nil {
		switch {
		case tolerance <= *r.DurationDays:
		case r.DurationToleranceDays == nil:
			tolerance = max(*r.DurationDays, 0)
		default:
			verrs.Add("duration_tolerance_days", "must not exceed duration_days", tolerance)
		}
		q.duration = premium.DurationRequest{RequestedDays: *r.DurationDays, ToleranceDays: tolerance}
	}

	q.lookbackDays = validateLookback(&verrs, r.LookbackDays, cfg)

	if err := verrs.ToError(); err != nil {
		return premiumQuery{}, err
	}
	return q, nil
}

func (r ChartRequest) validate(cfg Config) (chartQuery, error) {
	var verrs errors.ValidationErrors

	q := chartQuery{
		ticker:     validateTicker(&verrs, r.Ticker),
		optionType: validateOptionType(&verrs, r.OptionType),
	}

	chartType, ok := premium.ParseChartType(strings.ToLower(strings.TrimSpace(r.ChartType)))
	if !ok {
		verrs.Add("chart_type", "must be surface_3d, time_series_2d or heatmap", r.ChartType)
	}
	q.chartType = chartType

	stat, ok := premium.ParseStatistic(strings.ToLower(strings.TrimSpace(r.Statistic)))
	if !ok {
		verrs.Add("statistic", "must be avg, min, max or latest", r.Statistic)
	}
	q.statistic = stat

	if len(r.StrikePrices) > maxChartStrikes {
		verrs.Add("strike_prices", "too many strikes", len(r.StrikePrices))
	}
	for _, k := range r.StrikePrices {
		if !k.IsPositive() {
			verrs.Add("strike_prices", "must all be > 0", k.String())
			break
		}
	}
	q.strikes = r.StrikePrices

	q.durations = r.DurationDays
	if len(q.durations) == 0 {
		q.durations = cfg.ChartDurations
	}
	if len(q.durations) > maxChartDurations {
		verrs.Add("duration_days", "too many durations", len(q.durations))
	}

	q.tolerance = validateTolerance(&verrs, r.DurationToleranceDays, cfg)
	q.toleranceDefaulted = r.DurationToleranceDays == nil
	for _, d := range q.durations {
		if d < 0 {
			verrs.Add("duration_days", "must all be >= 0", d)
			break
		}
		if !q.toleranceDefaulted && q.tolerance > d {
			verrs.Add("duration_tolerance_days", "must not exceed any requested duration", q.tolerance)
			break
		}
	}

	q.lookbackDays = validateLookback(&verrs, r.LookbackDays, cfg)

	if err := verrs.ToError(); err != nil {
		return chartQuery{}, err
	}
	return q, nil
}
