// Package strikes turns a strike selection into the concrete strikes to query.
package strikes

import (
	"sort"

	"github.com/shopspring/decimal"

	"premiummeter/internal/domain/premium"
)

// Reason tells why a strike was selected
type Reason string

const (
	ReasonExact    Reason = "exact"
	ReasonInRange  Reason = "in_range"
	ReasonAbove    Reason = "above"
	ReasonBelow    Reason = "below"
	ReasonAtTarget Reason = "at_target"
)

// Target is a resolved strike
type Target struct {
	Strike decimal.Decimal
	Reason Reason
}

// Resolve selects strikes from the observed set. The result is ordered by strike ascending
// and is empty when nothing qualifies. Observed strikes may be unsorted and contain duplicates.
func Resolve(sel premium.StrikeSelection, observed []decimal.Decimal) []Target {
	strikes := Distinct(observed)

	switch s := sel.(type) {
	case premium.ExactStrike:
		return resolveExact(s, strikes)
	case premium.PercentageRange:
		return resolveRange(s, strikes)
	case premium.NearestStrikes:
		return resolveNearest(s, strikes)
	}
	return nil
}

// Strikes returns the bare strike values of targets
func Strikes(targets []Target) []decimal.Decimal {
	out := make([]decimal.Decimal, len(targets))
	for i, t := range targets {
		out[i] = t.Strike
	}
	return out
}

// Distinct sorts strikes ascending and collapses numerically equal values (100 == 100.00)
func Distinct(strikes []decimal.Decimal) []decimal.Decimal {
	if len(strikes) == 0 {
		return nil
	}
	sorted := make([]decimal.Decimal, len(strikes))
	copy(sorted, strikes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	out := sorted[:1]
	for _, k := range sorted[1:] {
		if !k.Equal(out[len(out)-1]) {
			out = append(out, k)
		}
	}
	return out
}

func resolveExact(s premium.ExactStrike, strikes []decimal.Decimal) []Target {
	for _, k := range strikes {
		if k.Equal(s.Strike) {
			return []Target{{Strike: k, Reason: ReasonExact}}
		}
	}
	return nil
}

func resolveRange(s premium.PercentageRange, strikes []decimal.Decimal) []Target {
	lower, upper := s.Bounds()

	var out []Target
	for _, k := range strikes {
		if k.GreaterThanOrEqual(lower) && k.LessThanOrEqual(upper) {
			out = append(out, Target{Strike: k, Reason: ReasonInRange})
		}
	}
	return out
}

func resolveNearest(s premium.NearestStrikes, strikes []decimal.Decimal) []Target {
	var below, above []decimal.Decimal
	var atTarget *decimal.Decimal

	for i, k := range strikes {
		switch k.Cmp(s.Target) {
		case -1:
			below = append(below, k)
		case 0:
			atTarget = &strikes[i]
		case 1:
			above = append(above, k)
		}
	}

	// strikes are ascending, so the closest below are at the tail and the closest above at the head
	if n := max(s.Below, 0); len(below) > n {
		below = below[len(below)-n:]
	}
	if n := max(s.Above, 0); len(above) > n {
		above = above[:n]
	}

	out := make([]Target, 0, len(below)+len(above)+1)
	for _, k := range below {
		out = append(out, Target{Strike: k, Reason: ReasonBelow})
	}
	if atTarget != nil {
		out = append(out, Target{Strike: *atTarget, Reason: ReasonAtTarget})
	}
	for _, k := range above {
		out = append(out, Target{Strike: k, Reason: ReasonAbove})
	}
	return out
}
