package expiry

import (
	"sort"
	"time"

	"premiummeter/internal/domain/premium"
)

// Matcher groups records into duration cohorts
type Matcher struct {
	counter DayCounter
}

// NewMatcher creates a matcher using the given day count convention
func NewMatcher(counter DayCounter) *Matcher {
	if counter == nil {
		counter = CalendarDays{}
	}
	return &Matcher{counter: counter}
}

// Counter returns the day count convention in use
func (m *Matcher) Counter() DayCounter {
	return m.counter
}

// DaysToExpiry returns the DTE of a record on its collection date
func (m *Matcher) DaysToExpiry(r premium.Record) int {
	return m.counter.Between(r.CollectionTimestamp, r.ExpirationDate)
}

// CandidateExpirations keeps the expirations that some collection day inside the window
// could match. DTE only decreases as the collection day advances, so checking the window
// edges is enough. Output is ascending and free of duplicates.
func (m *Matcher) CandidateExpirations(req premium.DurationRequest, window premium.Window, expirations []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(expirations))
	var out []time.Time

	for _, exp := range expirations {
		day := utcDate(exp)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}

		latest := m.counter.Between(window.End, day)
		earliest := m.counter.Between(window.Start, day)
		if latest <= req.Max() && earliest >= req.Min() {
			out = append(out, day)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

type cohortKey struct {
	strike     string
	expiration time.Time
}

// Match keeps records whose DTE is within tolerance and groups them per (strike, expiration).
// Cohorts are ordered by strike then expiration; records keep their input order.
func (m *Matcher) Match(req premium.DurationRequest, records []premium.Record) []premium.Cohort {
	index := make(map[cohortKey]int)
	var cohorts []premium.Cohort

	for _, r := range records {
		dte := m.DaysToExpiry(r)
		if !req.Accepts(dte) {
			continue
		}

		key := cohortKey{strike: r.StrikePrice.String(), expiration: utcDate(r.ExpirationDate)}
		i, ok := index[key]
		if !ok {
			i = len(cohorts)
			index[key] = i
			cohorts = append(cohorts, premium.Cohort{
				Strike:         r.StrikePrice,
				ExpirationDate: key.expiration,
			})
		}
		cohorts[i].Records = append(cohorts[i].Records, r)
		cohorts[i].DaysToExpiry = append(cohorts[i].DaysToExpiry, dte)
	}

	for i := range cohorts {
		cohorts[i].DurationDays = lowerMedian(cohorts[i].DaysToExpiry)
	}

	sort.SliceStable(cohorts, func(i, j int) bool {
		if c := cohorts[i].Strike.Cmp(cohorts[j].Strike); c != 0 {
			return c < 0
		}
		return cohorts[i].ExpirationDate.Before(cohorts[j].ExpirationDate)
	})
	return cohorts
}

func lowerMedian(values []int) int {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	return sorted[(len(sorted)-1)/2]
}

// Partition hands every record to at most one request: the one whose RequestedDays is
// closest to the record's DTE among those that accept it, the lower RequestedDays on a
// tie. out[i] holds the records assigned to reqs[i], in input order.
func (m *Matcher) Partition(reqs []premium.DurationRequest, records []premium.Record) [][]premium.Record {
	out := make([][]premium.Record, len(reqs))

	for _, r := range records {
		dte := m.DaysToExpiry(r)
		best := -1
		for i, req := range reqs {
			if !req.Accepts(dte) {
				continue
			}
			if best < 0 || closer(dte, req.RequestedDays, reqs[best].RequestedDays) {
				best = i
			}
		}
		if best >= 0 {
			out[best] = append(out[best], r)
		}
	}
	return out
}

// closer reports whether a beats b as the duration nearest to dte
func closer(dte, a, b int) bool {
	da, db := abs(dte-a), abs(dte-b)
	if da != db {
		return da < db
	}
	return a < b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
