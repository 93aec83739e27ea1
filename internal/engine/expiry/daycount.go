// Package expiry matches requested durations against actual contract expirations.
package expiry

import (
	"fmt"
	"time"
)

// DayCounter counts days between a collection instant and an expiration date.
// Both arguments are reduced to their UTC calendar date first.
type DayCounter interface {
	Name() string
	Between(from, to time.Time) int
	DaysPerYear() float64
}

const (
	DayCountCalendar = "calendar"
	DayCountTrading  = "trading"
)

// NewDayCounter returns the counter registered under name
func NewDayCounter(name string) (DayCounter, error) {
	switch name {
	case "", DayCountCalendar:
		return CalendarDays{}, nil
	case DayCountTrading:
		return TradingDays{}, nil
	}
	return nil, fmt.Errorf("unknown day count %q", name)
}

// CalendarDays counts every day
type CalendarDays struct{}

func (CalendarDays) Name() string         { return DayCountCalendar }
func (CalendarDays) DaysPerYear() float64 { return 365 }

func (CalendarDays) Between(from, to time.Time) int {
	return int(utcDate(to).Sub(utcDate(from)).Hours() / 24)
}

// TradingDays counts weekdays in (from, to]. Exchange holidays are not modelled.
type TradingDays struct{}

func (TradingDays) Name() string         { return DayCountTrading }
func (TradingDays) DaysPerYear() float64 { return 252 }

func (t TradingDays) Between(from, to time.Time) int {
	start, end := utcDate(from), utcDate(to)
	if end.Before(start) {
		return -t.Between(end, start)
	}

	days := int(end.Sub(start).Hours() / 24)
	weeks, rest := days/7, days%7

	count := weeks * 5
	wd := start.Weekday()
	for i := 0; i < rest; i++ {
		wd = (wd + 1) % 7
		if wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
