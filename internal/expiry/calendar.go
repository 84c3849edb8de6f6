// Package expiry holds the date logic used to pick contract expiries:
// parsing the broker feed's heterogeneous date strings and choosing the
// weekly or monthly expiry relative to a trading day.
package expiry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"trading-gate/internal/types"
)

// ErrNoExpiry is returned when no available expiry satisfies the preference.
var ErrNoExpiry = errors.New("no eligible expiry")

// UnparseableDateError is returned by NormalizeDate for text that matches none
// of the known layouts.
type UnparseableDateError struct {
	Raw string
}

func (e *UnparseableDateError) Error() string {
	return fmt.Sprintf("unparseable date %q", e.Raw)
}

func (e *UnparseableDateError) Is(target error) bool {
	return target == types.ErrUnparseableExpiry
}

// layouts is tried in order; the first successful parse wins. Go's month
// name matching is case-insensitive so "28NOV2024" parses with "02Jan2006".
var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-Jan-2006",
	"02-Jan-06",
	"02Jan2006",
	"02Jan06",
	"02 Jan 2006",
	"Jan 02 2006",
	"Jan 2, 2006",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"20060102",
}

var ist = loadIST()

func loadIST() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", 19800)
}

// IST returns the exchange timezone.
func IST() *time.Location {
	return ist
}

// DateOf strips the clock from t, keeping its calendar date, as a UTC midnight
// value. All dates in the gate are compared in this form.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current IST trading date for now.
func Today(now time.Time) time.Time {
	return DateOf(now.In(ist))
}

// NormalizeDate parses raw with the ordered layout list and returns a
// date-only value. Unknown text is an *UnparseableDateError; the raw string
// is never passed through.
func NormalizeDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &UnparseableDateError{Raw: raw}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return time.Time{}, &UnparseableDateError{Raw: raw}
}

// SelectExpiry picks one expiry from available for the preference.
//
// WEEKLY returns the earliest expiry on or after today. MONTHLY returns the
// latest expiry in today's calendar month that is on or after today, rolling
// to the latest expiry of the next calendar month when none remains.
func SelectExpiry(available []time.Time, pref types.ExpiryPreference, today time.Time) (time.Time, error) {
	if len(available) == 0 {
		return time.Time{}, fmt.Errorf("%w: no expiries listed", ErrNoExpiry)
	}
	today = DateOf(today)
	upcoming := onOrAfter(available, today)
	if len(upcoming) == 0 {
		return time.Time{}, fmt.Errorf("%w: all %d expiries are before %s", ErrNoExpiry, len(available), today.Format("2006-01-02"))
	}

	switch pref {
	case types.ExpiryWeekly, "":
		return upcoming[0], nil
	case types.ExpiryMonthly:
		if d, ok := lastInMonth(upcoming, today.Year(), today.Month()); ok {
			return d, nil
		}
		next := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		if d, ok := lastInMonth(upcoming, next.Year(), next.Month()); ok {
			return d, nil
		}
		return time.Time{}, fmt.Errorf("%w: no monthly expiry in %s or %s", ErrNoExpiry,
			today.Format("Jan 2006"), next.Format("Jan 2006"))
	default:
		return time.Time{}, fmt.Errorf("%w: unknown preference %q", ErrNoExpiry, pref)
	}
}

// Nearest returns the front-month expiry: the earliest date on or after today.
func Nearest(available []time.Time, today time.Time) (time.Time, error) {
	return SelectExpiry(available, types.ExpiryWeekly, today)
}

// onOrAfter returns the distinct dates >= today in ascending order.
func onOrAfter(available []time.Time, today time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(available))
	out := make([]time.Time, 0, len(available))
	for _, t := range available {
		d := DateOf(t)
		if d.Before(today) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func lastInMonth(sorted []time.Time, year int, month time.Month) (time.Time, bool) {
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Year() == year && sorted[i].Month() == month {
			return sorted[i], true
		}
	}
	return time.Time{}, false
}

// LastWeekday returns the last given weekday of the month. Used by the
// synthetic catalog to lay out monthly expiries.
func LastWeekday(year int, month time.Month, wd time.Weekday) time.Time {
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
