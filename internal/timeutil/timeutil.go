// Package timeutil holds the timezone and formatting helpers shared by the
// recurrence calculator, the deletion resolver and the matcher.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
)

var locations sync.Map // name -> *time.Location

// LoadLocation resolves an IANA timezone name, caching the result. An empty
// name resolves to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	locations.Store(name, loc)
	return loc, nil
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses a 24h "HH:MM" string.
func ParseTimeOfDay(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return Clock{}, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// ClockOf returns the wall clock of t.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at clock c on the calendar day of t, in t's location.
// Nonexistent local times (DST gaps) are normalized by time.Date.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), c.Hour, c.Minute, c.Second, 0, t.Location())
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameLocalDay reports whether a and b fall on the same calendar day in loc.
func SameLocalDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseFlexible accepts RFC3339 or a bare YYYY-MM-DD date. Bare dates are
// interpreted as midnight in loc.
func ParseFlexible(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// Format renders t for display in loc, e.g. "Wed Feb 4, 09:00 CET".
func Format(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon Jan 2, 15:04 MST")
}

// FormatDay renders the calendar day of t in loc, e.g. "Wed Feb 4 2026".
func FormatDay(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon Jan 2 2006")
}

// Relative describes t relative to now, e.g. "3 hours from now".
func Relative(t, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}
