package recurrence

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/timeutil"
)

var (
	// ErrInvalidPattern is returned when a recurrence pattern cannot be computed.
	ErrInvalidPattern = errors.New("invalid recurrence pattern")

	// ErrNoFutureOccurrence means the series is legitimately exhausted.
	ErrNoFutureOccurrence = errors.New("no future occurrence")

	// ErrIterationBudgetExceeded means a bounded search gave up. It matches
	// ErrNoFutureOccurrence under errors.Is.
	ErrIterationBudgetExceeded = fmt.Errorf("%w: iteration budget exceeded", ErrNoFutureOccurrence)
)

var dayAbbrev = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Validate checks a pattern against its reminder type.
func Validate(typ model.ReminderType, p model.RecurrencePattern) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPattern, typ)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidPattern, p.Interval)
	}
	for _, d := range p.DaysOfWeek {
		if d < 0 || d > 6 {
			return fmt.Errorf("%w: day of week %d out of range 0..6", ErrInvalidPattern, d)
		}
	}
	if p.DayOfMonth < 0 || p.DayOfMonth > 31 {
		return fmt.Errorf("%w: day of month %d out of range 1..31", ErrInvalidPattern, p.DayOfMonth)
	}
	if p.MaxOccurrences < 0 {
		return fmt.Errorf("%w: max occurrences must be positive, got %d", ErrInvalidPattern, p.MaxOccurrences)
	}
	if p.TimeOfDay != "" {
		if _, err := timeutil.ParseTimeOfDay(p.TimeOfDay); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}
	if _, err := timeutil.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return nil
}

// Describe returns a human-readable description of the pattern.
func Describe(typ model.ReminderType, p model.RecurrencePattern) string {
	interval := max(p.Interval, 1)

	var b strings.Builder
	switch typ {
	case model.TypeOnce:
		b.WriteString("Once")
	case model.TypeDaily:
		b.WriteString(every(interval, "daily", "days"))
	case model.TypeWeekly:
		b.WriteString(every(interval, "weekly", "weeks"))
	case model.TypeMonthly:
		b.WriteString(every(interval, "monthly", "months"))
		if p.DayOfMonth > 0 {
			fmt.Fprintf(&b, " on day %d", p.DayOfMonth)
		}
	case model.TypeYearly:
		b.WriteString(every(interval, "yearly", "years"))
	case model.TypeCustom:
		if len(p.DaysOfWeek) > 0 {
			b.WriteString(every(interval, "weekly", "weeks"))
		} else {
			b.WriteString(every(interval, "daily", "days"))
		}
	default:
		return ""
	}

	if (typ == model.TypeWeekly || typ == model.TypeCustom) && len(p.DaysOfWeek) > 0 {
		days := slices.Clone(p.DaysOfWeek)
		slices.Sort(days)
		days = slices.Compact(days)
		names := make([]string, 0, len(days))
		for _, d := range days {
			if d >= 0 && d <= 6 {
				names = append(names, dayAbbrev[d])
			}
		}
		b.WriteString(" on " + strings.Join(names, ", "))
	}
	if p.TimeOfDay != "" {
		b.WriteString(" at " + p.TimeOfDay)
	}
	if p.Timezone != "" {
		b.WriteString(" (" + p.Timezone + ")")
	}
	if p.MaxOccurrences > 0 {
		fmt.Fprintf(&b, ", %d times", p.MaxOccurrences)
	}
	if p.EndDate != nil {
		b.WriteString(", until " + p.EndDate.Format("2006-01-02"))
	}
	return b.String()
}

func every(interval int, single, plural string) string {
	if interval == 1 {
		return "Repeats " + single
	}
	return fmt.Sprintf("Repeats every %d %s", interval, plural)
}

// IsExcluded reports whether t falls on one of the pattern's exclusion days,
// compared in loc.
func IsExcluded(t time.Time, p model.RecurrencePattern, loc *time.Location) bool {
	for _, ex := range p.ExclusionDates {
		if timeutil.SameLocalDay(t, ex, loc) {
			return true
		}
	}
	return false
}
