package recurrence

import (
	"errors"
	"slices"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/timeutil"
)

// Phase distinguishes the first scheduling pass from advancement after a fire.
type Phase int

const (
	// PhaseInitial may keep an occurrence in the same period as the start
	// instant when it is still in the future.
	PhaseInitial Phase = iota
	// PhaseSubsequent always advances exactly one recurrence unit.
	PhaseSubsequent
)

const (
	// maxSkipIterations bounds the exclusion-skipping search.
	maxSkipIterations = 100
	// maxCatchUpIterations bounds fast-forwarding a stale series up to now.
	maxCatchUpIterations = 10000
)

// Series carries everything needed to step a reminder's occurrences.
type Series struct {
	Type     model.ReminderType
	Pattern  model.RecurrencePattern
	Anchor   time.Time // first intended instant; fixes day-of-month and month/day for yearly
	Executed int       // occurrences already fired
}

// SeriesOf builds the Series for a stored reminder.
func SeriesOf(r model.Reminder) Series {
	return Series{
		Type:     r.Type,
		Pattern:  r.Pattern,
		Anchor:   r.ScheduledAt,
		Executed: r.ExecutionCount,
	}
}

// Initial computes the first occurrence for a newly created reminder.
func Initial(scheduledAt time.Time, s Series, now time.Time) (time.Time, error) {
	return next(PhaseInitial, scheduledAt, s, now)
}

// Subsequent advances one recurrence unit from current. It is called right
// after a fire, so there is no future check.
func Subsequent(current time.Time, s Series) (time.Time, error) {
	return next(PhaseSubsequent, current, s, time.Time{})
}

func next(phase Phase, from time.Time, s Series, now time.Time) (time.Time, error) {
	if s.Type == model.TypeOnce {
		if phase != PhaseInitial {
			return time.Time{}, ErrNoFutureOccurrence
		}
		if s.Pattern.TimeOfDay == "" {
			return from, nil
		}
		st, err := newStepper(s)
		if err != nil {
			return time.Time{}, err
		}
		return st.at(from.In(st.loc), from), nil
	}

	st, err := newStepper(s)
	if err != nil {
		return time.Time{}, err
	}
	if s.exhausted() {
		return time.Time{}, ErrNoFutureOccurrence
	}

	// The first pass may keep the occurrence in the current period while it is
	// still ahead of now. Later passes only ever move past from.
	floor := from
	if phase == PhaseInitial {
		floor = now
	}
	cand := st.align(from)
	// Monthly and yearly alignment pins a day inside from's period, which can
	// land before the first intended day.
	if phase == PhaseInitial && localDate(cand, st.loc).Before(localDate(from, st.loc)) {
		cand = st.step(cand)
	}
	if !cand.After(floor) {
		cand = st.step(cand)
	}
	return st.bound(cand)
}

// OccursOn finds the occurrence on day's local calendar day, searching forward
// from current, the series' pending occurrence. Exclusions are ignored.
func OccursOn(day, current time.Time, s Series) (time.Time, bool, error) {
	if s.Type == model.TypeOnce {
		loc, err := timeutil.LoadLocation(s.Pattern.Timezone)
		if err != nil {
			return time.Time{}, false, err
		}
		return current, timeutil.SameLocalDay(current, day, loc), nil
	}

	st, err := newStepper(s)
	if err != nil {
		return time.Time{}, false, err
	}
	target := localDate(day, st.loc)
	cand := st.align(current)
	for i := 0; i < maxCatchUpIterations; i++ {
		if s.Pattern.MaxOccurrences > 0 && s.Executed+i >= s.Pattern.MaxOccurrences {
			return time.Time{}, false, nil
		}
		if _, err := st.bound(cand); err != nil {
			return time.Time{}, false, nil
		}
		got := localDate(cand, st.loc)
		if got.Equal(target) {
			return cand, true, nil
		}
		if got.After(target) {
			return time.Time{}, false, nil
		}
		cand = st.step(cand)
	}
	return time.Time{}, false, ErrIterationBudgetExceeded
}

// NextSkippingExclusions returns the first occurrence at or after current that
// is strictly after now and not on an exclusion day.
func NextSkippingExclusions(current time.Time, s Series, now time.Time) (time.Time, error) {
	if s.Type == model.TypeOnce {
		loc, err := timeutil.LoadLocation(s.Pattern.Timezone)
		if err != nil {
			return time.Time{}, err
		}
		if current.After(now) && !IsExcluded(current, s.Pattern, loc) {
			return current, nil
		}
		return time.Time{}, ErrNoFutureOccurrence
	}

	st, err := newStepper(s)
	if err != nil {
		return time.Time{}, err
	}
	if s.exhausted() {
		return time.Time{}, ErrNoFutureOccurrence
	}

	cand := st.align(current)
	for i := 0; !cand.After(now); i++ {
		if i >= maxCatchUpIterations {
			return time.Time{}, ErrIterationBudgetExceeded
		}
		if _, err := st.bound(cand); err != nil {
			return time.Time{}, err
		}
		cand = st.step(cand)
	}

	for range maxSkipIterations {
		if _, err := st.bound(cand); err != nil {
			return time.Time{}, err
		}
		if !IsExcluded(cand, s.Pattern, st.loc) {
			return cand, nil
		}
		cand = st.step(cand)
	}
	return time.Time{}, ErrIterationBudgetExceeded
}

// Advance computes the next execution after a fire at current. Exclusion days
// and occurrences already behind now are skipped.
func Advance(current time.Time, s Series, now time.Time) (time.Time, error) {
	next, err := Subsequent(current, s)
	if err != nil {
		return time.Time{}, err
	}
	return NextSkippingExclusions(next, s, now)
}

// Upcoming lists up to n future occurrences starting at from.
func Upcoming(from time.Time, s Series, n int, now time.Time) ([]time.Time, error) {
	var out []time.Time
	cand, err := NextSkippingExclusions(from, s, now)
	for err == nil && len(out) < n {
		out = append(out, cand)
		if s.Type == model.TypeOnce {
			break
		}
		s.Executed++
		cand, err = NextSkippingExclusions(cand, s, cand)
	}
	if err != nil && !errors.Is(err, ErrNoFutureOccurrence) {
		return nil, err
	}
	return out, nil
}

func (s Series) exhausted() bool {
	return s.Pattern.MaxOccurrences > 0 && s.Executed >= s.Pattern.MaxOccurrences
}

type stepper struct {
	typ      model.ReminderType
	pattern  model.RecurrencePattern
	loc      *time.Location
	clock    *timeutil.Clock
	interval int
	days     []int
	anchor   time.Time
}

func newStepper(s Series) (*stepper, error) {
	if err := Validate(s.Type, s.Pattern); err != nil {
		return nil, err
	}
	loc, err := timeutil.LoadLocation(s.Pattern.Timezone)
	if err != nil {
		return nil, err
	}
	st := &stepper{
		typ:      s.Type,
		pattern:  s.Pattern,
		loc:      loc,
		interval: max(s.Pattern.Interval, 1),
	}
	if !s.Anchor.IsZero() {
		st.anchor = s.Anchor.In(loc)
	}

	switch {
	case s.Pattern.TimeOfDay != "":
		c, err := timeutil.ParseTimeOfDay(s.Pattern.TimeOfDay)
		if err != nil {
			return nil, err
		}
		st.clock = &c
	case !st.anchor.IsZero():
		c := timeutil.ClockOf(st.anchor)
		st.clock = &c
	}

	if len(s.Pattern.DaysOfWeek) > 0 {
		st.days = slices.Clone(s.Pattern.DaysOfWeek)
		slices.Sort(st.days)
		st.days = slices.Compact(st.days)
	}
	return st, nil
}

// at reapplies the time of day to the calendar day of t. Without a configured
// clock the wall clock of t is kept.
func (st *stepper) at(day, t time.Time) time.Time {
	if st.clock != nil {
		return st.clock.On(day)
	}
	return timeutil.ClockOf(t).On(day)
}

// byWeekday reports whether occurrences follow an explicit weekday set.
func (st *stepper) byWeekday() bool {
	return len(st.days) > 0 && (st.typ == model.TypeWeekly || st.typ == model.TypeCustom)
}

// align snaps t onto the series grid within t's own period.
func (st *stepper) align(t time.Time) time.Time {
	t = t.In(st.loc)
	switch st.typ {
	case model.TypeMonthly:
		return st.at(st.monthDay(t.Year(), t.Month(), t), t)
	case model.TypeYearly:
		return st.at(st.yearDay(t.Year(), t), t)
	}
	cand := st.at(t, t)
	if st.byWeekday() && !slices.Contains(st.days, int(cand.Weekday())) {
		return st.at(st.nextWeekday(cand, 1), t)
	}
	return cand
}

// step advances exactly one recurrence unit from t.
func (st *stepper) step(t time.Time) time.Time {
	t = t.In(st.loc)
	switch st.typ {
	case model.TypeDaily:
		return st.at(addDays(t, st.interval), t)
	case model.TypeWeekly, model.TypeCustom:
		if st.byWeekday() {
			return st.at(st.nextWeekday(t, st.interval), t)
		}
		if st.typ == model.TypeCustom {
			return st.at(addDays(t, st.interval), t)
		}
		return st.at(addDays(t, 7*st.interval), t)
	case model.TypeMonthly:
		first := time.Date(t.Year(), t.Month()+time.Month(st.interval), 1, 12, 0, 0, 0, st.loc)
		return st.at(st.monthDay(first.Year(), first.Month(), t), t)
	case model.TypeYearly:
		return st.at(st.yearDay(t.Year()+st.interval, t), t)
	}
	return t
}

// nextWeekday returns the smallest configured weekday strictly after t's
// weekday, wrapping forward by weeks when none remain.
func (st *stepper) nextWeekday(t time.Time, weeks int) time.Time {
	cur := int(t.Weekday())
	for _, d := range st.days {
		if d > cur {
			return addDays(t, d-cur)
		}
	}
	return addDays(t, 7*weeks-cur+st.days[0])
}

// monthDay returns the occurrence day in the given month. Days past the end of
// a short month are clamped to its last day.
func (st *stepper) monthDay(year int, month time.Month, t time.Time) time.Time {
	target := st.pattern.DayOfMonth
	if target == 0 {
		target = st.anchorOr(t).Day()
	}
	day := min(target, timeutil.DaysInMonth(year, month))
	return time.Date(year, month, day, 12, 0, 0, 0, st.loc)
}

// yearDay returns the anniversary of the anchor in year, with Feb 29 clamped
// to Feb 28 outside leap years.
func (st *stepper) yearDay(year int, t time.Time) time.Time {
	a := st.anchorOr(t)
	day := min(a.Day(), timeutil.DaysInMonth(year, a.Month()))
	return time.Date(year, a.Month(), day, 12, 0, 0, 0, st.loc)
}

func (st *stepper) anchorOr(t time.Time) time.Time {
	if st.anchor.IsZero() {
		return t
	}
	return st.anchor
}

func (st *stepper) bound(t time.Time) (time.Time, error) {
	if st.pattern.EndDate != nil && t.After(*st.pattern.EndDate) {
		return time.Time{}, ErrNoFutureOccurrence
	}
	return t, nil
}

// localDate is midnight UTC of t's calendar day in loc, for day comparisons.
func localDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// addDays moves n calendar days from t, landing at noon to stay clear of DST
// transitions until the time of day is reapplied.
func addDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 12, 0, 0, 0, t.Location())
}
