// Package deletion turns a (reminder, scope) request into a validated store
// mutation. A single occurrence that already happened is never reported as
// deleted.
package deletion

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/recurrence"
	"github.com/dukerupert/remindr/internal/timeutil"
)

var (
	// ErrAlreadyOccurred rejects a single-occurrence deletion aimed at the past.
	ErrAlreadyOccurred = errors.New("occurrence already happened")
	// ErrNoOccurrence rejects a single-occurrence deletion for a day the
	// series never fires on.
	ErrNoOccurrence = errors.New("no occurrence on that day")
	// ErrInvalidScope rejects a scope that is unknown or missing its date.
	ErrInvalidScope = errors.New("invalid deletion scope")
	// ErrNotFound is returned for an unknown reminder id.
	ErrNotFound = errors.New("reminder not found")
)

// Action is the store mutation a plan performs.
type Action string

const (
	ActionDelete    Action = "deleted"   // reminder removed from the store
	ActionExclude   Action = "excluded"  // one occurrence skipped, series continues
	ActionTruncate  Action = "truncated" // end date set, reminder completed
	ActionComplete  Action = "completed" // exclusion left no future occurrence
	ActionUnchanged Action = "unchanged" // request already satisfied
)

// Plan is the outcome of resolving a deletion request without touching storage.
type Plan struct {
	Action   Action
	Scope    model.ScopeType
	Reminder model.Reminder // the mutated reminder for update actions
	Message  string
}

// PlanDeletion decides what a deletion request does to r. It never mutates r.
func PlanDeletion(r model.Reminder, scope model.DeletionScope, now time.Time) (Plan, error) {
	if !scope.Type.Valid() {
		return Plan{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, scope.Type)
	}
	loc, err := timeutil.LoadLocation(r.Pattern.Timezone)
	if err != nil {
		return Plan{}, fmt.Errorf("%w: %v", recurrence.ErrInvalidPattern, err)
	}

	if !r.IsRecurring() || scope.Type == model.ScopeSeries {
		return Plan{
			Action:  ActionDelete,
			Scope:   model.ScopeSeries,
			Message: fmt.Sprintf("Deleted reminder %q.", r.Title),
		}, nil
	}

	if scope.Date == nil {
		return Plan{}, fmt.Errorf("%w: %s scope needs a date", ErrInvalidScope, scope.Type)
	}

	switch scope.Type {
	case model.ScopeFromDate:
		return planFromDate(r, *scope.Date, loc)
	default:
		return planSingle(r, *scope.Date, now, loc)
	}
}

func planFromDate(r model.Reminder, cutoff time.Time, loc *time.Location) (Plan, error) {
	if r.NextExecution != nil && r.NextExecution.Before(cutoff) {
		return Plan{
			Action:  ActionDelete,
			Scope:   model.ScopeFromDate,
			Message: fmt.Sprintf("Deleted reminder %q.", r.Title),
		}, nil
	}

	out := r.Clone()
	end := cutoff
	out.Pattern.EndDate = &end
	out.Status = model.StatusCompleted
	out.NextExecution = nil
	return Plan{
		Action:   ActionTruncate,
		Scope:    model.ScopeFromDate,
		Reminder: out,
		Message: fmt.Sprintf("Stopped %q from %s onwards. %d past occurrence(s) kept in history.",
			r.Title, timeutil.FormatDay(cutoff, loc), r.ExecutionCount),
	}, nil
}

func planSingle(r model.Reminder, target, now time.Time, loc *time.Location) (Plan, error) {
	instant, err := occurrenceOn(r, target, now, loc)
	if err != nil {
		return Plan{}, err
	}
	if instant.Before(now) {
		return Plan{
			Scope: model.ScopeSingle,
			Message: fmt.Sprintf("Can't delete the %s occurrence of %q: it already happened (%s).",
				timeutil.Format(instant, loc), r.Title, timeutil.Relative(instant, now)),
		}, ErrAlreadyOccurred
	}
	if recurrence.IsExcluded(instant, r.Pattern, loc) {
		return Plan{
			Action:  ActionUnchanged,
			Scope:   model.ScopeSingle,
			Message: fmt.Sprintf("The %s occurrence of %q is already skipped.", timeutil.FormatDay(instant, loc), r.Title),
		}, nil
	}

	current := r.ScheduledAt
	if r.NextExecution != nil {
		current = *r.NextExecution
	}
	if _, ok, err := recurrence.OccursOn(instant, current, recurrence.SeriesOf(r)); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", recurrence.ErrInvalidPattern, err)
	} else if !ok {
		return Plan{
			Scope:   model.ScopeSingle,
			Message: fmt.Sprintf("%q doesn't occur on %s, so there is nothing to skip.", r.Title, timeutil.FormatDay(instant, loc)),
		}, ErrNoOccurrence
	}

	out := r.Clone()
	out.Pattern.ExclusionDates = append(out.Pattern.ExclusionDates, timeutil.StartOfDay(instant))

	next, err := recurrence.NextSkippingExclusions(current, recurrence.SeriesOf(out), now)
	if errors.Is(err, recurrence.ErrNoFutureOccurrence) {
		out.Status = model.StatusCompleted
		out.NextExecution = nil
		return Plan{
			Action:   ActionComplete,
			Scope:    model.ScopeSingle,
			Reminder: out,
			Message: fmt.Sprintf("Skipped %q on %s. No occurrences remain, so the reminder is now completed.",
				r.Title, timeutil.FormatDay(instant, loc)),
		}, nil
	}
	if err != nil {
		return Plan{}, fmt.Errorf("recompute next execution: %w", err)
	}

	out.NextExecution = &next
	return Plan{
		Action:   ActionExclude,
		Scope:    model.ScopeSingle,
		Reminder: out,
		Message: fmt.Sprintf("Skipped %q on %s. Next reminder: %s.",
			r.Title, timeutil.FormatDay(instant, loc), timeutil.Format(next, loc)),
	}, nil
}

// occurrenceOn combines the target calendar day with the reminder's time of
// day, falling back to the current next execution's clock, then to now's.
func occurrenceOn(r model.Reminder, target, now time.Time, loc *time.Location) (time.Time, error) {
	day := target.In(loc)
	switch {
	case r.Pattern.TimeOfDay != "":
		c, err := timeutil.ParseTimeOfDay(r.Pattern.TimeOfDay)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", recurrence.ErrInvalidPattern, err)
		}
		return c.On(day), nil
	case r.NextExecution != nil:
		return timeutil.ClockOf(r.NextExecution.In(loc)).On(day), nil
	default:
		return timeutil.ClockOf(now.In(loc)).On(day), nil
	}
}
