// Package reminder is the boundary between untrusted requests and the
// recurrence engine: it validates input, creates reminders and turns
// deletion requests into scoped mutations.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/remindr/internal/deletion"
	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/recurrence"
	"github.com/dukerupert/remindr/internal/store"
	"github.com/dukerupert/remindr/internal/timeutil"
)

// ErrNotFound is returned for an unknown reminder id.
var ErrNotFound = deletion.ErrNotFound

const (
	maxConflictRetries = 3
	maxUpcoming        = 50
)

type Store interface {
	Create(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
	GetByID(ctx context.Context, id int64) (*model.Reminder, error)
	ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]model.Reminder, error)
	Update(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type Service struct {
	store     Store
	resolver  *deletion.Resolver
	defaultTZ string
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(s Store, defaultTZ string, logger *slog.Logger) *Service {
	return &Service{
		store:     s,
		resolver:  deletion.NewResolver(s, logger),
		defaultTZ: defaultTZ,
		now:       time.Now,
		logger:    logger,
	}
}

// SetClock replaces the time source used for validation and deletion.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates p, computes the first occurrence and stores the reminder.
func (s *Service) Create(ctx context.Context, p CreateParams) (*model.Reminder, error) {
	now := s.now()
	v, err := p.validate(s.defaultTZ, now)
	if err != nil {
		return nil, err
	}

	r := v.reminder
	series := recurrence.SeriesOf(r)
	next, err := recurrence.Initial(r.ScheduledAt, series, now)
	if err == nil {
		next, err = recurrence.NextSkippingExclusions(next, series, now)
	}
	if errors.Is(err, recurrence.ErrNoFutureOccurrence) {
		return nil, invalid("recurrence_pattern", "no occurrence after %s", timeutil.Format(now, v.loc))
	}
	if err != nil {
		return nil, invalid("recurrence_pattern", "%v", err)
	}
	r.NextExecution = &next

	created, err := s.store.Create(ctx, &r)
	if err != nil {
		return nil, err
	}
	s.logger.Info("reminder created",
		"reminder_id", created.ID,
		"owner_id", created.OwnerID,
		"type", string(created.Type),
		"next_execution", next,
	)
	return created, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Reminder, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, ownerID string, activeOnly bool) ([]model.Reminder, error) {
	if ownerID == "" {
		return nil, invalid("owner_id", "required")
	}
	return s.store.ListByOwner(ctx, ownerID, activeOnly)
}

// Upcoming previews the next n occurrences of a reminder.
func (s *Service) Upcoming(ctx context.Context, id int64, n int) ([]time.Time, error) {
	if n <= 0 || n > maxUpcoming {
		return nil, invalid("n", "must be between 1 and %d", maxUpcoming)
	}
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.NextExecution == nil || r.Status == model.StatusCompleted || r.Status == model.StatusCancelled {
		return nil, nil
	}
	// The pending occurrence is listed first even when it is overdue.
	from := *r.NextExecution
	return recurrence.Upcoming(from, recurrence.SeriesOf(*r), n, from.Add(-time.Nanosecond))
}

// Delete applies a scoped deletion to one reminder. date is required for
// from_date; single defaults to the pending occurrence.
func (s *Service) Delete(ctx context.Context, id int64, scopeName, date string) (deletion.Result, error) {
	scope, err := parseScope(scopeName)
	if err != nil {
		return deletion.Result{Message: err.Error()}, err
	}
	r, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return deletion.Result{Message: fmt.Sprintf("Reminder %d not found.", id)}, err
	}
	if err != nil {
		return deletion.Result{}, err
	}

	ds := model.DeletionScope{Type: scope}
	if scope != model.ScopeSeries {
		loc, err := timeutil.LoadLocation(r.Pattern.Timezone)
		if err != nil {
			return deletion.Result{}, err
		}
		switch {
		case date != "":
			t, err := timeutil.ParseFlexible(date, loc)
			if err != nil {
				verr := invalid("date", "%v", err)
				return deletion.Result{Message: verr.Error()}, verr
			}
			ds.Date = &t
		case scope == model.ScopeSingle && r.NextExecution != nil:
			t := *r.NextExecution
			ds.Date = &t
		default:
			verr := invalid("date", "required for %s scope", scope)
			return deletion.Result{Message: verr.Error()}, verr
		}
	}
	return s.resolver.Resolve(ctx, id, ds, s.now())
}

// Pause stops an active reminder from firing.
func (s *Service) Pause(ctx context.Context, id int64) (*model.Reminder, error) {
	return s.mutate(ctx, id, func(r *model.Reminder, _ time.Time) error {
		if r.Status != model.StatusActive {
			return invalid("status", "only active reminders can be paused, reminder is %s", r.Status)
		}
		r.Status = model.StatusPaused
		return nil
	})
}

// Resume reactivates a paused reminder. Recurring reminders continue from now,
// skipping anything missed while paused.
func (s *Service) Resume(ctx context.Context, id int64) (*model.Reminder, error) {
	return s.mutate(ctx, id, func(r *model.Reminder, now time.Time) error {
		if r.Status != model.StatusPaused {
			return invalid("status", "only paused reminders can be resumed, reminder is %s", r.Status)
		}
		r.Status = model.StatusActive
		if !r.IsRecurring() {
			return nil
		}
		from := r.ScheduledAt
		if r.NextExecution != nil {
			from = *r.NextExecution
		}
		next, err := recurrence.NextSkippingExclusions(from, recurrence.SeriesOf(*r), now)
		if errors.Is(err, recurrence.ErrNoFutureOccurrence) {
			r.Status = model.StatusCompleted
			r.NextExecution = nil
			return nil
		}
		if err != nil {
			return invalid("recurrence_pattern", "%v", err)
		}
		r.NextExecution = &next
		return nil
	})
}

// mutate applies fn to a fresh copy of the reminder and stores it, re-reading
// on version conflicts.
func (s *Service) mutate(ctx context.Context, id int64, fn func(r *model.Reminder, now time.Time) error) (*model.Reminder, error) {
	for attempt := 1; ; attempt++ {
		r, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(r, s.now()); err != nil {
			return nil, err
		}
		updated, err := s.store.Update(ctx, r)
		if errors.Is(err, store.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return nil, err
		}
		if updated == nil {
			return nil, ErrNotFound
		}
		return updated, nil
	}
}
