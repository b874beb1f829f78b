// Package scheduler fires due reminders and advances their recurrence state.
// Fired occurrences are handed off as DueEvents on a channel; the scheduler
// never waits for delivery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/recurrence"
	"github.com/dukerupert/remindr/internal/store"
)

const (
	maxConflictRetries = 3
	deliveryRetention  = 30 * 24 * time.Hour
)

type ReminderStore interface {
	ListDue(ctx context.Context, now time.Time) ([]model.Reminder, error)
	GetByID(ctx context.Context, id int64) (*model.Reminder, error)
	Update(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
}

type DeliveryStore interface {
	Record(ctx context.Context, d *model.Delivery) (bool, error)
	MarkFailed(ctx context.Context, id, reason string) error
	ClaimRetry(ctx context.Context, id string) (bool, error)
	ListRetryable(ctx context.Context, maxAttempts int) ([]model.Delivery, error)
	CleanupBefore(ctx context.Context, before time.Time) error
}

// DueEvent announces one fired occurrence. Reminder is the state the
// occurrence fired from.
type DueEvent struct {
	DeliveryID   string
	Reminder     model.Reminder
	OccurrenceAt time.Time
	Attempt      int
}

type Options struct {
	Interval    time.Duration
	MaxAttempts int
	QueueSize   int
	Now         func() time.Time
}

// Stats summarizes one tick.
type Stats struct {
	Due     int
	Fired   int
	Failed  int
	Retried int
}

// Scheduler periodically processes due reminders.
type Scheduler struct {
	mu         sync.RWMutex
	tickMu     sync.Mutex
	reminders  ReminderStore
	deliveries DeliveryStore
	events     chan DueEvent
	interval   time.Duration
	maxAttempt int
	now        func() time.Time
	logger     *slog.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(reminders ReminderStore, deliveries DeliveryStore, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		reminders:  reminders,
		deliveries: deliveries,
		events:     make(chan DueEvent, opts.QueueSize),
		interval:   opts.Interval,
		maxAttempt: opts.MaxAttempts,
		now:        opts.Now,
		logger:     logger,
	}
}

// Events is the channel fired occurrences are published on.
func (s *Scheduler) Events() <-chan DueEvent {
	return s.events
}

// Start begins the scheduler loop. Ticks run on the loop goroutine so they
// never overlap.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler, waiting for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce runs a single tick. It returns false without doing anything when
// another tick is still in progress.
func (s *Scheduler) RunOnce(ctx context.Context) (Stats, bool) {
	if !s.tickMu.TryLock() {
		s.logger.Warn("previous tick still running, skipping")
		return Stats{}, false
	}
	defer s.tickMu.Unlock()
	return s.tick(ctx), true
}

func (s *Scheduler) tick(ctx context.Context) Stats {
	var stats Stats
	now := s.now()

	stats.Retried = s.retryFailed(ctx)

	due, err := s.reminders.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("list due reminders", "error", err)
		return stats
	}
	stats.Due = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		fired, err := s.fire(ctx, r, now)
		if err != nil {
			stats.Failed++
			s.logger.Error("process due reminder", "reminder_id", r.ID, "error", err)
			continue
		}
		if fired {
			stats.Fired++
		}
	}

	if err := s.deliveries.CleanupBefore(ctx, now.Add(-deliveryRetention)); err != nil {
		s.logger.Warn("cleanup deliveries", "error", err)
	}
	if stats.Due > 0 || stats.Retried > 0 {
		s.logger.Info("tick complete",
			"due", stats.Due, "fired", stats.Fired, "failed", stats.Failed, "retried", stats.Retried)
	}
	return stats
}

// fire advances r past its due occurrence and publishes the occurrence. The
// advance is committed before publishing so a lost event never refires.
func (s *Scheduler) fire(ctx context.Context, r model.Reminder, now time.Time) (bool, error) {
	for attempt := 1; ; attempt++ {
		if r.NextExecution == nil {
			return false, nil
		}
		occurrence := *r.NextExecution

		next, err := MarkExecuted(r, now)
		if err != nil {
			return false, s.quarantine(ctx, r, err)
		}

		saved, err := s.reminders.Update(ctx, &next)
		if errors.Is(err, store.ErrConflict) && attempt < maxConflictRetries {
			fresh, err := s.reminders.GetByID(ctx, r.ID)
			if err != nil {
				return false, err
			}
			if fresh == nil || !isDue(*fresh, now) {
				return false, nil
			}
			r = *fresh
			continue
		}
		if err != nil {
			return false, fmt.Errorf("advance reminder: %w", err)
		}
		if saved == nil {
			return false, nil
		}

		s.publish(ctx, r, occurrence, 1, "")
		return true, nil
	}
}

// MarkExecuted returns r as it should be stored after firing at now:
// execution counted, and either the next occurrence scheduled or the
// reminder completed.
func MarkExecuted(r model.Reminder, now time.Time) (model.Reminder, error) {
	out := r.Clone()
	out.ExecutionCount++
	out.LastExecutedAt = &now

	if r.Type == model.TypeOnce || r.NextExecution == nil {
		out.Status = model.StatusCompleted
		out.NextExecution = nil
		return out, nil
	}

	next, err := recurrence.Advance(*r.NextExecution, recurrence.SeriesOf(out), now)
	if errors.Is(err, recurrence.ErrNoFutureOccurrence) {
		out.Status = model.StatusCompleted
		out.NextExecution = nil
		return out, nil
	}
	if err != nil {
		return model.Reminder{}, err
	}
	out.NextExecution = &next
	return out, nil
}

// quarantine pauses a reminder whose pattern cannot be computed so it stops
// erroring on every tick.
func (s *Scheduler) quarantine(ctx context.Context, r model.Reminder, cause error) error {
	paused := r.Clone()
	paused.Status = model.StatusPaused
	if _, err := s.reminders.Update(ctx, &paused); err != nil {
		return fmt.Errorf("pause malformed reminder: %w (cause: %v)", err, cause)
	}
	s.logger.Warn("paused malformed reminder", "reminder_id", r.ID, "error", cause)
	return fmt.Errorf("compute next execution: %w", cause)
}

func (s *Scheduler) publish(ctx context.Context, r model.Reminder, occurrence time.Time, attempt int, deliveryID string) {
	if deliveryID == "" {
		deliveryID = uuid.NewString()
		created, err := s.deliveries.Record(ctx, &model.Delivery{
			ID:           deliveryID,
			ReminderID:   r.ID,
			OccurrenceAt: occurrence,
		})
		if err != nil {
			s.logger.Error("record delivery", "reminder_id", r.ID, "error", err)
			return
		}
		if !created {
			return
		}
	}

	ev := DueEvent{DeliveryID: deliveryID, Reminder: r, OccurrenceAt: occurrence, Attempt: attempt}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("dispatch queue full", "reminder_id", r.ID, "delivery_id", deliveryID)
		if err := s.deliveries.MarkFailed(ctx, deliveryID, "dispatch queue full"); err != nil {
			s.logger.Error("mark delivery failed", "delivery_id", deliveryID, "error", err)
		}
	}
}

// retryFailed republishes failed deliveries that still have attempts left.
// Recurrence state is not touched.
func (s *Scheduler) retryFailed(ctx context.Context) int {
	failed, err := s.deliveries.ListRetryable(ctx, s.maxAttempt)
	if err != nil {
		s.logger.Error("list retryable deliveries", "error", err)
		return 0
	}

	retried := 0
	for _, d := range failed {
		r, err := s.reminders.GetByID(ctx, d.ReminderID)
		if err != nil {
			s.logger.Error("load reminder for retry", "delivery_id", d.ID, "error", err)
			continue
		}
		if r == nil {
			continue
		}
		claimed, err := s.deliveries.ClaimRetry(ctx, d.ID)
		if err != nil || !claimed {
			continue
		}
		s.publish(ctx, *r, d.OccurrenceAt, d.Attempts+1, d.ID)
		retried++
	}
	return retried
}

func isDue(r model.Reminder, now time.Time) bool {
	return r.Status == model.StatusActive && r.NextExecution != nil && !r.NextExecution.After(now)
}
