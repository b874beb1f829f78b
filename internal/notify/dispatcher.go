// Package notify delivers fired reminders to their user-facing channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dukerupert/remindr/internal/scheduler"
)

// DeliveryRecorder stores the outcome of each delivery attempt. Sinks that
// accepted a delivery are recorded individually and skipped on retry.
type DeliveryRecorder interface {
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
	MarkSinkDelivered(ctx context.Context, id, sink string) error
	DeliveredSinks(ctx context.Context, id string) (map[string]bool, error)
}

type Options struct {
	Concurrency int
	Timeout     time.Duration
}

// Dispatcher consumes due events and fans each one out to every sink, with
// bounded concurrency and a timeout per delivery.
type Dispatcher struct {
	sinks      []Sink
	deliveries DeliveryRecorder
	sem        *semaphore.Weighted
	timeout    time.Duration
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewDispatcher(deliveries DeliveryRecorder, sinks []Sink, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		sinks:      sinks,
		deliveries: deliveries,
		sem:        semaphore.NewWeighted(int64(opts.Concurrency)),
		timeout:    opts.Timeout,
		logger:     logger,
	}
}

// Run dispatches events until ctx is cancelled or events is closed, then
// waits for in-flight deliveries.
func (d *Dispatcher) Run(ctx context.Context, events <-chan scheduler.DueEvent) {
	defer d.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := d.sem.Acquire(ctx, 1); err != nil {
				return
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				defer d.sem.Release(1)
				d.Dispatch(ctx, ev)
			}()
		}
	}
}

// Dispatch delivers a single event and records the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, ev scheduler.DueEvent) error {
	n := NewNotification(ev.DeliveryID, ev.Reminder, ev.OccurrenceAt)

	// Record even when shutting down.
	recordCtx := context.WithoutCancel(ctx)

	var done map[string]bool
	if ev.Attempt > 1 {
		var err error
		if done, err = d.deliveries.DeliveredSinks(recordCtx, ev.DeliveryID); err != nil {
			d.logger.Warn("load delivered sinks, retrying all", "delivery_id", ev.DeliveryID, "error", err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.deliver(sendCtx, recordCtx, n, done)
	if err != nil {
		d.logger.Warn("dispatch failed",
			"delivery_id", ev.DeliveryID,
			"reminder_id", ev.Reminder.ID,
			"attempt", ev.Attempt,
			"error", err,
		)
		if rerr := d.deliveries.MarkFailed(recordCtx, ev.DeliveryID, err.Error()); rerr != nil {
			d.logger.Error("mark delivery failed", "delivery_id", ev.DeliveryID, "error", rerr)
		}
		return err
	}

	if rerr := d.deliveries.MarkSent(recordCtx, ev.DeliveryID); rerr != nil {
		d.logger.Error("mark delivery sent", "delivery_id", ev.DeliveryID, "error", rerr)
	}
	d.logger.Debug("reminder delivered", "delivery_id", ev.DeliveryID, "reminder_id", ev.Reminder.ID)
	return nil
}

// deliver hands n to every sink not in done and records each one that
// succeeds.
func (d *Dispatcher) deliver(ctx, recordCtx context.Context, n Notification, done map[string]bool) error {
	var errs []error
	for _, s := range d.sinks {
		if done[s.Name()] {
			continue
		}
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		if err := d.deliveries.MarkSinkDelivered(recordCtx, n.DeliveryID, s.Name()); err != nil {
			d.logger.Error("mark sink delivered", "delivery_id", n.DeliveryID, "sink", s.Name(), "error", err)
		}
	}
	return errors.Join(errs...)
}
