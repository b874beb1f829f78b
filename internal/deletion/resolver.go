package deletion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/store"
)

const maxConflictRetries = 3

// Store is the subset of the reminder store the resolver mutates.
type Store interface {
	GetByID(ctx context.Context, id int64) (*model.Reminder, error)
	Update(ctx context.Context, r *model.Reminder) (*model.Reminder, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// Result is reported back to the user for every deletion request.
type Result struct {
	Success      bool            `json:"success"`
	DeletionType model.ScopeType `json:"deletion_type"`
	Action       Action          `json:"action,omitempty"`
	Message      string          `json:"message"`
	Reminder     *model.Reminder `json:"reminder,omitempty"`
}

type Resolver struct {
	store  Store
	logger *slog.Logger
}

func NewResolver(s Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: s, logger: logger}
}

// Resolve applies scope to the reminder with the given id. A rejected request
// returns a failed Result together with the reason as error; the reminder is
// left untouched.
func (r *Resolver) Resolve(ctx context.Context, id int64, scope model.DeletionScope, now time.Time) (Result, error) {
	for attempt := 1; ; attempt++ {
		rem, err := r.store.GetByID(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if rem == nil {
			return Result{Message: fmt.Sprintf("Reminder %d not found.", id)}, ErrNotFound
		}

		res, err := r.apply(ctx, *rem, scope, now)
		if errors.Is(err, store.ErrConflict) && attempt < maxConflictRetries {
			r.logger.Debug("reminder changed during deletion, retrying", "reminder_id", id, "attempt", attempt)
			continue
		}
		return res, err
	}
}

func (r *Resolver) apply(ctx context.Context, rem model.Reminder, scope model.DeletionScope, now time.Time) (Result, error) {
	plan, err := PlanDeletion(rem, scope, now)
	if err != nil {
		return Result{DeletionType: plan.Scope, Message: failureMessage(plan, err)}, err
	}

	res := Result{Success: true, DeletionType: plan.Scope, Action: plan.Action, Message: plan.Message}
	switch plan.Action {
	case ActionDelete:
		ok, err := r.store.Delete(ctx, rem.ID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Message: fmt.Sprintf("Reminder %d not found.", rem.ID)}, ErrNotFound
		}
	case ActionUnchanged:
		res.Reminder = &rem
	default:
		updated, err := r.store.Update(ctx, &plan.Reminder)
		if err != nil {
			return Result{}, err
		}
		if updated == nil {
			return Result{Message: fmt.Sprintf("Reminder %d not found.", rem.ID)}, ErrNotFound
		}
		res.Reminder = updated
	}

	r.logger.Info("reminder deletion resolved",
		"reminder_id", rem.ID,
		"scope", string(scope.Type),
		"action", string(plan.Action),
	)
	return res, nil
}

func failureMessage(plan Plan, err error) string {
	if plan.Message != "" {
		return plan.Message
	}
	return "Could not delete reminder: " + err.Error() + "."
}
