package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/remindr/internal/model"
)

// ErrConflict is returned by Update when the stored version no longer matches
// the version the caller read.
var ErrConflict = errors.New("reminder modified concurrently")

const reminderColumns = `id, owner_id, channel_id, title, description, type, status, scheduled_at,
	next_execution, recurrence_pattern, execution_count, last_executed_at, version, created_at, updated_at`

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

func (s *ReminderStore) Create(ctx context.Context, r *model.Reminder) (*model.Reminder, error) {
	pattern, err := json.Marshal(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("marshal recurrence pattern: %w", err)
	}
	status := r.Status
	if status == "" {
		status = model.StatusActive
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (owner_id, channel_id, title, description, type, status, scheduled_at,
		 next_execution, recurrence_pattern, execution_count, last_executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OwnerID, r.ChannelID, r.Title, r.Description, string(r.Type), string(status), r.ScheduledAt.UTC(),
		nullTime(r.NextExecution), string(pattern), r.ExecutionCount, nullTime(r.LastExecutedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns nil, nil when the reminder does not exist.
func (s *ReminderStore) GetByID(ctx context.Context, id int64) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// ListByOwner returns an owner's reminders ordered by next execution, with
// unscheduled reminders last.
func (s *ReminderStore) ListByOwner(ctx context.Context, ownerID string, activeOnly bool) ([]model.Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE owner_id = ?`
	args := []any{ownerID}
	if activeOnly {
		query += ` AND status = ?`
		args = append(args, string(model.StatusActive))
	}
	query += ` ORDER BY next_execution IS NULL, next_execution ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders by owner: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListDue returns active reminders whose next execution is at or before now.
func (s *ReminderStore) ListDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE status = ? AND next_execution IS NOT NULL AND next_execution <= ?
		 ORDER BY next_execution ASC, id ASC`,
		string(model.StatusActive), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// Update writes every mutable field of r if the stored version still equals
// r.Version, and bumps the version. It returns nil, nil when the reminder no
// longer exists and ErrConflict when it was changed by someone else.
// ScheduledAt is never rewritten.
func (s *ReminderStore) Update(ctx context.Context, r *model.Reminder) (*model.Reminder, error) {
	pattern, err := json.Marshal(r.Pattern)
	if err != nil {
		return nil, fmt.Errorf("marshal recurrence pattern: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE reminders
		 SET title = ?, description = ?, status = ?, next_execution = ?, recurrence_pattern = ?,
		     execution_count = ?, last_executed_at = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		r.Title, r.Description, string(r.Status), nullTime(r.NextExecution), string(pattern),
		r.ExecutionCount, nullTime(r.LastExecutedAt), r.ID, r.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetByID(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, nil
		}
		return nil, ErrConflict
	}
	return s.GetByID(ctx, r.ID)
}

// Delete removes a reminder and reports whether it existed.
func (s *ReminderStore) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM reminders WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete reminder: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var r model.Reminder
	var typ, status, pattern string
	var next, last sql.NullTime

	err := row.Scan(&r.ID, &r.OwnerID, &r.ChannelID, &r.Title, &r.Description, &typ, &status, &r.ScheduledAt,
		&next, &pattern, &r.ExecutionCount, &last, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Type = model.ReminderType(typ)
	r.Status = model.ReminderStatus(status)
	if next.Valid {
		t := next.Time.UTC()
		r.NextExecution = &t
	}
	if last.Valid {
		t := last.Time.UTC()
		r.LastExecutedAt = &t
	}
	r.ScheduledAt = r.ScheduledAt.UTC()
	if err := json.Unmarshal([]byte(pattern), &r.Pattern); err != nil {
		return nil, fmt.Errorf("unmarshal recurrence pattern for reminder %d: %w", r.ID, err)
	}
	return &r, nil
}

func scanReminders(rows *sql.Rows) ([]model.Reminder, error) {
	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
