package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/remindr/internal/model"
)

type DeliveryStore struct {
	db *sql.DB
}

func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

// Record inserts a pending delivery. A second record for the same reminder
// occurrence is ignored and reported as false.
func (s *DeliveryStore) Record(ctx context.Context, d *model.Delivery) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO reminder_deliveries (id, reminder_id, occurrence_at, status)
		 VALUES (?, ?, ?, ?)`,
		d.ID, d.ReminderID, d.OccurrenceAt.UTC(), string(model.DeliveryPending),
	)
	if err != nil {
		return false, fmt.Errorf("record delivery: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *DeliveryStore) GetByID(ctx context.Context, id string) (*model.Delivery, error) {
	var d model.Delivery
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, reminder_id, occurrence_at, status, attempts, last_error, created_at, updated_at
		 FROM reminder_deliveries WHERE id = ?`, id,
	).Scan(&d.ID, &d.ReminderID, &d.OccurrenceAt, &status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	d.Status = model.DeliveryStatus(status)
	return &d, nil
}

// MarkSent records a successful attempt.
func (s *DeliveryStore) MarkSent(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder_deliveries
		 SET status = ?, attempts = attempts + 1, last_error = '', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(model.DeliverySent), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt with its error message.
func (s *DeliveryStore) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder_deliveries
		 SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		string(model.DeliveryFailed), reason, id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}

// MarkSinkDelivered records that one sink accepted the delivery, so retries
// skip it.
func (s *DeliveryStore) MarkSinkDelivered(ctx context.Context, id, sink string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivery_sinks (delivery_id, sink) VALUES (?, ?)`,
		id, sink,
	)
	if err != nil {
		return fmt.Errorf("mark sink delivered: %w", err)
	}
	return nil
}

// DeliveredSinks returns the sinks that already accepted the delivery.
func (s *DeliveryStore) DeliveredSinks(ctx context.Context, id string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sink FROM delivery_sinks WHERE delivery_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("list delivered sinks: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var sink string
		if err := rows.Scan(&sink); err != nil {
			return nil, fmt.Errorf("scan delivered sink: %w", err)
		}
		done[sink] = true
	}
	return done, rows.Err()
}

// ClaimRetry moves a failed delivery back to pending so only one retry is in
// flight. It reports false when the delivery is no longer failed.
func (s *DeliveryStore) ClaimRetry(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE reminder_deliveries SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(model.DeliveryPending), id, string(model.DeliveryFailed),
	)
	if err != nil {
		return false, fmt.Errorf("claim delivery retry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListRetryable returns failed deliveries that have been attempted fewer than
// maxAttempts times, oldest first.
func (s *DeliveryStore) ListRetryable(ctx context.Context, maxAttempts int) ([]model.Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reminder_id, occurrence_at, status, attempts, last_error, created_at, updated_at
		 FROM reminder_deliveries
		 WHERE status = ? AND attempts < ?
		 ORDER BY occurrence_at ASC`,
		string(model.DeliveryFailed), maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable deliveries: %w", err)
	}
	defer rows.Close()

	var out []model.Delivery
	for rows.Next() {
		var d model.Delivery
		var status string
		if err := rows.Scan(&d.ID, &d.ReminderID, &d.OccurrenceAt, &status, &d.Attempts, &d.LastError, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		d.Status = model.DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// CleanupBefore deletes finished deliveries older than the given time.
func (s *DeliveryStore) CleanupBefore(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reminder_deliveries WHERE status = ? AND occurrence_at < ?`,
		string(model.DeliverySent), before.UTC(),
	)
	if err != nil {
		return fmt.Errorf("cleanup deliveries: %w", err)
	}
	return nil
}
