package reminder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/recurrence"
	"github.com/dukerupert/remindr/internal/timeutil"
)

const maxTitleLength = 200

// ValidationError rejects untrusted input before anything is stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CreateParams is a reminder creation request from the intent parser or the
// API.
type CreateParams struct {
	OwnerID     string                  `json:"owner_id"`
	ChannelID   string                  `json:"channel_id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Type        string                  `json:"type"`
	ScheduledAt string                  `json:"scheduled_at"`
	Pattern     model.RecurrencePattern `json:"recurrence_pattern"`
}

// validated is CreateParams after parsing and normalization.
type validated struct {
	reminder model.Reminder
	loc      *time.Location
}

func (p CreateParams) validate(defaultTZ string, now time.Time) (validated, error) {
	var v validated
	owner := strings.TrimSpace(p.OwnerID)
	if owner == "" {
		return v, invalid("owner_id", "required")
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return v, invalid("title", "required")
	}
	if len(title) > maxTitleLength {
		return v, invalid("title", "longer than %d characters", maxTitleLength)
	}
	typ := model.ReminderType(strings.ToLower(strings.TrimSpace(p.Type)))
	if !typ.Valid() {
		return v, invalid("type", "unknown reminder type %q", p.Type)
	}

	pattern := p.Pattern.Clone()
	if pattern.Timezone == "" {
		pattern.Timezone = defaultTZ
	}
	if pattern.Interval == 0 {
		pattern.Interval = 1
	}
	if err := recurrence.Validate(typ, pattern); err != nil {
		return v, invalid("recurrence_pattern", "%v", err)
	}
	loc, err := timeutil.LoadLocation(pattern.Timezone)
	if err != nil {
		return v, invalid("recurrence_pattern.timezone", "%v", err)
	}

	if strings.TrimSpace(p.ScheduledAt) == "" {
		return v, invalid("scheduled_at", "required")
	}
	scheduledAt, err := timeutil.ParseFlexible(p.ScheduledAt, loc)
	if err != nil {
		return v, invalid("scheduled_at", "%v", err)
	}
	if typ == model.TypeOnce {
		fires := scheduledAt
		if pattern.TimeOfDay != "" {
			clock, _ := timeutil.ParseTimeOfDay(pattern.TimeOfDay)
			fires = clock.On(scheduledAt.In(loc))
		}
		if !fires.After(now) {
			return v, invalid("scheduled_at", "%s is in the past", timeutil.Format(fires, loc))
		}
	}

	channel := strings.TrimSpace(p.ChannelID)
	if channel == "" {
		channel = owner
	}
	v.reminder = model.Reminder{
		OwnerID:     owner,
		ChannelID:   channel,
		Title:       title,
		Description: strings.TrimSpace(p.Description),
		Type:        typ,
		Status:      model.StatusActive,
		ScheduledAt: scheduledAt,
		Pattern:     pattern,
	}
	v.loc = loc
	return v, nil
}

// MatchCriteria is a description-based deletion request.
type MatchCriteria struct {
	OwnerID         string   `json:"owner_id"`
	Description     string   `json:"description"`
	Keywords        []string `json:"keywords"`
	TimeContext     string   `json:"time_context"`
	DeletionScope   string   `json:"deletion_scope"`
	RecurringIntent bool     `json:"recurring_intent"`
	ScopeDate       string   `json:"scope_date"`
	Confidence      float64  `json:"confidence"`
}

func (c MatchCriteria) validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return invalid("owner_id", "required")
	}
	if strings.TrimSpace(c.Description) == "" && len(c.Keywords) == 0 && strings.TrimSpace(c.TimeContext) == "" {
		return invalid("description", "description, keywords or time_context required")
	}
	if c.DeletionScope != "" && !model.ScopeType(c.DeletionScope).Valid() {
		return invalid("deletion_scope", "unknown scope %q", c.DeletionScope)
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return invalid("confidence", "must be between 0 and 1")
	}
	if c.ScopeDate != "" {
		if _, err := timeutil.ParseFlexible(c.ScopeDate, time.UTC); err != nil {
			return invalid("scope_date", "%v", err)
		}
	}
	return nil
}

// parseScope validates a scope name from the API; empty means series.
func parseScope(s string) (model.ScopeType, error) {
	if s == "" {
		return model.ScopeSeries, nil
	}
	scope := model.ScopeType(strings.ToLower(s))
	if !scope.Valid() {
		return "", invalid("scope", "unknown scope %q", s)
	}
	return scope, nil
}
