package model

import "time"

type ReminderType string

const (
	TypeOnce    ReminderType = "once"
	TypeDaily   ReminderType = "daily"
	TypeWeekly  ReminderType = "weekly"
	TypeMonthly ReminderType = "monthly"
	TypeYearly  ReminderType = "yearly"
	TypeCustom  ReminderType = "custom"
)

// Valid reports whether t is one of the known reminder types.
func (t ReminderType) Valid() bool {
	switch t {
	case TypeOnce, TypeDaily, TypeWeekly, TypeMonthly, TypeYearly, TypeCustom:
		return true
	}
	return false
}

// Recurring reports whether the type repeats.
func (t ReminderType) Recurring() bool {
	return t.Valid() && t != TypeOnce
}

type ReminderStatus string

const (
	StatusActive    ReminderStatus = "active"
	StatusPaused    ReminderStatus = "paused"
	StatusCompleted ReminderStatus = "completed"
	StatusCancelled ReminderStatus = "cancelled"
)

func (s ReminderStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// RecurrencePattern is the structured rule set persisted alongside a reminder.
// DaysOfWeek uses 0=Sunday..6=Saturday. Zero values mean "not set".
type RecurrencePattern struct {
	Interval       int         `json:"interval,omitempty"`
	DaysOfWeek     []int       `json:"daysOfWeek,omitempty"`
	DayOfMonth     int         `json:"dayOfMonth,omitempty"`
	TimeOfDay      string      `json:"timeOfDay,omitempty"`
	Timezone       string      `json:"timezone,omitempty"`
	EndDate        *time.Time  `json:"endDate,omitempty"`
	MaxOccurrences int         `json:"maxOccurrences,omitempty"`
	ExclusionDates []time.Time `json:"exclusionDates,omitempty"`
}

// Clone returns a deep copy so callers can mutate slices without aliasing.
func (p RecurrencePattern) Clone() RecurrencePattern {
	out := p
	if p.DaysOfWeek != nil {
		out.DaysOfWeek = append([]int(nil), p.DaysOfWeek...)
	}
	if p.ExclusionDates != nil {
		out.ExclusionDates = append([]time.Time(nil), p.ExclusionDates...)
	}
	if p.EndDate != nil {
		end := *p.EndDate
		out.EndDate = &end
	}
	return out
}

type Reminder struct {
	ID             int64             `json:"id"`
	OwnerID        string            `json:"owner_id"`
	ChannelID      string            `json:"channel_id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Type           ReminderType      `json:"type"`
	Status         ReminderStatus    `json:"status"`
	ScheduledAt    time.Time         `json:"scheduled_at"`
	NextExecution  *time.Time        `json:"next_execution"`
	Pattern        RecurrencePattern `json:"recurrence_pattern"`
	ExecutionCount int               `json:"execution_count"`
	LastExecutedAt *time.Time        `json:"last_executed_at"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the reminder.
func (r Reminder) Clone() Reminder {
	out := r
	out.Pattern = r.Pattern.Clone()
	if r.NextExecution != nil {
		next := *r.NextExecution
		out.NextExecution = &next
	}
	if r.LastExecutedAt != nil {
		last := *r.LastExecutedAt
		out.LastExecutedAt = &last
	}
	return out
}

// IsRecurring returns true if this reminder repeats.
func (r *Reminder) IsRecurring() bool {
	return r.Type.Recurring()
}
