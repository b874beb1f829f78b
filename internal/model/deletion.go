package model

import "time"

type ScopeType string

const (
	ScopeSingle   ScopeType = "single"
	ScopeSeries   ScopeType = "series"
	ScopeFromDate ScopeType = "from_date"
)

func (s ScopeType) Valid() bool {
	switch s {
	case ScopeSingle, ScopeSeries, ScopeFromDate:
		return true
	}
	return false
}

// DeletionScope is the requested granularity of removal. Date is the target
// occurrence day for ScopeSingle and the cutoff for ScopeFromDate.
type DeletionScope struct {
	Type ScopeType  `json:"type"`
	Date *time.Time `json:"date,omitempty"`
}

// Match is one ranked candidate returned by the matcher.
type Match struct {
	Reminder       Reminder   `json:"reminder"`
	Score          int        `json:"score"`
	Reasons        []string   `json:"reasons"`
	IsRecurring    bool       `json:"is_recurring"`
	SuggestedScope *ScopeType `json:"suggested_scope,omitempty"`
}
