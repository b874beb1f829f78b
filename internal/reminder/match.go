package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/remindr/internal/deletion"
	"github.com/dukerupert/remindr/internal/matcher"
	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/recurrence"
	"github.com/dukerupert/remindr/internal/timeutil"
)

const (
	maxOptions = 5
	// clearMargin is how far the best match must lead the runner-up to be
	// acted on without asking.
	clearMargin   = 15
	minConfidence = 0.5
)

// RankedMatch is a Match with its presentation bucket.
type RankedMatch struct {
	model.Match
	Category matcher.Category `json:"category"`
	Summary  string           `json:"summary"`
}

// DescriptionResult answers a delete-by-description request. Options are set
// when no single reminder could be chosen.
type DescriptionResult struct {
	deletion.Result
	Options []RankedMatch `json:"options,omitempty"`
}

// Match ranks the owner's active reminders against c.
func (s *Service) Match(ctx context.Context, c MatchCriteria) ([]RankedMatch, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return s.rank(ctx, c, s.now())
}

func (s *Service) rank(ctx context.Context, c MatchCriteria, now time.Time) ([]RankedMatch, error) {
	reminders, err := s.store.ListByOwner(ctx, c.OwnerID, true)
	if err != nil {
		return nil, err
	}
	matches := matcher.Rank(reminders, matcher.Criteria{
		Description: c.Description,
		Keywords:    c.Keywords,
		TimeContext: c.TimeContext,
	}, now)

	out := make([]RankedMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, RankedMatch{
			Match:    m,
			Category: matcher.Categorize(m.Score),
			Summary:  summarize(m.Reminder, now),
		})
	}
	return out, nil
}

// DeleteByDescription deletes the reminder the request clearly refers to.
// Anything less than a single confident match returns ranked options instead.
func (s *Service) DeleteByDescription(ctx context.Context, c MatchCriteria) (DescriptionResult, error) {
	if err := c.validate(); err != nil {
		return DescriptionResult{Result: deletion.Result{Message: err.Error()}}, err
	}
	now := s.now()
	ranked, err := s.rank(ctx, c, now)
	if err != nil {
		return DescriptionResult{}, err
	}

	if len(ranked) == 0 {
		return DescriptionResult{Result: deletion.Result{
			Message: fmt.Sprintf("No active reminder matches %q.", describeCriteria(c)),
		}}, ErrNotFound
	}

	top := ranked[0]
	if !isClearWinner(ranked, c.Confidence) {
		return DescriptionResult{
			Result: deletion.Result{
				Message: fmt.Sprintf("Found %d reminders that could match %q. Which one did you mean?", len(ranked), describeCriteria(c)),
			},
			Options: ranked[:min(len(ranked), maxOptions)],
		}, nil
	}

	scope, ok := chooseScope(c, top.Match)
	if !ok {
		return DescriptionResult{
			Result: deletion.Result{
				Message: fmt.Sprintf("%q %s. Delete just one occurrence, the whole series, or everything from a date onwards?",
					top.Reminder.Title, strings.ToLower(recurrence.Describe(top.Reminder.Type, top.Reminder.Pattern))),
			},
			Options: ranked[:1],
		}, nil
	}

	ds, err := scopeFor(c, top.Reminder, scope, now)
	if err != nil {
		return DescriptionResult{Result: deletion.Result{Message: err.Error()}}, err
	}
	res, err := s.resolver.Resolve(ctx, top.Reminder.ID, ds, now)
	return DescriptionResult{Result: res}, err
}

func isClearWinner(ranked []RankedMatch, confidence float64) bool {
	if confidence > 0 && confidence < minConfidence {
		return false
	}
	if ranked[0].Category != matcher.CategoryHigh {
		return false
	}
	return len(ranked) == 1 || ranked[0].Score-ranked[1].Score >= clearMargin
}

// chooseScope picks the deletion scope: explicit request first, then the
// wording of the request, then recurring intent. Non-recurring reminders are
// always deleted outright.
func chooseScope(c MatchCriteria, m model.Match) (model.ScopeType, bool) {
	if !m.IsRecurring {
		return model.ScopeSeries, true
	}
	switch {
	case c.DeletionScope != "":
		return model.ScopeType(c.DeletionScope), true
	case m.SuggestedScope != nil:
		return *m.SuggestedScope, true
	case c.RecurringIntent:
		return model.ScopeSeries, true
	case c.ScopeDate != "":
		return model.ScopeSingle, true
	}
	return "", false
}

// scopeFor resolves the target day of a single or from_date deletion from the
// explicit scope date, then the request's day words, then the pending
// occurrence.
func scopeFor(c MatchCriteria, r model.Reminder, scope model.ScopeType, now time.Time) (model.DeletionScope, error) {
	ds := model.DeletionScope{Type: scope}
	if scope == model.ScopeSeries {
		return ds, nil
	}
	loc, err := timeutil.LoadLocation(r.Pattern.Timezone)
	if err != nil {
		return ds, err
	}

	if c.ScopeDate != "" {
		t, err := timeutil.ParseFlexible(c.ScopeDate, loc)
		if err != nil {
			return ds, invalid("scope_date", "%v", err)
		}
		ds.Date = &t
		return ds, nil
	}
	if day, ok := matcher.ParseTimeContext(c.TimeContext+" "+c.Description).Day(now, loc); ok {
		ds.Date = &day
		return ds, nil
	}
	switch {
	case r.NextExecution != nil:
		t := *r.NextExecution
		ds.Date = &t
	case scope == model.ScopeFromDate:
		t := timeutil.StartOfDay(now.In(loc))
		ds.Date = &t
	default:
		return ds, invalid("scope_date", "no occurrence to target")
	}
	return ds, nil
}

func summarize(r model.Reminder, now time.Time) string {
	desc := recurrence.Describe(r.Type, r.Pattern)
	if r.NextExecution == nil {
		return fmt.Sprintf("%s. %s", r.Title, desc)
	}
	loc, err := timeutil.LoadLocation(r.Pattern.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return fmt.Sprintf("%s. %s. Next: %s (%s)", r.Title, desc,
		timeutil.Format(*r.NextExecution, loc), timeutil.Relative(*r.NextExecution, now))
}

func describeCriteria(c MatchCriteria) string {
	parts := []string{strings.TrimSpace(c.Description)}
	if len(c.Keywords) > 0 && parts[0] == "" {
		parts[0] = strings.Join(c.Keywords, " ")
	}
	if tc := strings.TrimSpace(c.TimeContext); tc != "" {
		parts = append(parts, tc)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
