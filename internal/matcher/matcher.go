// Package matcher ranks reminders against a free-text deletion request.
package matcher

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/timeutil"
)

// Signal weights, highest first.
const (
	phraseWeight      = 40
	titleWeight       = 30
	descriptionWeight = 15
	overlapWeight     = 10
)

// Category buckets a score for presentation.
type Category string

const (
	CategoryHigh   Category = "high"
	CategoryMedium Category = "medium"
	CategoryLow    Category = "low"
	CategoryNone   Category = ""
)

func Categorize(score int) Category {
	switch {
	case score >= 70:
		return CategoryHigh
	case score >= 40:
		return CategoryMedium
	case score >= 20:
		return CategoryLow
	}
	return CategoryNone
}

// Criteria is a validated deletion request.
type Criteria struct {
	Description string
	Keywords    []string
	TimeContext string
}

// query is Criteria preprocessed once per ranking.
type query struct {
	phrase   string
	keywords []string
	time     TimeContext
	scope    *model.ScopeType
}

func newQuery(c Criteria) query {
	words := contentWords(c.Description)
	phrase := strings.Join(words, " ")
	for _, k := range c.Keywords {
		words = append(words, contentWords(k)...)
	}
	if phrase == "" {
		phrase = strings.Join(dedupe(words), " ")
	}

	q := query{
		phrase:   phrase,
		keywords: dedupe(words),
		time:     ParseTimeContext(c.TimeContext + " " + c.Description),
	}
	if scope, ok := ClassifyScope(c.Description + " " + c.TimeContext); ok {
		q.scope = &scope
	}
	return q
}

// Score rates how well r matches c at now, in [0,100], with the reasons that
// contributed.
func Score(r model.Reminder, c Criteria, now time.Time) (int, []string) {
	return newQuery(c).score(r, now)
}

func (q query) score(r model.Reminder, now time.Time) (int, []string) {
	var total float64
	var reasons []string

	if q.phraseIn(r.Title) || q.phraseIn(r.Description) {
		total += phraseWeight
		reasons = append(reasons, fmt.Sprintf("matches %q", q.phrase))
	}

	if points := titleMatch(q.keywords, r.Title); points > 0 {
		total += points
		reasons = append(reasons, fmt.Sprintf("title matches %.0f%% of keywords", points/titleWeight*100))
	}

	if r.NextExecution != nil && !q.time.Empty() {
		loc, err := timeutil.LoadLocation(r.Pattern.Timezone)
		if err == nil {
			if points, why := q.time.score(*r.NextExecution, now, loc); points > 0 {
				total += float64(points)
				reasons = append(reasons, why)
			}
		}
	}

	descWords := wordSet(r.Description)
	if hit := fraction(q.keywords, descWords); hit > 0 {
		total += descriptionWeight * hit
		reasons = append(reasons, fmt.Sprintf("description matches %.0f%% of keywords", hit*100))
	}

	if j := jaccard(q.keywords, contentWords(r.Title+" "+r.Description)); j > 0 {
		total += overlapWeight * j
	}

	return clamp(int(math.Round(total))), reasons
}

// phraseIn matches the request phrase against text either verbatim or with
// filler words removed.
func (q query) phraseIn(text string) bool {
	return containsPhrase(normalize(text), q.phrase) ||
		containsPhrase(strings.Join(contentWords(text), " "), q.phrase)
}

func titleMatch(keywords []string, title string) float64 {
	return titleWeight * fraction(keywords, wordSet(title))
}

// Rank scores every reminder and returns the non-zero matches best first.
// Equal scores order by earliest next execution, reminders without one last,
// then by id.
func Rank(reminders []model.Reminder, c Criteria, now time.Time) []model.Match {
	q := newQuery(c)
	var matches []model.Match
	for _, r := range reminders {
		score, reasons := q.score(r, now)
		if score == 0 {
			continue
		}
		m := model.Match{
			Reminder:    r,
			Score:       score,
			Reasons:     reasons,
			IsRecurring: r.IsRecurring(),
		}
		if m.IsRecurring && q.scope != nil {
			scope := *q.scope
			m.SuggestedScope = &scope
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		an, bn := a.Reminder.NextExecution, b.Reminder.NextExecution
		switch {
		case an != nil && bn != nil && !an.Equal(*bn):
			return an.Before(*bn)
		case an != nil && bn == nil:
			return true
		case an == nil && bn != nil:
			return false
		}
		return a.Reminder.ID < b.Reminder.ID
	})
	return matches
}

func fraction(keywords []string, words map[string]bool) float64 {
	if len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, k := range keywords {
		if words[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func jaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	union := len(set)
	inter := 0
	seen := make(map[string]bool, len(b))
	for _, w := range b {
		if seen[w] {
			continue
		}
		seen[w] = true
		if set[w] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clamp(score int) int {
	return max(0, min(100, score))
}
