package matcher

import "github.com/dukerupert/remindr/internal/model"

// ClassifyScope guesses the deletion scope from the wording of a request.
// "onwards" wins over everything so "from today onwards" truncates; "all" and
// "entire" win over day words so "all of today's reminders" removes series.
// A bare "from" is the weakest signal.
func ClassifyScope(text string) (model.ScopeType, bool) {
	words := make(map[string]bool)
	for _, w := range tokenize(text) {
		words[w] = true
	}
	switch {
	case words["onwards"] || words["onward"]:
		return model.ScopeFromDate, true
	case words["all"] || words["entire"]:
		return model.ScopeSeries, true
	case words["today"] || words["tomorrow"] || words["this"] || words["today's"] || words["tomorrow's"]:
		return model.ScopeSingle, true
	case words["from"]:
		return model.ScopeFromDate, true
	}
	return "", false
}
