package matcher

import (
	"strings"
	"unicode"
)

// stopwords never count as keywords: filler, deletion verbs and scope words.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "me": true, "i": true,
	"to": true, "for": true, "of": true, "on": true, "at": true, "in": true,
	"and": true, "or": true, "is": true, "it": true, "its": true, "that": true,
	"this": true, "these": true, "those": true, "please": true, "with": true,
	"delete": true, "remove": true, "cancel": true, "stop": true, "drop": true,
	"reminder": true, "reminders": true, "remind": true, "about": true,
	"all": true, "entire": true, "every": true, "from": true, "onwards": true,
	"onward": true, "occurrence": true, "series": true, "one": true, "just": true,
	"only": true, "next": true, "am": true, "pm": true, "o'clock": true, "oclock": true,
}

// tokenize lowercases s and splits it into words.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// stem folds simple plurals so "pills" matches "pill".
func stem(w string) string {
	w = strings.Trim(w, "'")
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

// contentWords returns the stemmed words of s that carry meaning for matching,
// dropping stopwords, time words and bare numbers.
func contentWords(s string) []string {
	var out []string
	for _, w := range tokenize(s) {
		if stopwords[w] || isTimeWord(w) || isNumeric(w) {
			continue
		}
		out = append(out, stem(w))
	}
	return out
}

// wordSet returns the stemmed words of s, including stopwords.
func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range tokenize(s) {
		set[stem(w)] = true
	}
	return set
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := words[:0:0]
	for _, w := range words {
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func isNumeric(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w != ""
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+phrase+" ")
}

func normalize(s string) string {
	var words []string
	for _, w := range tokenize(s) {
		words = append(words, stem(w))
	}
	return strings.Join(words, " ")
}
