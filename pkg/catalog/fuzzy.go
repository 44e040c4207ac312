package catalog

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// SuggestionCutoff is the minimum similarity for a table to be offered as a
// correction.
const SuggestionCutoff = 0.6

// Similarity is the Ratcliff/Obershelp ratio of two names, compared
// case-insensitively. 1.0 means identical, 0.0 means nothing in common.
func Similarity(a, b string) float64 {
	m := difflib.NewMatcher(chars(strings.ToLower(a)), chars(strings.ToLower(b)))
	return m.Ratio()
}

// Suggest returns the catalog table most similar to name. No suggestion is
// made when the best score is below SuggestionCutoff or when two tables
// share the best score.
func (c *Catalog) Suggest(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}

	best, bestScore, tie := "", 0.0, false
	for _, t := range c.tables {
		score := Similarity(t.Name, name)
		switch {
		case score > bestScore:
			best, bestScore, tie = t.Name, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}

	if bestScore < SuggestionCutoff || tie {
		return "", false
	}
	return best, true
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
