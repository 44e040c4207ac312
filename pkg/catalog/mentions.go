package catalog

import (
	"strings"
	"unicode"
)

// Miss is a word that looks like a misspelled table name.
type Miss struct {
	Word       string
	Suggestion string
}

// Mentions scans free text for table names. Exact matches (ignoring case and
// a trailing plural "s") are returned in order of appearance. Words that are
// only similar to a table are returned as misses, unless that table was also
// named exactly.
func (c *Catalog) Mentions(text string) ([]string, []Miss) {
	var found []string
	var misses []Miss
	seenTable := make(map[string]bool)
	seenWord := make(map[string]bool)

	for _, word := range words(text) {
		if len(word) < 3 || seenWord[word] {
			continue
		}
		seenWord[word] = true

		if name, ok := c.matchWord(word); ok {
			if !seenTable[name] {
				seenTable[name] = true
				found = append(found, name)
			}
			continue
		}

		if len(word) < 4 {
			continue
		}
		if suggestion, ok := c.Suggest(word); ok {
			misses = append(misses, Miss{Word: word, Suggestion: suggestion})
		}
	}

	var kept []Miss
	for _, m := range misses {
		if !seenTable[m.Suggestion] {
			kept = append(kept, m)
		}
	}
	return found, kept
}

func (c *Catalog) matchWord(word string) (string, bool) {
	if t, ok := c.Table(word); ok {
		return t.Name, true
	}
	stem := singular(word)
	for _, t := range c.tables {
		if singular(strings.ToLower(t.Name)) == stem {
			return t.Name, true
		}
	}
	return "", false
}

func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") {
		return w[:len(w)-1]
	}
	return w
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}
