package router

import (
	"strings"
)

// Intent is the category of a question. Exactly one handler serves each.
type Intent string

const (
	IntentSchema  Intent = "schema"  // questions about tables and columns
	IntentData    Intent = "data"    // questions answered by rows
	IntentSummary Intent = "summary" // status reports over the whole database
	IntentChat    Intent = "chat"    // small talk, and anything unclear
)

// Intents lists every intent in a stable order.
var Intents = []Intent{IntentSchema, IntentData, IntentSummary, IntentChat}

// ParseIntent normalises a label such as " Data " to an Intent.
func ParseIntent(label string) (Intent, bool) {
	candidate := Intent(strings.ToLower(strings.TrimSpace(label)))
	for _, i := range Intents {
		if i == candidate {
			return i, true
		}
	}
	return "", false
}

// Directive is a question with an optional leading "/intent" override.
type Directive struct {
	Clean  string
	Intent Intent // empty when no override was given
}

// ParseDirective strips a leading "/schema", "/data", "/summary" or "/chat".
//   - /data how many flights?  → Intent data, Clean "how many flights?"
//   - how many flights?        → no Intent, Clean unchanged
func ParseDirective(text string) Directive {
	trimmed := strings.TrimSpace(text)
	d := Directive{Clean: trimmed}

	if !strings.HasPrefix(trimmed, "/") {
		return d
	}

	word, rest, _ := strings.Cut(trimmed[1:], " ")
	intent, ok := ParseIntent(word)
	if !ok {
		return d
	}

	d.Intent = intent
	d.Clean = strings.TrimSpace(rest)
	return d
}

// IsEmpty reports whether nothing but the directive was given.
func (d Directive) IsEmpty() bool {
	return d.Clean == ""
}
