// Package apperrors defines the typed errors raised while answering a question.
// Every failure carries a Kind so callers can decide whether it becomes an
// explanatory reply, a stream shutdown or an HTTP error.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Validation means a statement was rejected by the safety gate.
	Validation Kind = "validation"
	// Execution means the database refused or failed the statement.
	Execution Kind = "execution"
	// Lookup means a table name could not be resolved in the catalog.
	Lookup Kind = "lookup"
	// Delegation means a handler selected by the router failed.
	Delegation Kind = "delegation"
	// Stream means the consumer went away or the stream was already completed.
	Stream Kind = "stream"
)

// E wraps an error with kind and a message that is safe to show to a user.
type E struct {
	Kind       Kind
	Message    string
	Suggestion string
	Err        error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// UserMessage renders the message shown in a reply. The wrapped cause is
// never included.
func (e *E) UserMessage() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s Did you mean '%s'?", e.Message, e.Suggestion)
	}
	return e.Message
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// NotFound builds a lookup error with an optional suggestion.
func NotFound(msg, suggestion string) *E {
	return &E{Kind: Lookup, Message: msg, Suggestion: suggestion}
}

// Is reports whether any error in err's chain is an *E of the given kind.
func Is(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Message returns the user-facing message of err, or fallback when err is
// not one of ours.
func Message(err error, fallback string) string {
	var e *E
	if errors.As(err, &e) {
		return e.UserMessage()
	}
	return fallback
}
