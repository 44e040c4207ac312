// Package llmtest provides a scripted llm.LLMProvider for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"db-agent-be/pkg/llm"
)

// ErrUnscripted is returned when no rule matches a prompt.
var ErrUnscripted = errors.New("llmtest: no scripted reply")

// Rule answers any conversation whose text contains Marker. When Gate is
// set the reply is held back until Gate is closed.
type Rule struct {
	Marker string
	Reply  string
	Err    error
	Gate   <-chan struct{}
}

// Fake answers with the first matching rule and records every conversation.
type Fake struct {
	mu    sync.Mutex
	rules []Rule
	calls [][]llm.Message
}

var _ llm.LLMProvider = &Fake{}

func New(rules ...Rule) *Fake {
	return &Fake{rules: rules}
}

func (f *Fake) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.calls = append(f.calls, append([]llm.Message(nil), history...))
	f.mu.Unlock()

	text := flatten(history)
	for _, r := range f.rules {
		if !strings.Contains(text, r.Marker) {
			continue
		}
		if r.Gate != nil {
			select {
			case <-r.Gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return r.Reply, r.Err
	}
	return "", ErrUnscripted
}

func (f *Fake) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return f.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, opts...)
}

// Calls returns how many conversations contained marker.
func (f *Fake) Calls(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if strings.Contains(flatten(c), marker) {
			n++
		}
	}
	return n
}

// Prompts returns the flattened text of every conversation seen so far.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = flatten(c)
	}
	return out
}

func flatten(history []llm.Message) string {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
