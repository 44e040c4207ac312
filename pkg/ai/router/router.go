package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/llm"
)

const (
	classifyMarker = "<task>classify_intent</task>"
	noAnswer       = "Sorry, I don't have an answer for that."
)

// Query is one inbound user turn.
type Query struct {
	Text      string
	UserID    string
	SessionID string
}

// Handler answers a query of one intent. Progress may be reported to sink;
// the returned text is the reply.
type Handler interface {
	Handle(ctx context.Context, q Query, sink stream.Sink) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, q Query, sink stream.Sink) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, q Query, sink stream.Sink) (string, error) {
	return f(ctx, q, sink)
}

// delegations names the thinking chunk announcing a hand-off. Intents
// without an entry are answered in place.
var delegations = map[Intent]string{
	IntentSchema: "delegate_to_schema_explorer",
	IntentData:   "delegate_to_sql_agent",
}

// Router classifies each turn and hands it to exactly one handler.
type Router struct {
	llm      llm.LLMProvider
	handlers map[Intent]Handler
	logger   *log.Logger
}

// NewRouter creates a router over a handler table.
func NewRouter(provider llm.LLMProvider, handlers map[Intent]Handler, logger *log.Logger) *Router {
	return &Router{
		llm:      provider,
		handlers: handlers,
		logger:   logger,
	}
}

// Handle answers one turn: a routing directive or classification picks the
// intent, the delegation is announced, the handler runs and its reply is
// emitted as text. The error is non-nil only when the stream failed.
func (r *Router) Handle(ctx context.Context, q Query, sink stream.Sink) (string, error) {
	d := ParseDirective(q.Text)
	q.Text = d.Clean

	var reply string
	switch {
	case d.IsEmpty():
		reply = "What would you like to know about the database?"
	default:
		intent := d.Intent
		if intent == "" {
			intent = r.Classify(ctx, q)
		} else {
			r.logger.Printf("[ROUTER] Directive forces intent %s", intent)
		}

		if tool, ok := delegations[intent]; ok {
			if err := sink.Thinking(ctx, tool, q.Text); err != nil {
				return "", err
			}
		}

		var err error
		reply, err = r.Dispatch(ctx, intent, q, sink)
		if err != nil {
			return "", err
		}
	}

	if reply == "" {
		reply = noAnswer
	}
	if err := sink.Text(ctx, reply); err != nil {
		return "", err
	}
	return reply, nil
}

type classifyResponse struct {
	Intent string `json:"intent"`
}

// Classify asks the model for the intent of q. Failures, unknown labels
// and unparseable answers all fall back to IntentChat.
func (r *Router) Classify(ctx context.Context, q Query) Intent {
	raw, err := r.llm.Generate(ctx, classifyPrompt(q.Text), llm.WithTemperature(0), llm.WithJSON())
	if err != nil {
		r.logger.Printf("[ROUTER] Classification failed, defaulting to chat: %v", err)
		return IntentChat
	}

	var resp classifyResponse
	if err := json.Unmarshal([]byte(jsonObject(raw)), &resp); err != nil {
		r.logger.Printf("[ROUTER] Unparseable classification %q, defaulting to chat", raw)
		return IntentChat
	}

	intent, ok := ParseIntent(resp.Intent)
	if !ok {
		r.logger.Printf("[ROUTER] Unknown intent %q, defaulting to chat", resp.Intent)
		return IntentChat
	}

	r.logger.Printf("[ROUTER] Classified as %s", intent)
	return intent
}

// Dispatch runs the handler registered for intent. Handler faults are
// turned into an explanatory reply; only stream failures are returned.
func (r *Router) Dispatch(ctx context.Context, intent Intent, q Query, sink stream.Sink) (string, error) {
	h, ok := r.handlers[intent]
	if !ok {
		r.logger.Printf("[ROUTER] No handler registered for %s", intent)
		return fmt.Sprintf("Sorry, I can't answer %s questions right now.", intent), nil
	}

	reply, err := h.Handle(ctx, q, sink)
	if err != nil {
		if apperrors.Is(err, apperrors.Stream) {
			return "", err
		}
		if ctx.Err() != nil {
			return "", apperrors.Wrap(apperrors.Stream, "turn cancelled", ctx.Err())
		}
		r.logger.Printf("[ROUTER] %s handler failed: %v", intent, err)
		return delegationFailure(apperrors.Message(err, "Something went wrong while looking into it.")), nil
	}

	trimmed := strings.TrimSpace(reply)
	if rest, found := strings.CutPrefix(trimmed, "Error:"); found {
		r.logger.Printf("[ROUTER] %s handler reported: %s", intent, trimmed)
		return delegationFailure(strings.TrimSpace(rest)), nil
	}
	return trimmed, nil
}

func delegationFailure(detail string) string {
	if detail == "" {
		return "Sorry, I couldn't complete that request."
	}
	return "Sorry, I couldn't complete that request. " + detail
}

func classifyPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString(classifyMarker + "\n")
	sb.WriteString("<system>\nYou route questions about a relational database to the right specialist.\n</system>\n\n")
	sb.WriteString("<decision_policy>\n")
	sb.WriteString("- schema: questions about the structure of the data (which tables exist, what columns a table has, how tables relate).\n")
	sb.WriteString("- data: questions answered by concrete records (counts, lists, lookups, aggregates, charts).\n")
	sb.WriteString("- summary: requests for an overall status or summary report of the database.\n")
	sb.WriteString("- chat: greetings, small talk and anything else.\n")
	sb.WriteString("- When two categories fit equally well, answer chat.\n")
	sb.WriteString("</decision_policy>\n\n")
	sb.WriteString("<question>\n" + question + "\n</question>\n\n")
	sb.WriteString("<output_format>\nRespond with ONLY valid JSON: {\"intent\": \"schema\" | \"data\" | \"summary\" | \"chat\"}\n</output_format>")
	return sb.String()
}

func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
