package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/tools"
)

const (
	schemaMarker  = "<task>explain_schema</task>"
	summaryMarker = "<task>summarize_status</task>"
	chatMarker    = "<task>small_talk</task>"
)

// Runner is the data pipeline as seen by the router.
type Runner interface {
	Run(ctx context.Context, query string, sink stream.Sink) (string, error)
}

// NewDataHandler answers data questions with the pipeline.
func NewDataHandler(r Runner) Handler {
	return HandlerFunc(func(ctx context.Context, q Query, sink stream.Sink) (string, error) {
		return r.Run(ctx, q.Text, sink)
	})
}

// SchemaHandler answers questions about tables and columns. The facts come
// from the catalog; the model may only rephrase them.
type SchemaHandler struct {
	toolbox *tools.Toolbox
	llm     llm.LLMProvider
	logger  *log.Logger
}

func NewSchemaHandler(tb *tools.Toolbox, provider llm.LLMProvider, logger *log.Logger) *SchemaHandler {
	return &SchemaHandler{toolbox: tb, llm: provider, logger: logger}
}

func (h *SchemaHandler) Handle(ctx context.Context, q Query, sink stream.Sink) (string, error) {
	if err := sink.Thinking(ctx, tools.ListTablesName, ""); err != nil {
		return "", err
	}
	names := h.toolbox.ListTables()

	found, misses := h.toolbox.Catalog().Mentions(q.Text)
	if miss, ok := namedMiss(q.Text, misses); ok && len(found) == 0 {
		word := miss.Word
		if err := sink.Thinking(ctx, tools.DescribeTableName, word); err != nil {
			return "", err
		}
		_, err := h.toolbox.DescribeTable(word)
		return apperrors.Message(err, fmt.Sprintf("Table '%s' not found.", word)), nil
	}

	if len(found) == 0 {
		facts := fmt.Sprintf("The database has %d tables: %s.", len(names), strings.Join(names, ", "))
		return h.narrate(ctx, q.Text, facts, names), nil
	}

	var sections []string
	var required []string
	for _, name := range found {
		if err := sink.Thinking(ctx, tools.DescribeTableName, name); err != nil {
			return "", err
		}
		table, err := h.toolbox.DescribeTable(name)
		if err != nil {
			return "", err
		}
		sections = append(sections, DescribeMarkdown(table))
		required = append(required, table.Name)
		required = append(required, table.ColumnNames()...)
	}
	return h.narrate(ctx, q.Text, strings.Join(sections, "\n\n"), required), nil
}

// narrate rephrases facts. The model's answer is used only when it still
// names everything in required.
func (h *SchemaHandler) narrate(ctx context.Context, question, facts string, required []string) string {
	var prompt strings.Builder
	prompt.WriteString(schemaMarker + "\n")
	prompt.WriteString("<system>\nYou explain the structure of a database to a non-technical user. Use only the facts given. Keep Markdown tables as they are.\n</system>\n\n")
	prompt.WriteString("<facts>\n" + facts + "\n</facts>\n\n")
	prompt.WriteString("<question>\n" + question + "\n</question>")

	out, err := h.llm.Generate(ctx, prompt.String(), llm.WithTemperature(0.2))
	if err != nil {
		h.logger.Printf("[SCHEMA] Narration failed, answering with catalog facts: %v", err)
		return facts
	}
	if !mentionsAll(out, required) {
		h.logger.Printf("[SCHEMA] Narration dropped catalog names, answering with catalog facts")
		return facts
	}
	return strings.TrimSpace(out)
}

// DescribeMarkdown renders a table definition as a heading line and a
// Markdown column table.
func DescribeMarkdown(t catalog.Table) string {
	var sb strings.Builder
	sb.WriteString("**" + t.Name + "**")
	if t.Description != "" {
		sb.WriteString(": " + t.Description)
	}
	sb.WriteString("\n\n| column | type | key | description |\n| --- | --- | --- | --- |")
	for _, c := range t.Columns {
		key := ""
		switch {
		case c.PrimaryKey:
			key = "primary key"
		case c.ForeignKey != "":
			key = "references " + c.ForeignKey
		}
		sb.WriteString(fmt.Sprintf("\n| %s | %s | %s | %s |", c.Name, c.Type, key, c.Description))
	}
	return sb.String()
}

// SummaryHandler reports how many records each table holds.
type SummaryHandler struct {
	toolbox *tools.Toolbox
	llm     llm.LLMProvider
	logger  *log.Logger
}

func NewSummaryHandler(tb *tools.Toolbox, provider llm.LLMProvider, logger *log.Logger) *SummaryHandler {
	return &SummaryHandler{toolbox: tb, llm: provider, logger: logger}
}

func (h *SummaryHandler) Handle(ctx context.Context, q Query, sink stream.Sink) (string, error) {
	if err := sink.Thinking(ctx, tools.SummaryReportName, ""); err != nil {
		return "", err
	}

	report := h.toolbox.SummaryReport(ctx)
	if report.Status != "success" {
		return "", apperrors.New(apperrors.Delegation, report.Message)
	}

	var facts strings.Builder
	facts.WriteString(fmt.Sprintf("The database has %d tables.", report.TotalTables))
	required := make([]string, 0, 2*len(report.TableCounts))
	for _, name := range h.toolbox.ListTables() {
		n := report.TableCounts[name]
		unit := "records"
		if n == 1 {
			unit = "record"
		}
		facts.WriteString(fmt.Sprintf("\n- %s: %d %s", name, n, unit))
		required = append(required, name, fmt.Sprint(n))
	}

	var prompt strings.Builder
	prompt.WriteString(summaryMarker + "\n")
	prompt.WriteString("<system>\nYou write a short status summary of a database. Mention every table and its record count exactly as given.\n</system>\n\n")
	prompt.WriteString("<facts>\n" + facts.String() + "\n</facts>\n\n")
	prompt.WriteString("<question>\n" + q.Text + "\n</question>")

	out, err := h.llm.Generate(ctx, prompt.String(), llm.WithTemperature(0.2))
	if err != nil || !mentionsAll(out, required) {
		if err != nil {
			h.logger.Printf("[SUMMARY] Narration failed, answering with counts: %v", err)
		}
		return facts.String(), nil
	}
	return strings.TrimSpace(out), nil
}

// ChatHandler replies directly, without tools.
type ChatHandler struct {
	catalog *catalog.Catalog
	llm     llm.LLMProvider
}

func NewChatHandler(cat *catalog.Catalog, provider llm.LLMProvider) *ChatHandler {
	return &ChatHandler{catalog: cat, llm: provider}
}

func (h *ChatHandler) Handle(ctx context.Context, q Query, sink stream.Sink) (string, error) {
	system := chatMarker + "\nYou are a friendly assistant for a database question-answering service. " +
		"Keep replies short. You can answer questions about these tables: " +
		strings.Join(h.catalog.Names(), ", ") + ". Never write SQL in a reply."

	out, err := h.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: q.Text},
	}, llm.WithTemperature(0.7))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", apperrors.Wrap(apperrors.Stream, "turn cancelled", err)
		}
		return "", apperrors.Wrap(apperrors.Delegation, "I couldn't come up with a reply right now.", err)
	}
	return out, nil
}

// tableCues are words that mark a nearby word as a table name.
var tableCues = map[string]bool{
	"describe": true, "table": true, "tables": true, "column": true, "columns": true,
	"field": true, "fields": true, "schema": true, "structure": true,
}

// namedMiss returns the first miss that sits within two words of a table cue,
// so "describe flighst" counts and "who flies the most" does not.
func namedMiss(text string, misses []catalog.Miss) (catalog.Miss, bool) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, m := range misses {
		for i, w := range words {
			if w != m.Word {
				continue
			}
			for j := max(0, i-2); j <= min(len(words)-1, i+2); j++ {
				if tableCues[words[j]] {
					return m, true
				}
			}
		}
	}
	return catalog.Miss{}, false
}

func mentionsAll(text string, names []string) bool {
	lower := strings.ToLower(text)
	for _, n := range names {
		if !strings.Contains(lower, strings.ToLower(n)) {
			return false
		}
	}
	return true
}
