package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/tools"
)

const planMarker = "<task>plan_tables</task>"

var (
	broadWords = []string{"all", "every", "list", "show", "display"}
	chartWords = []string{"graph", "chart", "plot", "visuali"}
)

type planResponse struct {
	Tables []string `json:"tables"`
}

// plan resolves which catalog tables the question needs.
func (p *Pipeline) plan(ctx context.Context, t *turn, sink stream.Sink) (Stage, error) {
	if err := sink.Thinking(ctx, tools.ListTablesName, ""); err != nil {
		return Done, err
	}
	names := p.catalog.Names()

	found, misses := p.catalog.Mentions(t.query)
	selected := p.askTables(ctx, t.query)
	for _, name := range found {
		if !slices.Contains(selected, name) {
			selected = append(selected, name)
		}
	}

	if len(selected) == 0 {
		if len(misses) > 0 {
			m := misses[0]
			if err := sink.Thinking(ctx, tools.DescribeTableName, m.Word); err != nil {
				return Done, err
			}
			p.logger.Printf("[PLAN] '%s' is not a table, closest is '%s'", m.Word, m.Suggestion)
			return t.fail(apperrors.NotFound(fmt.Sprintf("Table '%s' not found.", m.Word), m.Suggestion)), nil
		}
		return t.fail(apperrors.New(apperrors.Lookup, fmt.Sprintf(
			"I couldn't tell which table holds that information. Available tables: %s.",
			strings.Join(names, ", "),
		))), nil
	}

	for _, name := range selected {
		if err := sink.Thinking(ctx, tools.DescribeTableName, name); err != nil {
			return Done, err
		}
		table, err := p.catalog.Describe(name)
		if err != nil {
			p.logger.Printf("[PLAN] Skipping unknown table %q", name)
			continue
		}
		t.plan.Tables = append(t.plan.Tables, table)
	}

	t.plan.Broad = hasAny(t.query, broadWords)
	if t.plan.Broad {
		t.plan.Descriptive = make(map[string][]string, len(t.plan.Tables))
		for _, tbl := range t.plan.Tables {
			if cols := tbl.DescriptiveColumns(); len(cols) > 0 {
				t.plan.Descriptive[tbl.Name] = cols
			}
		}
	}
	t.plan.Chart = hasAny(t.query, chartWords)

	p.logger.Printf("[PLAN] Tables=%v Broad=%v Chart=%v", tableNames(t.plan.Tables), t.plan.Broad, t.plan.Chart)
	return Generating, nil
}

// askTables lets the model pick tables. Names it invents are dropped; any
// failure yields nil so the caller falls back to names found in the text.
func (p *Pipeline) askTables(ctx context.Context, query string) []string {
	var prompt strings.Builder
	prompt.WriteString(planMarker + "\n")
	prompt.WriteString("<system>\nYou select the database tables needed to answer a question. You do NOT write SQL.\n</system>\n\n")
	prompt.WriteString("<tables>\n")
	for _, tbl := range p.catalog.Tables() {
		prompt.WriteString(fmt.Sprintf("- %s(%s)", tbl.Name, strings.Join(tbl.ColumnNames(), ", ")))
		if tbl.Description != "" {
			prompt.WriteString(": " + tbl.Description)
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("</tables>\n\n")
	prompt.WriteString("<question>\n" + query + "\n</question>\n\n")
	prompt.WriteString("<output_format>\nRespond with ONLY valid JSON: {\"tables\": [\"name\", ...]}\n</output_format>")

	raw, err := p.llm.Generate(ctx, prompt.String(), llm.WithTemperature(0), llm.WithJSON())
	if err != nil {
		p.logger.Printf("[PLAN] Table selection failed, using text matches: %v", err)
		return nil
	}

	var resp planResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		p.logger.Printf("[PLAN] Unparseable table selection %q", raw)
		return nil
	}

	var out []string
	for _, name := range resp.Tables {
		if tbl, ok := p.catalog.Table(name); ok && !slices.Contains(out, tbl.Name) {
			out = append(out, tbl.Name)
		}
	}
	return out
}

func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return response[start : end+1]
}

// hasAny reports whether any word of text starts with one of prefixes.
func hasAny(text string, prefixes []string) bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, f := range fields {
		for _, p := range prefixes {
			if strings.HasPrefix(f, p) {
				return true
			}
		}
	}
	return false
}

func tableNames(tables []catalog.Table) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}
	return out
}
