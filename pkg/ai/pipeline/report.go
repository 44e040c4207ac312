package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/sqlguard"
)

const narrateMarker = "<task>narrate_result</task>"

const noResults = "No results were found for your question."

func (p *Pipeline) report(ctx context.Context, t *turn) (Stage, error) {
	if t.failure != nil {
		t.reply = FailureMessage(t.failure)
		return Done, nil
	}
	if len(t.result.Rows) == 0 {
		t.reply = noResults
		return Done, nil
	}

	var chart string
	if t.plan.Chart {
		if cfg, ok := BuildChart(t.result, chartKind(t.query)); ok {
			chart = cfg.Tagged()
		}
	}

	prose := p.narrate(ctx, t, chart != "")
	if prose == "" {
		if chart != "" {
			prose = fmt.Sprintf("Here is a %s chart of %s by %s.",
				chartKind(t.query), strings.ToLower(humanize(t.result.Columns[1])), strings.ToLower(humanize(t.result.Columns[0])))
		} else {
			prose = FormatRows(t.result)
		}
	}

	if chart != "" {
		prose = StripCharts(prose) + "\n\n" + chart
	}
	t.reply = prose
	return Done, nil
}

// narrate asks the model to phrase the result. An empty string means the
// caller should use the deterministic formatting instead.
func (p *Pipeline) narrate(ctx context.Context, t *turn, withChart bool) string {
	var prompt strings.Builder
	prompt.WriteString(narrateMarker + "\n")
	prompt.WriteString("<system>\nYou are a reporting specialist. Turn raw database rows into a short, polite answer.\n</system>\n\n")
	prompt.WriteString("<formatting_rules>\n")
	if withChart {
		prompt.WriteString("- A chart is attached after your text. Write one or two sentences summarising it. Do NOT output JSON.\n")
	} else {
		prompt.WriteString("- 3 or more records: a Markdown table.\n")
		prompt.WriteString("- 1 or 2 records: a bulleted list with every key-value pair.\n")
		prompt.WriteString("- A single value: one clean sentence.\n")
	}
	if t.result.Truncated {
		prompt.WriteString(fmt.Sprintf("- Only the first %d rows are shown; say that more records matched.\n", database.MaxRows))
	}
	prompt.WriteString("- Do not mention SQL, the query or the raw data format.\n")
	prompt.WriteString("</formatting_rules>\n\n")
	prompt.WriteString("<question>\n" + t.query + "\n</question>\n\n")
	prompt.WriteString("<columns>\n" + strings.Join(t.result.Columns, ", ") + "\n</columns>\n\n")
	prompt.WriteString("<raw_data>\n" + Tuples(t.result) + "\n</raw_data>")

	out, err := p.llm.Generate(ctx, prompt.String(), llm.WithTemperature(0.3))
	if err != nil {
		p.logger.Printf("[REPORT] Narration failed, formatting rows directly: %v", err)
		return ""
	}
	out = strings.TrimSpace(out)
	if strings.HasPrefix(out, "Error:") {
		return ""
	}
	return out
}

// FailureMessage explains a failed turn without internal detail.
func FailureMessage(e *apperrors.E) string {
	switch e.Kind {
	case apperrors.Validation:
		if errors.Is(e, sqlguard.ErrDenied) {
			return "I can't run that request because only read-only queries are permitted. " + e.Message
		}
		return "I couldn't produce a valid query for that question. " + e.Message
	case apperrors.Execution:
		return "The query could not be completed. " + e.Message
	default:
		return e.UserMessage()
	}
}

// FormatRows renders rows the way a reply presents them: one sentence for a
// single value, bullets for one or two records, a Markdown table otherwise.
func FormatRows(res database.Result) string {
	var out string
	switch {
	case len(res.Rows) == 0:
		return noResults
	case len(res.Rows) == 1 && len(res.Columns) == 1:
		col := res.Columns[0]
		out = fmt.Sprintf("The %s is %v.", strings.ToLower(humanize(col)), cell(res.Rows[0][col]))
	case len(res.Rows) <= 2:
		out = bullets(res)
	default:
		out = markdownTable(res)
	}

	if res.Truncated {
		out += fmt.Sprintf("\n\nShowing the first %d rows; more records matched.", database.MaxRows)
	}
	return out
}

func bullets(res database.Result) string {
	var sb strings.Builder
	for i, row := range res.Rows {
		pairs := make([]string, len(res.Columns))
		for j, c := range res.Columns {
			pairs[j] = fmt.Sprintf("**%s**: %v", c, cell(row[c]))
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- " + strings.Join(pairs, ", "))
	}
	return sb.String()
}

func markdownTable(res database.Result) string {
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(res.Columns, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(res.Columns)) + "\n")
	for _, row := range res.Rows {
		cells := make([]string, len(res.Columns))
		for j, c := range res.Columns {
			cells[j] = strings.ReplaceAll(cell(row[c]), "|", `\|`)
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Tuples renders rows as a list of tuples, e.g. [('JFK', 10), ('LHR', 5)].
func Tuples(res database.Result) string {
	parts := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		vals := make([]string, len(res.Columns))
		for j, c := range res.Columns {
			switch v := row[c].(type) {
			case nil:
				vals[j] = "NULL"
			case string:
				vals[j] = "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
			default:
				vals[j] = fmt.Sprint(v)
			}
		}
		parts[i] = "(" + strings.Join(vals, ", ") + ")"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func cell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
