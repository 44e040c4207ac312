package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"db-agent-be/pkg/ai/stream"
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/llm"
	"db-agent-be/pkg/sqlguard"
	"db-agent-be/pkg/tools"
)

const generateMarker = "<task>write_sql</task>"

var (
	fencePattern = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")
	startPattern = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)
)

func (p *Pipeline) generate(ctx context.Context, t *turn) (Stage, error) {
	raw, err := p.llm.Generate(ctx, p.generatePrompt(t), llm.WithTemperature(0))
	if err != nil {
		if ctx.Err() != nil {
			return Done, apperrors.Wrap(apperrors.Stream, "turn cancelled", ctx.Err())
		}
		p.logger.Printf("[GENERATE] Model call failed: %v", err)
		return t.fail(apperrors.Wrap(apperrors.Delegation, "I couldn't write a query for that question right now.", err)), nil
	}

	t.statement = Statement{Raw: extractSQL(raw)}
	p.logger.Printf("[GENERATE] Candidate (attempt %d): %s", t.retries+1, t.statement.Raw)
	return Validating, nil
}

func (p *Pipeline) validate(ctx context.Context, t *turn, sink stream.Sink) (Stage, error) {
	if err := sink.Thinking(ctx, tools.ValidateSQLName, t.statement.Raw); err != nil {
		return Done, err
	}

	t.statement.Verdict = sqlguard.Validate(t.statement.Raw)
	if t.statement.Verdict.Valid {
		return Executing, nil
	}

	reason := t.statement.Verdict.Reason
	if t.retries < MaxRetries {
		t.retries++
		t.rejection = reason
		p.logger.Printf("[VALIDATE] Rejected, retrying: %s", reason)
		return Generating, nil
	}

	p.logger.Printf("[VALIDATE] Rejected after %d retries: %s", t.retries, reason)
	return t.fail(apperrors.Wrap(apperrors.Validation, reason, t.statement.Verdict.Cause())), nil
}

func (p *Pipeline) generatePrompt(t *turn) string {
	var prompt strings.Builder

	prompt.WriteString(generateMarker + "\n")
	prompt.WriteString("<system>\n")
	prompt.WriteString(fmt.Sprintf("You write ONE read-only %s query that answers the question.\n", p.dialect))
	prompt.WriteString("</system>\n\n")

	prompt.WriteString("<schema>\n")
	for _, tbl := range t.plan.Tables {
		prompt.WriteString(fmt.Sprintf("TABLE %s\n", tbl.Name))
		for _, c := range tbl.Columns {
			line := fmt.Sprintf("  %s %s", c.Name, c.Type)
			if c.PrimaryKey {
				line += " PRIMARY KEY"
			}
			if c.ForeignKey != "" {
				line += " REFERENCES " + c.ForeignKey
			}
			if c.Description != "" {
				line += " -- " + c.Description
			}
			prompt.WriteString(line + "\n")
		}
	}
	prompt.WriteString("</schema>\n\n")

	prompt.WriteString("<rules>\n")
	prompt.WriteString("- SELECT statements only. Never modify data or schema.\n")
	prompt.WriteString("- Use only the tables and columns listed in <schema>.\n")
	prompt.WriteString("- Counts, totals and anything meant for a chart: GROUP BY the category, label first column, value second.\n")
	prompt.WriteString("- Questions about specific records: filter with WHERE.\n")
	prompt.WriteString("- Listings: name the columns explicitly instead of SELECT *.\n")
	if t.plan.Broad {
		prompt.WriteString("- This is a broad request: include the descriptive columns, not only ids.")
		var groups []string
		for _, tbl := range t.plan.Tables {
			if cols := t.plan.Descriptive[tbl.Name]; len(cols) > 0 {
				groups = append(groups, tbl.Name+": "+strings.Join(cols, ", "))
			}
		}
		if len(groups) > 0 {
			prompt.WriteString(" Descriptive columns: " + strings.Join(groups, "; ") + ".")
		}
		prompt.WriteString("\n")
	}
	if t.plan.Chart {
		prompt.WriteString("- The answer is drawn as a chart: return exactly two columns, category then numeric value.\n")
	}
	prompt.WriteString("</rules>\n\n")

	prompt.WriteString("<question>\n" + t.query + "\n</question>\n\n")

	if t.rejection != "" {
		prompt.WriteString("<previous_attempt>\n")
		prompt.WriteString(t.statement.Raw + "\n")
		prompt.WriteString("REJECTED: " + t.rejection + "\n")
		prompt.WriteString("Write a corrected query.\n")
		prompt.WriteString("</previous_attempt>\n\n")
	}

	prompt.WriteString("<output_format>\nRespond with ONLY the SQL statement, no explanation.\n</output_format>")
	return prompt.String()
}

// extractSQL pulls the statement out of a model reply: the first fenced
// block if any, then everything from the first SELECT or WITH keyword.
// Replies without either are returned trimmed so the gate can judge them.
func extractSQL(reply string) string {
	text := strings.TrimSpace(reply)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if loc := startPattern.FindStringIndex(text); loc != nil && loc[0] > 0 {
		// Prose is dropped, a leading "DELETE ... (SELECT" is kept for the gate to see.
		if !mentionsDenied(text[:loc[0]]) {
			text = text[loc[0]:]
		}
	}
	return strings.TrimRight(strings.TrimSpace(text), "; \n\t")
}

func mentionsDenied(text string) bool {
	for _, f := range strings.FieldsFunc(strings.ToUpper(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if slices.Contains(sqlguard.Denylist, f) {
			return true
		}
	}
	return false
}
