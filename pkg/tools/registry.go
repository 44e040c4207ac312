package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/sqlguard"

	lctools "github.com/tmc/langchaingo/tools"
)

const (
	ListTablesName    = "list_tables"
	DescribeTableName = "describe_table"
	ValidateSQLName   = "validate_sql"
	ExecuteSQLName    = "execute_sql"
	SummaryReportName = "generate_summary_report"
)

// Registry exposes the toolbox as string-in, string-out tools keyed by name.
// Failures are reported inside the output ("Error: ..."), never as a Go error.
func (tb *Toolbox) Registry() map[string]lctools.Tool {
	all := []lctools.Tool{
		&listTablesTool{tb: tb},
		&describeTableTool{tb: tb},
		&validateSQLTool{tb: tb},
		&executeSQLTool{tb: tb},
		&summaryReportTool{tb: tb},
	}
	reg := make(map[string]lctools.Tool, len(all))
	for _, t := range all {
		reg[t.Name()] = t
	}
	return reg
}

// Call runs a tool from the registry by name.
func (tb *Toolbox) Call(ctx context.Context, name, input string) (string, error) {
	t, ok := tb.Registry()[name]
	if !ok {
		return "", apperrors.NotFound("Unknown tool '"+name+"'.", "")
	}
	return t.Call(ctx, input)
}

type listTablesTool struct{ tb *Toolbox }

func (t *listTablesTool) Name() string { return ListTablesName }
func (t *listTablesTool) Description() string {
	return "Returns a list of all available tables in the database. Takes no input."
}
func (t *listTablesTool) Call(ctx context.Context, input string) (string, error) {
	t.tb.logger.Printf("[TOOL CALL] %s", t.Name())
	return marshal(t.tb.ListTables()), nil
}

type describeTableTool struct{ tb *Toolbox }

type lookupFailure struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (t *describeTableTool) Name() string { return DescribeTableName }
func (t *describeTableTool) Description() string {
	return "Returns the column definitions and descriptions for a table. Input is the table name."
}
func (t *describeTableTool) Call(ctx context.Context, input string) (string, error) {
	name := strings.Trim(strings.TrimSpace(input), `"'`)
	t.tb.logger.Printf("[TOOL CALL] %s %q", t.Name(), name)

	table, err := t.tb.DescribeTable(name)
	if err != nil {
		var e *apperrors.E
		if errors.As(err, &e) {
			return marshal(lookupFailure{Error: e.UserMessage(), Suggestion: e.Suggestion}), nil
		}
		return marshal(lookupFailure{Error: err.Error()}), nil
	}
	return marshal(table), nil
}

type validateSQLTool struct{ tb *Toolbox }

func (t *validateSQLTool) Name() string { return ValidateSQLName }
func (t *validateSQLTool) Description() string {
	return `Checks a SQL statement for syntax problems and prohibited keywords. Returns "VALID" or an error message.`
}
func (t *validateSQLTool) Call(ctx context.Context, input string) (string, error) {
	t.tb.logger.Printf("[TOOL CALL] %s", t.Name())
	return sqlguard.ContractString(t.tb.ValidateSQL(input)), nil
}

type executeSQLTool struct{ tb *Toolbox }

func (t *executeSQLTool) Name() string { return ExecuteSQLName }
func (t *executeSQLTool) Description() string {
	return "Executes a read-only SQL statement and returns at most 50 rows, or an error message."
}
func (t *executeSQLTool) Call(ctx context.Context, input string) (string, error) {
	t.tb.logger.Printf("[TOOL CALL] %s", t.Name())
	return FormatResult(t.tb.ExecuteSQL(ctx, input)), nil
}

type summaryReportTool struct{ tb *Toolbox }

func (t *summaryReportTool) Name() string { return SummaryReportName }
func (t *summaryReportTool) Description() string {
	return "Returns the number of records in every table. Takes no input."
}
func (t *summaryReportTool) Call(ctx context.Context, input string) (string, error) {
	t.tb.logger.Printf("[TOOL CALL] %s", t.Name())
	return marshal(t.tb.SummaryReport(ctx)), nil
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "Error: " + err.Error()
	}
	return string(data)
}
