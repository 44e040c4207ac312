package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/sqlguard"

	"github.com/patrickmn/go-cache"
)

const summaryCacheKey = "summary_report"

// SQLRunner executes read statements and counts table rows.
type SQLRunner interface {
	Execute(ctx context.Context, statement string) database.Result
	CountRows(ctx context.Context, tables []string) (map[string]int64, error)
}

type SummaryReport struct {
	Status      string           `json:"status"`
	TableCounts map[string]int64 `json:"table_counts,omitempty"`
	TotalTables int              `json:"total_tables"`
	Message     string           `json:"message,omitempty"`
}

// Toolbox is the set of capabilities the agent may use: catalog lookups,
// statement validation, read-only execution and a record count summary.
type Toolbox struct {
	catalog *catalog.Catalog
	runner  SQLRunner
	cache   *cache.Cache
	logger  *log.Logger
}

func NewToolbox(cat *catalog.Catalog, runner SQLRunner, logger *log.Logger) *Toolbox {
	// Summaries are cheap to serve stale for a few seconds and expensive on big tables.
	c := cache.New(30*time.Second, time.Minute)
	return &Toolbox{
		catalog: cat,
		runner:  runner,
		cache:   c,
		logger:  logger,
	}
}

func (tb *Toolbox) Catalog() *catalog.Catalog { return tb.catalog }

func (tb *Toolbox) ListTables() []string {
	return tb.catalog.Names()
}

func (tb *Toolbox) DescribeTable(name string) (catalog.Table, error) {
	return tb.catalog.Describe(name)
}

func (tb *Toolbox) ValidateSQL(statement string) sqlguard.Verdict {
	return sqlguard.Validate(statement)
}

func (tb *Toolbox) ExecuteSQL(ctx context.Context, statement string) database.Result {
	return tb.runner.Execute(ctx, statement)
}

// SummaryReport counts the records of every catalog table.
func (tb *Toolbox) SummaryReport(ctx context.Context) SummaryReport {
	if cached, found := tb.cache.Get(summaryCacheKey); found {
		return cached.(SummaryReport)
	}

	names := tb.catalog.Names()
	counts, err := tb.runner.CountRows(ctx, names)
	if err != nil {
		tb.logger.Printf("[TOOLS] Summary report failed: %v", err)
		return SummaryReport{Status: "error", Message: "Could not count table records."}
	}

	report := SummaryReport{
		Status:      "success",
		TableCounts: counts,
		TotalTables: len(names),
	}
	tb.cache.Set(summaryCacheKey, report, cache.DefaultExpiration)
	return report
}

// FormatResult renders an execution result as the execute_sql tool reports it.
func FormatResult(res database.Result) string {
	if res.Err != nil {
		return "Error: " + res.Err.Message
	}
	if len(res.Rows) == 0 {
		return "Query executed successfully but returned no results."
	}

	data, err := json.Marshal(res.Rows)
	if err != nil {
		return "Error: could not encode result rows."
	}

	out := fmt.Sprintf("Returned %d rows", len(res.Rows))
	if res.Truncated {
		out += " (truncated from total)."
	}
	return out + ":\n" + string(data)
}
