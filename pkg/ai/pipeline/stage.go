package pipeline

import (
	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/catalog"
	"db-agent-be/pkg/database"
	"db-agent-be/pkg/sqlguard"
)

// Stage is a step of the data pipeline. Stages only advance, except for the
// single Validating -> Generating retry.
type Stage int

const (
	Planning Stage = iota
	Generating
	Validating
	Executing
	Reporting
	Done
)

func (s Stage) String() string {
	switch s {
	case Planning:
		return "planning"
	case Generating:
		return "generating"
	case Validating:
		return "validating"
	case Executing:
		return "executing"
	case Reporting:
		return "reporting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// MaxRetries bounds how often a rejected statement is sent back to Generating.
const MaxRetries = 1

// Statement is a candidate query and the gate's verdict on it.
type Statement struct {
	Raw     string
	Verdict sqlguard.Verdict
}

// PlanContext is what Planning hands to Generating.
type PlanContext struct {
	Tables []catalog.Table
	// Broad requests ("show all flights") must select descriptive columns.
	Broad bool
	// Descriptive holds the non-key columns of each planned table, set for
	// broad requests only.
	Descriptive map[string][]string
	// Chart requests are answered with a chart config after the prose.
	Chart bool
}

// turn is the state of one pipeline run. It never outlives Run.
type turn struct {
	query     string
	stage     Stage
	plan      PlanContext
	statement Statement
	retries   int
	rejection string
	result    database.Result
	failure   *apperrors.E
	reply     string
}

func (t *turn) fail(e *apperrors.E) Stage {
	t.failure = e
	return Reporting
}
