package database

import (
	"context"
	"log"
	"time"

	"db-agent-be/pkg/apperrors"
	"db-agent-be/pkg/sqlguard"

	"gorm.io/gorm"
)

// MaxRows is the largest number of rows a single execution hands back.
const MaxRows = 50

// Row maps column name to value. Byte slices are converted to strings.
type Row map[string]any

// Result holds either rows or an error, never both.
type Result struct {
	Columns   []string
	Rows      []Row
	Truncated bool
	Err       *apperrors.E
}

// Failed reports whether the statement did not produce rows.
func (r Result) Failed() bool { return r.Err != nil }

// Executor runs validated read statements on a dedicated connection.
type Executor struct {
	db      *gorm.DB
	logger  *log.Logger
	maxRows int
}

func NewExecutor(db *gorm.DB, logger *log.Logger) *Executor {
	return &Executor{
		db:      db,
		logger:  logger,
		maxRows: MaxRows,
	}
}

// Execute validates statement again, runs it and collects at most MaxRows
// rows. The connection is scoped to this call and released on every path.
func (e *Executor) Execute(ctx context.Context, statement string) Result {
	if v := sqlguard.Validate(statement); !v.Valid {
		e.logger.Printf("[EXECUTOR] Rejected statement: %s", v.Reason)
		return Result{Err: apperrors.Wrap(apperrors.Validation, v.Reason, v.Cause())}
	}

	start := time.Now()
	var res Result

	err := e.db.WithContext(ctx).Connection(func(tx *gorm.DB) error {
		rows, err := tx.Raw(statement).Rows()
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		res.Columns = cols

		for rows.Next() {
			if len(res.Rows) == e.maxRows {
				res.Truncated = true
				break
			}

			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}

			row := make(Row, len(cols))
			for i, c := range cols {
				row[c] = normalize(values[i])
			}
			res.Rows = append(res.Rows, row)
		}
		return rows.Err()
	})
	if err != nil {
		e.logger.Printf("[EXECUTOR] Statement failed after %v: %v", time.Since(start), err)
		return Result{Err: apperrors.Wrap(apperrors.Execution, "Database error: "+describe(err), err)}
	}

	e.logger.Printf("[EXECUTOR] %d rows (truncated=%v) in %v", len(res.Rows), res.Truncated, time.Since(start))
	return res
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return t
	}
}

// CountRows counts the records of each named table.
func (e *Executor) CountRows(ctx context.Context, tables []string) (map[string]int64, error) {
	return CountRows(ctx, e.db, tables)
}
