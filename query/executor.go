// Package query executes generated SQL against the analytics warehouse
// behind a forbidden-keyword guard.
package query

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// Result is the structured outcome of a query execution. Failures are
// reported as values, never as Go errors, so downstream stages can evaluate
// them and ask for a rewritten query.
type Result struct {
	Success   bool             `json:"success"`
	Results   []map[string]any `json:"results,omitempty"`
	TotalRows int64            `json:"total_rows,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Executor runs a read-only query and reports a structured result
type Executor interface {
	Execute(ctx context.Context, sqlText string) Result
}

// SQLExecutor is an Executor backed by database/sql. Result rows are capped
// at MaxRows while TotalRows reports the true count.
type SQLExecutor struct {
	db      *sql.DB
	guard   *Guard
	maxRows int
	logger  *zap.Logger
}

// NewSQLExecutor creates an executor over an open database handle.
// maxRows <= 0 defaults to 20.
func NewSQLExecutor(db *sql.DB, guard *Guard, maxRows int, logger *zap.Logger) *SQLExecutor {
	if guard == nil {
		guard = NewGuard(nil)
	}
	if maxRows <= 0 {
		maxRows = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLExecutor{db: db, guard: guard, maxRows: maxRows, logger: logger}
}

// Execute runs the query after the guard check. Guard rejections and
// execution failures both come back as {Success:false, Error}.
func (e *SQLExecutor) Execute(ctx context.Context, sqlText string) Result {
	if keyword, found := e.guard.Check(sqlText); found {
		e.logger.Warn("rejected query with forbidden keyword", zap.String("keyword", keyword))
		return Result{Success: false, Error: "forbidden operation: " + keyword}
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		e.logger.Warn("query execution failed", zap.Error(err))
		return Result{Success: false, Error: err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	var (
		collected []map[string]any
		totalRows int64
	)
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		totalRows++
		if len(collected) >= e.maxRows {
			// Keep counting past the cap for the true total
			continue
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{Success: false, Error: err.Error()}
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			row[column] = normalizeValue(values[i])
		}
		collected = append(collected, row)
	}
	if err := rows.Err(); err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	e.logger.Debug("query executed",
		zap.Int64("total_rows", totalRows),
		zap.Int("returned_rows", len(collected)))

	return Result{Success: true, Results: collected, TotalRows: totalRows}
}

// normalizeValue converts driver byte slices into strings so results
// serialize readably
func normalizeValue(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
