// Package duckdb runs sandboxed queries against an embedded DuckDB
// database opened in read-only mode. It serves single-node deployments
// where the dataset lives in a local database file.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querypilot/querypilot/internal/sandbox"
)

type Engine struct {
	db *sql.DB
}

// Open opens the database file read-only. Writes are impossible at the
// storage layer, not just by policy.
func Open(path string) (*Engine, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("duckdb path is required")
	}
	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

// NewEngine wraps an already opened handle. Used by tests and by the
// seed tool, which needs write access.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping duckdb: %w", err)
	}
	return nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Execute(ctx context.Context, sqlText string, timeout time.Duration, rowCap int) (sandbox.Result, error) {
	start := time.Now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return sandbox.Result{}, classify(err, timeout)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return sandbox.Result{}, classify(err, timeout)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		if rowCap > 0 && len(resultRows) >= rowCap {
			return sandbox.Result{}, &sandbox.Failure{
				Kind:   sandbox.KindRowLimitExceeded,
				Detail: fmt.Sprintf("result exceeds the row cap of %d", rowCap),
			}
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return sandbox.Result{}, classify(err, timeout)
		}
		resultRows = append(resultRows, sandbox.NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return sandbox.Result{}, classify(err, timeout)
	}

	return sandbox.Result{
		Columns: columns,
		Rows:    resultRows,
		Elapsed: time.Since(start),
	}, nil
}

func classify(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &sandbox.Failure{
			Kind:   sandbox.KindTimeout,
			Detail: fmt.Sprintf("query exceeded the %s execution budget", timeout),
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return &sandbox.Failure{
			Kind:   sandbox.KindConnectionLost,
			Detail: err.Error(),
		}
	}
	return &sandbox.Failure{
		Kind:   sandbox.KindEngineError,
		Detail: err.Error(),
	}
}
