// Package postgres runs sandboxed queries against PostgreSQL. Every
// query executes inside a read-only transaction with a server-side
// statement timeout, so a candidate that slips past validation still
// cannot write or run unbounded.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/querypilot/querypilot/internal/sandbox"
)

type Engine struct {
	db *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) HealthCheck(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
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

	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return sandbox.Result{}, classify(err, timeout)
	}
	defer func() { _ = tx.Rollback() }()

	if timeout > 0 {
		// SET LOCAL does not accept bind parameters; the value is a
		// computed integer, never candidate input.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
			return sandbox.Result{}, classify(err, timeout)
		}
	}

	rows, err := tx.QueryContext(ctx, sqlText)
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

// classify maps driver errors onto the sandbox failure taxonomy.
// SQLSTATE 57014 is query_canceled, raised when statement_timeout
// fires server-side.
func classify(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &sandbox.Failure{
			Kind:   sandbox.KindTimeout,
			Detail: fmt.Sprintf("query exceeded the %s execution budget", timeout),
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" {
			return &sandbox.Failure{
				Kind:   sandbox.KindTimeout,
				Detail: fmt.Sprintf("query exceeded the %s execution budget", timeout),
			}
		}
		return &sandbox.Failure{
			Kind:   sandbox.KindEngineError,
			Detail: pgErr.Message,
		}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
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
