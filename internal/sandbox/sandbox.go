// Package sandbox executes validated SQL against the backing store
// under strict limits: read-only, a wall-clock timeout, and a hard row
// cap. Execution failures are classified so the pipeline can decide
// between retrying with feedback and giving up on the turn.
package sandbox

import (
	"context"
	"time"
)

// FailureKind classifies why an execution failed.
type FailureKind string

const (
	KindTimeout          FailureKind = "timeout"
	KindRowLimitExceeded FailureKind = "row_limit_exceeded"
	KindEngineError      FailureKind = "engine_error"
	KindConnectionLost   FailureKind = "connection_lost"
)

// Failure is a classified execution failure. Timeout, row-limit, and
// engine failures feed the next synthesis round; a lost connection is
// terminal for the turn.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f *Failure) Error() string {
	return string(f.Kind) + ": " + f.Detail
}

// Retryable reports whether the pipeline may attempt another round
// after this failure.
func (f *Failure) Retryable() bool {
	return f.Kind != KindConnectionLost
}

// Result is a fully materialized result set. Rows never exceed the row
// cap; a query producing more rows fails instead of being truncated.
type Result struct {
	Columns []string
	Rows    [][]any
	Elapsed time.Duration
}

// Engine runs one query under the sandbox limits. Implementations must
// be safe for concurrent use.
type Engine interface {
	Execute(ctx context.Context, sql string, timeout time.Duration, rowCap int) (Result, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// NormalizeValues converts driver-specific scan results into plain JSON
// friendly values.
func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case time.Time:
			normalized[i] = typed.Format(time.RFC3339)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
