// Package validate statically checks candidate SQL against the schema
// catalog before anything reaches the store. A candidate that survives
// every check is turned into an execution plan with the row cap
// applied; a candidate that fails produces a classified rejection the
// synthesizer can repair from.
package validate

import (
	"fmt"
	"strings"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlparse"
)

// FailureKind classifies why a candidate was rejected.
type FailureKind string

const (
	KindSyntaxError             FailureKind = "syntax_error"
	KindUnknownTable            FailureKind = "unknown_table"
	KindUnknownColumn           FailureKind = "unknown_column"
	KindTypeMismatch            FailureKind = "type_mismatch"
	KindDisallowedStatement     FailureKind = "disallowed_statement"
	KindMissingWhereOnWideTable FailureKind = "missing_where_on_wide_table"
	KindExceedsComplexityBudget FailureKind = "exceeds_complexity_budget"
)

// Rejection is a classified validation failure. The detail is written
// for the synthesizer: it names the offending identifier or construct
// so the next round can repair it.
type Rejection struct {
	Kind   FailureKind
	Detail string
}

func (r *Rejection) Error() string {
	return string(r.Kind) + ": " + r.Detail
}

// Plan is a validated candidate ready for sandboxed execution. SQL has
// the row cap applied and is what the engine actually runs.
type Plan struct {
	Stmt   *sqlparse.SelectStmt
	SQL    string
	RowCap int
}

// Config holds the complexity budgets.
type Config struct {
	MaxNodes          int
	MaxJoins          int
	MaxSubqueryDepth  int
	WideTableRowCount int64
}

type Validator struct {
	catalog *schema.Catalog
	cfg     Config
}

func New(catalog *schema.Catalog, cfg Config) *Validator {
	return &Validator{catalog: catalog, cfg: cfg}
}

// Validate runs the full check sequence: parse, statement kind, name
// binding, type consistency, complexity budgets, wide-table guard.
// Checks run in that order and the first failure wins, so identical
// input always yields the identical rejection.
func (v *Validator) Validate(sql string, rowCap int) (*Plan, *Rejection) {
	stmt, err := sqlparse.Parse(sql)
	if err != nil {
		if disallowed, ok := err.(*sqlparse.DisallowedError); ok {
			return nil, &Rejection{Kind: KindDisallowedStatement, Detail: disallowed.Reason}
		}
		return nil, &Rejection{Kind: KindSyntaxError, Detail: err.Error()}
	}

	chk := &checker{catalog: v.catalog, wideTableRows: v.cfg.WideTableRowCount}
	chk.checkStmt(stmt, nil)
	if chk.rejection != nil {
		return nil, chk.rejection
	}

	if rej := v.checkComplexity(stmt); rej != nil {
		return nil, rej
	}
	if chk.wideRejection != nil {
		return nil, chk.wideRejection
	}

	return &Plan{
		Stmt:   stmt,
		SQL:    applyRowCap(sql, stmt, rowCap),
		RowCap: rowCap,
	}, nil
}

func (v *Validator) checkComplexity(stmt *sqlparse.SelectStmt) *Rejection {
	if nodes := sqlparse.NodeCount(stmt); v.cfg.MaxNodes > 0 && nodes > v.cfg.MaxNodes {
		return &Rejection{
			Kind:   KindExceedsComplexityBudget,
			Detail: fmt.Sprintf("query has %d nodes, budget is %d", nodes, v.cfg.MaxNodes),
		}
	}
	if joins := sqlparse.JoinCount(stmt); v.cfg.MaxJoins > 0 && joins > v.cfg.MaxJoins {
		return &Rejection{
			Kind:   KindExceedsComplexityBudget,
			Detail: fmt.Sprintf("query has %d joins, budget is %d", joins, v.cfg.MaxJoins),
		}
	}
	if depth := sqlparse.SubqueryDepth(stmt); v.cfg.MaxSubqueryDepth > 0 && depth > v.cfg.MaxSubqueryDepth {
		return &Rejection{
			Kind:   KindExceedsComplexityBudget,
			Detail: fmt.Sprintf("query nests %d levels deep, budget is %d", depth, v.cfg.MaxSubqueryDepth),
		}
	}
	return nil
}

// applyRowCap bounds the result set by wrapping the query in a LIMIT
// subquery, unless the outer query already limits itself at or under
// the cap. The wrap allows one row past the cap so the sandbox can
// tell an exactly-full result from an overflowing one.
func applyRowCap(sql string, stmt *sqlparse.SelectStmt, rowCap int) string {
	if rowCap <= 0 {
		return stripTrailingSemicolons(sql)
	}
	if stmt.Body != nil && stmt.Body.Op == sqlparse.SetOpNone && stmt.Body.Left != nil {
		if lit, ok := stmt.Body.Left.Limit.(*sqlparse.Literal); ok && lit.Type == sqlparse.LiteralNumber {
			var n int
			if _, err := fmt.Sscanf(lit.Value, "%d", &n); err == nil && n <= rowCap {
				return stripTrailingSemicolons(sql)
			}
		}
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", stripTrailingSemicolons(sql), rowCap+1)
}

func stripTrailingSemicolons(sql string) string {
	trimmed := strings.TrimSpace(sql)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
