package validate

import (
	"fmt"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlparse"
)

// checker binds every table and column reference against the catalog
// and runs the type pass. The first failure is kept and later checks
// become no-ops, so the reported rejection is deterministic. Wide-table
// scans are noted during binding but reported only after every earlier
// check has passed, keeping the check order stable.
type checker struct {
	catalog       *schema.Catalog
	wideTableRows int64
	rejection     *Rejection
	wideRejection *Rejection
}

func (c *checker) fail(kind FailureKind, format string, args ...any) columnType {
	if c.rejection == nil {
		c.rejection = &Rejection{Kind: kind, Detail: fmt.Sprintf(format, args...)}
	}
	return columnType{}
}

// checkStmt binds a statement and returns the scope of its first core,
// which callers use to derive the statement's output columns.
func (c *checker) checkStmt(stmt *sqlparse.SelectStmt, parent *scope) *scope {
	s := newScope(parent)
	if stmt == nil || c.rejection != nil {
		return s
	}

	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			inner := c.checkStmt(cte.Select, s)
			if c.rejection != nil {
				return s
			}
			s.registerCTE(cte.Name, c.outputRelation(cte.Select, inner, cte.Name))
		}
	}

	return c.checkBody(stmt.Body, s)
}

func (c *checker) checkBody(body *sqlparse.SelectBody, parent *scope) *scope {
	if body == nil || c.rejection != nil {
		return newScope(parent)
	}
	left := c.checkCore(body.Left, parent)
	if body.Right != nil {
		c.checkBody(body.Right, parent)
	}
	return left
}

func (c *checker) checkCore(core *sqlparse.SelectCore, parent *scope) *scope {
	s := newScope(parent)
	if core == nil || c.rejection != nil {
		return s
	}

	if core.From != nil {
		c.bindTableRef(core.From.Source, s, core)
		for _, join := range core.From.Joins {
			c.bindTableRef(join.Right, s, core)
		}
		for _, join := range core.From.Joins {
			if join.Condition != nil {
				c.requireBoolean(join.Condition, s, "JOIN condition")
			}
		}
	}
	if c.rejection != nil {
		return s
	}

	for _, item := range core.Columns {
		if item.Star {
			continue
		}
		if item.TableStar != "" {
			if _, ok := s.lookupRelation(item.TableStar); !ok {
				c.fail(KindUnknownTable, "unknown table or alias %q", item.TableStar)
				return s
			}
			continue
		}
		ct := c.typeOf(item.Expr, s)
		if c.rejection != nil {
			return s
		}
		name := item.Alias
		if name == "" {
			name = inferredName(item.Expr)
		}
		if name != "" {
			s.aliases[schema.Normalize(name)] = ct
		}
	}

	if core.Where != nil {
		c.requireBoolean(core.Where, s, "WHERE clause")
	}
	for _, expr := range core.GroupBy {
		c.checkAliasableExpr(expr, s)
	}
	if core.Having != nil {
		c.requireBoolean(core.Having, s, "HAVING clause")
	}
	for _, item := range core.OrderBy {
		c.checkAliasableExpr(item.Expr, s)
	}
	c.requireNumericIfKnown(core.Limit, s, "LIMIT")
	c.requireNumericIfKnown(core.Offset, s, "OFFSET")

	return s
}

// checkAliasableExpr binds an ORDER BY or GROUP BY expression, letting
// a bare identifier refer to a SELECT alias.
func (c *checker) checkAliasableExpr(expr sqlparse.Expr, s *scope) {
	if c.rejection != nil || expr == nil {
		return
	}
	if ref, ok := expr.(*sqlparse.ColumnRef); ok && ref.Table == "" {
		if _, exists := s.aliases[schema.Normalize(ref.Column)]; exists {
			return
		}
	}
	c.typeOf(expr, s)
}

func (c *checker) bindTableRef(ref sqlparse.TableRef, s *scope, core *sqlparse.SelectCore) {
	if ref == nil || c.rejection != nil {
		return
	}

	switch t := ref.(type) {
	case *sqlparse.TableName:
		if cte, ok := s.lookupCTE(t.Name); ok {
			name := t.Name
			if t.Alias != "" {
				name = t.Alias
			}
			s.addRelation(&relation{
				name:    schema.Normalize(name),
				columns: cte.columns,
				open:    cte.open,
			})
			return
		}

		table, ok := c.catalog.Table(t.Name)
		if !ok {
			c.fail(KindUnknownTable, "table %q does not exist", schema.Normalize(t.Name))
			return
		}
		c.noteWideScan(table, core)
		s.addRelation(relationFromTable(table, t.Alias))

	case *sqlparse.DerivedTable:
		inner := c.checkStmt(t.Select, s)
		if c.rejection != nil {
			return
		}
		s.addRelation(c.outputRelation(t.Select, inner, t.Alias))
	}
}

// noteWideScan records an unbounded scan of a table over the row
// threshold. Binding continues, so an unresolved column elsewhere in
// the query still wins over the heuristic.
func (c *checker) noteWideScan(table schema.Table, core *sqlparse.SelectCore) {
	if c.wideRejection != nil || c.wideTableRows <= 0 {
		return
	}
	if table.EstimatedRows < c.wideTableRows || core.Where != nil || core.Limit != nil {
		return
	}
	c.wideRejection = &Rejection{
		Kind: KindMissingWhereOnWideTable,
		Detail: fmt.Sprintf("table %q holds roughly %d rows and the query has no WHERE clause",
			table.Name, table.EstimatedRows),
	}
}

// outputRelation derives the column set a statement exposes to its
// consumers. Star projections make the relation open. The statement has
// already been checked, so re-deriving projection types cannot fail.
func (c *checker) outputRelation(stmt *sqlparse.SelectStmt, inner *scope, name string) *relation {
	rel := &relation{name: schema.Normalize(name), columns: make(map[string]columnType)}
	if stmt == nil || stmt.Body == nil || stmt.Body.Left == nil {
		rel.open = true
		return rel
	}
	for _, item := range stmt.Body.Left.Columns {
		if item.Star || item.TableStar != "" {
			rel.open = true
			continue
		}
		colName := item.Alias
		if colName == "" {
			colName = inferredName(item.Expr)
		}
		if colName == "" {
			continue
		}
		rel.columns[schema.Normalize(colName)] = c.typeOf(item.Expr, inner)
	}
	return rel
}

// inferredName mirrors how engines name unaliased projections.
func inferredName(expr sqlparse.Expr) string {
	switch e := expr.(type) {
	case *sqlparse.ColumnRef:
		return e.Column
	case *sqlparse.FuncCall:
		return e.Name
	case *sqlparse.CastExpr:
		return inferredName(e.Expr)
	case *sqlparse.ParenExpr:
		return inferredName(e.Expr)
	}
	return ""
}
