package sqlparse

// Inspect traverses the statement depth-first, calling fn for every
// node. Traversal into a node's children stops when fn returns false.
func Inspect(stmt *SelectStmt, fn func(node any) bool) {
	walkStmt(stmt, fn)
}

func walkStmt(stmt *SelectStmt, fn func(node any) bool) {
	if stmt == nil || !fn(stmt) {
		return
	}
	if stmt.With != nil {
		if fn(stmt.With) {
			for _, cte := range stmt.With.CTEs {
				if fn(cte) {
					walkStmt(cte.Select, fn)
				}
			}
		}
	}
	walkBody(stmt.Body, fn)
}

func walkBody(body *SelectBody, fn func(node any) bool) {
	if body == nil || !fn(body) {
		return
	}
	walkCore(body.Left, fn)
	walkBody(body.Right, fn)
}

func walkCore(core *SelectCore, fn func(node any) bool) {
	if core == nil || !fn(core) {
		return
	}
	for i := range core.Columns {
		if fn(&core.Columns[i]) {
			walkExpr(core.Columns[i].Expr, fn)
		}
	}
	if core.From != nil && fn(core.From) {
		walkTableRef(core.From.Source, fn)
		for _, join := range core.From.Joins {
			if fn(join) {
				walkTableRef(join.Right, fn)
				walkExpr(join.Condition, fn)
			}
		}
	}
	walkExpr(core.Where, fn)
	for _, expr := range core.GroupBy {
		walkExpr(expr, fn)
	}
	walkExpr(core.Having, fn)
	for i := range core.OrderBy {
		if fn(&core.OrderBy[i]) {
			walkExpr(core.OrderBy[i].Expr, fn)
		}
	}
	walkExpr(core.Limit, fn)
	walkExpr(core.Offset, fn)
}

func walkTableRef(ref TableRef, fn func(node any) bool) {
	if ref == nil || !fn(ref) {
		return
	}
	if derived, ok := ref.(*DerivedTable); ok {
		walkStmt(derived.Select, fn)
	}
}

func walkExpr(expr Expr, fn func(node any) bool) {
	if expr == nil || !fn(expr) {
		return
	}
	switch e := expr.(type) {
	case *BinaryExpr:
		walkExpr(e.Left, fn)
		walkExpr(e.Right, fn)
	case *UnaryExpr:
		walkExpr(e.Expr, fn)
	case *FuncCall:
		for _, arg := range e.Args {
			walkExpr(arg, fn)
		}
	case *CaseExpr:
		walkExpr(e.Operand, fn)
		for _, when := range e.Whens {
			walkExpr(when.Condition, fn)
			walkExpr(when.Result, fn)
		}
		walkExpr(e.Else, fn)
	case *CastExpr:
		walkExpr(e.Expr, fn)
	case *InExpr:
		walkExpr(e.Expr, fn)
		for _, value := range e.Values {
			walkExpr(value, fn)
		}
		walkStmt(e.Query, fn)
	case *BetweenExpr:
		walkExpr(e.Expr, fn)
		walkExpr(e.Low, fn)
		walkExpr(e.High, fn)
	case *IsNullExpr:
		walkExpr(e.Expr, fn)
	case *LikeExpr:
		walkExpr(e.Expr, fn)
		walkExpr(e.Pattern, fn)
	case *ParenExpr:
		walkExpr(e.Expr, fn)
	case *SubqueryExpr:
		walkStmt(e.Select, fn)
	case *ExistsExpr:
		walkStmt(e.Select, fn)
	}
}

// NodeCount returns the number of AST nodes in the statement. It is the
// complexity measure coarse query budgets are enforced against.
func NodeCount(stmt *SelectStmt) int {
	count := 0
	Inspect(stmt, func(any) bool {
		count++
		return true
	})
	return count
}

// JoinCount returns the number of join clauses anywhere in the
// statement, comma joins included.
func JoinCount(stmt *SelectStmt) int {
	count := 0
	Inspect(stmt, func(node any) bool {
		if _, ok := node.(*Join); ok {
			count++
		}
		return true
	})
	return count
}

// SubqueryDepth returns the deepest nesting level of SELECT statements.
// A statement with no subqueries has depth 1. CTE bodies, derived
// tables, and subquery expressions all add a level.
func SubqueryDepth(stmt *SelectStmt) int {
	return stmtDepth(stmt)
}

func stmtDepth(stmt *SelectStmt) int {
	if stmt == nil {
		return 0
	}
	deepest := 0
	if stmt.With != nil {
		for _, cte := range stmt.With.CTEs {
			if d := stmtDepth(cte.Select); d > deepest {
				deepest = d
			}
		}
	}
	if d := bodyDepth(stmt.Body); d > deepest {
		deepest = d
	}
	return 1 + deepest
}

func bodyDepth(body *SelectBody) int {
	if body == nil {
		return 0
	}
	deepest := coreDepth(body.Left)
	if d := bodyDepth(body.Right); d > deepest {
		deepest = d
	}
	return deepest
}

func coreDepth(core *SelectCore) int {
	if core == nil {
		return 0
	}
	deepest := 0

	track := func(expr Expr) {
		walkExpr(expr, func(node any) bool {
			switch n := node.(type) {
			case *SubqueryExpr:
				if d := stmtDepth(n.Select); d > deepest {
					deepest = d
				}
				return false
			case *ExistsExpr:
				if d := stmtDepth(n.Select); d > deepest {
					deepest = d
				}
				return false
			case *InExpr:
				if d := stmtDepth(n.Query); d > deepest {
					deepest = d
				}
				return true
			}
			return true
		})
	}

	for _, item := range core.Columns {
		track(item.Expr)
	}
	if core.From != nil {
		refs := []TableRef{core.From.Source}
		for _, join := range core.From.Joins {
			refs = append(refs, join.Right)
			track(join.Condition)
		}
		for _, ref := range refs {
			if derived, ok := ref.(*DerivedTable); ok {
				if d := stmtDepth(derived.Select); d > deepest {
					deepest = d
				}
			}
		}
	}
	track(core.Where)
	for _, expr := range core.GroupBy {
		track(expr)
	}
	track(core.Having)
	for _, item := range core.OrderBy {
		track(item.Expr)
	}

	return deepest
}
