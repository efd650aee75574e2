package validate

import (
	"strings"

	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlparse"
)

// The type pass is deliberately permissive where it cannot know better:
// an expression whose type cannot be derived statically (function
// results, open relations, NULL) binds with an unknown type and is
// exempt from type claims. Only provably inconsistent comparisons and
// operations are rejected.

var unknownType = columnType{}

func known(typ schema.ColumnType) columnType {
	return columnType{typ: typ, known: true}
}

func (c *checker) typeOf(expr sqlparse.Expr, s *scope) columnType {
	if c.rejection != nil || expr == nil {
		return unknownType
	}

	switch e := expr.(type) {
	case *sqlparse.Literal:
		return literalType(e)

	case *sqlparse.ColumnRef:
		return c.typeOfColumn(e, s)

	case *sqlparse.BinaryExpr:
		return c.typeOfBinary(e, s)

	case *sqlparse.UnaryExpr:
		inner := c.typeOf(e.Expr, s)
		if e.Op == "NOT" {
			if inner.known && inner.typ != schema.TypeBoolean {
				return c.fail(KindTypeMismatch, "NOT applied to %s expression", inner.typ)
			}
			return known(schema.TypeBoolean)
		}
		if inner.known && !isNumeric(inner.typ) {
			return c.fail(KindTypeMismatch, "unary %s applied to %s expression", e.Op, inner.typ)
		}
		return inner

	case *sqlparse.FuncCall:
		return c.typeOfFunc(e, s)

	case *sqlparse.CaseExpr:
		return c.typeOfCase(e, s)

	case *sqlparse.CastExpr:
		c.typeOf(e.Expr, s)
		if typ, err := schema.ParseColumnType(e.TypeName); err == nil {
			return known(typ)
		}
		return unknownType

	case *sqlparse.InExpr:
		target := c.typeOf(e.Expr, s)
		for _, value := range e.Values {
			vt := c.typeOf(value, s)
			if c.rejection != nil {
				return unknownType
			}
			if !comparableTypes(target, vt) {
				return c.fail(KindTypeMismatch, "IN list value of type %s compared to %s expression", vt.typ, target.typ)
			}
		}
		if e.Query != nil {
			c.checkStmt(e.Query, s)
		}
		return known(schema.TypeBoolean)

	case *sqlparse.BetweenExpr:
		target := c.typeOf(e.Expr, s)
		low := c.typeOf(e.Low, s)
		high := c.typeOf(e.High, s)
		if c.rejection != nil {
			return unknownType
		}
		if !comparableTypes(target, low) || !comparableTypes(target, high) {
			return c.fail(KindTypeMismatch, "BETWEEN bounds do not match %s expression", target.typ)
		}
		return known(schema.TypeBoolean)

	case *sqlparse.IsNullExpr:
		c.typeOf(e.Expr, s)
		return known(schema.TypeBoolean)

	case *sqlparse.LikeExpr:
		target := c.typeOf(e.Expr, s)
		if target.known && target.typ != schema.TypeText {
			return c.fail(KindTypeMismatch, "LIKE applied to %s expression", target.typ)
		}
		pattern := c.typeOf(e.Pattern, s)
		if pattern.known && pattern.typ != schema.TypeText {
			return c.fail(KindTypeMismatch, "LIKE pattern must be text, got %s", pattern.typ)
		}
		return known(schema.TypeBoolean)

	case *sqlparse.ParenExpr:
		return c.typeOf(e.Expr, s)

	case *sqlparse.SubqueryExpr:
		inner := c.checkStmt(e.Select, s)
		if c.rejection != nil {
			return unknownType
		}
		rel := c.outputRelation(e.Select, inner, "")
		if !rel.open && len(rel.columns) == 1 {
			for _, ct := range rel.columns {
				return ct
			}
		}
		return unknownType

	case *sqlparse.ExistsExpr:
		c.checkStmt(e.Select, s)
		return known(schema.TypeBoolean)
	}

	return unknownType
}

func literalType(e *sqlparse.Literal) columnType {
	switch e.Type {
	case sqlparse.LiteralNumber:
		if strings.ContainsAny(e.Value, ".eE") {
			return known(schema.TypeReal)
		}
		return known(schema.TypeInteger)
	case sqlparse.LiteralString:
		return known(schema.TypeText)
	case sqlparse.LiteralBool:
		return known(schema.TypeBoolean)
	default: // NULL
		return unknownType
	}
}

func (c *checker) typeOfColumn(ref *sqlparse.ColumnRef, s *scope) columnType {
	if ref.Table != "" {
		ct, res := s.resolveQualified(ref.Table, ref.Column)
		if res == notFound {
			if _, ok := s.lookupRelation(ref.Table); !ok {
				return c.fail(KindUnknownTable, "unknown table or alias %q", ref.Table)
			}
			return c.fail(KindUnknownColumn, "column %q does not exist in %q", schema.Normalize(ref.Column), schema.Normalize(ref.Table))
		}
		return ct
	}

	ct, res := s.resolveColumn(ref.Column)
	switch res {
	case notFound:
		return c.fail(KindUnknownColumn, "column %q does not exist", schema.Normalize(ref.Column))
	case ambiguous:
		return c.fail(KindUnknownColumn, "column %q is ambiguous", schema.Normalize(ref.Column))
	}
	return ct
}

func (c *checker) typeOfBinary(e *sqlparse.BinaryExpr, s *scope) columnType {
	left := c.typeOf(e.Left, s)
	right := c.typeOf(e.Right, s)
	if c.rejection != nil {
		return unknownType
	}

	switch e.Op {
	case "AND", "OR":
		if left.known && left.typ != schema.TypeBoolean {
			return c.fail(KindTypeMismatch, "%s operand is %s, expected boolean", e.Op, left.typ)
		}
		if right.known && right.typ != schema.TypeBoolean {
			return c.fail(KindTypeMismatch, "%s operand is %s, expected boolean", e.Op, right.typ)
		}
		return known(schema.TypeBoolean)

	case "=", "!=", "<>", "<", ">", "<=", ">=":
		if !comparableTypes(left, right) {
			return c.fail(KindTypeMismatch, "cannot compare %s to %s", left.typ, right.typ)
		}
		return known(schema.TypeBoolean)

	case "||":
		if left.known && left.typ != schema.TypeText {
			return c.fail(KindTypeMismatch, "|| operand is %s, expected text", left.typ)
		}
		if right.known && right.typ != schema.TypeText {
			return c.fail(KindTypeMismatch, "|| operand is %s, expected text", right.typ)
		}
		return known(schema.TypeText)

	case "+", "-":
		// DATE plus or minus an integer shifts the date.
		if left.known && right.known && left.typ == schema.TypeDate && right.typ == schema.TypeInteger {
			return known(schema.TypeDate)
		}
		return c.arithmeticType(e.Op, left, right)

	default: // *, /, %
		return c.arithmeticType(e.Op, left, right)
	}
}

func (c *checker) arithmeticType(op string, left, right columnType) columnType {
	if left.known && !isNumeric(left.typ) {
		return c.fail(KindTypeMismatch, "%s operand is %s, expected a number", op, left.typ)
	}
	if right.known && !isNumeric(right.typ) {
		return c.fail(KindTypeMismatch, "%s operand is %s, expected a number", op, right.typ)
	}
	if !left.known || !right.known {
		return unknownType
	}
	if left.typ == schema.TypeReal || right.typ == schema.TypeReal {
		return known(schema.TypeReal)
	}
	return known(schema.TypeInteger)
}

func (c *checker) typeOfFunc(e *sqlparse.FuncCall, s *scope) columnType {
	var argTypes []columnType
	for _, arg := range e.Args {
		argTypes = append(argTypes, c.typeOf(arg, s))
		if c.rejection != nil {
			return unknownType
		}
	}

	switch e.Name {
	case "count":
		return known(schema.TypeInteger)
	case "sum", "avg":
		if len(argTypes) == 1 && argTypes[0].known && !isNumeric(argTypes[0].typ) {
			return c.fail(KindTypeMismatch, "%s requires a numeric argument, got %s", strings.ToUpper(e.Name), argTypes[0].typ)
		}
		if e.Name == "avg" {
			return known(schema.TypeReal)
		}
		if len(argTypes) == 1 {
			return argTypes[0]
		}
		return unknownType
	case "min", "max":
		if len(argTypes) == 1 {
			return argTypes[0]
		}
		return unknownType
	case "lower", "upper", "trim", "concat", "substr", "substring":
		return known(schema.TypeText)
	case "abs", "round", "floor", "ceil", "ceiling":
		if len(argTypes) >= 1 && argTypes[0].known && !isNumeric(argTypes[0].typ) {
			return c.fail(KindTypeMismatch, "%s requires a numeric argument, got %s", strings.ToUpper(e.Name), argTypes[0].typ)
		}
		return unknownType
	case "length", "char_length":
		return known(schema.TypeInteger)
	default:
		return unknownType
	}
}

func (c *checker) typeOfCase(e *sqlparse.CaseExpr, s *scope) columnType {
	operand := unknownType
	if e.Operand != nil {
		operand = c.typeOf(e.Operand, s)
	}

	result := unknownType
	for _, when := range e.Whens {
		cond := c.typeOf(when.Condition, s)
		if c.rejection != nil {
			return unknownType
		}
		if e.Operand != nil {
			if !comparableTypes(operand, cond) {
				return c.fail(KindTypeMismatch, "CASE operand of type %s compared to %s", operand.typ, cond.typ)
			}
		} else if cond.known && cond.typ != schema.TypeBoolean {
			return c.fail(KindTypeMismatch, "WHEN condition is %s, expected boolean", cond.typ)
		}

		branch := c.typeOf(when.Result, s)
		if c.rejection != nil {
			return unknownType
		}
		result = mergeBranchTypes(result, branch)
	}
	if e.Else != nil {
		result = mergeBranchTypes(result, c.typeOf(e.Else, s))
	}
	return result
}

// mergeBranchTypes keeps the branch type when all known branches agree,
// and degrades to unknown otherwise.
func mergeBranchTypes(a, b columnType) columnType {
	if !a.known {
		return b
	}
	if !b.known || a.typ == b.typ {
		return a
	}
	return unknownType
}

func (c *checker) requireBoolean(expr sqlparse.Expr, s *scope, where string) {
	if c.rejection != nil || expr == nil {
		return
	}
	ct := c.typeOf(expr, s)
	if c.rejection != nil {
		return
	}
	if ct.known && ct.typ != schema.TypeBoolean {
		c.fail(KindTypeMismatch, "%s is %s, expected boolean", where, ct.typ)
	}
}

func (c *checker) requireNumericIfKnown(expr sqlparse.Expr, s *scope, where string) {
	if c.rejection != nil || expr == nil {
		return
	}
	ct := c.typeOf(expr, s)
	if c.rejection != nil {
		return
	}
	if ct.known && !isNumeric(ct.typ) {
		c.fail(KindTypeMismatch, "%s is %s, expected a number", where, ct.typ)
	}
}

func isNumeric(typ schema.ColumnType) bool {
	return typ == schema.TypeInteger || typ == schema.TypeReal
}

// comparableTypes reports whether two expression types may appear on
// opposite sides of a comparison. Unknown types compare freely, numeric
// types compare with each other, and text compares with dates because
// date literals arrive as strings.
func comparableTypes(a, b columnType) bool {
	if !a.known || !b.known {
		return true
	}
	if a.typ == b.typ {
		return true
	}
	if isNumeric(a.typ) && isNumeric(b.typ) {
		return true
	}
	if (a.typ == schema.TypeText && b.typ == schema.TypeDate) ||
		(a.typ == schema.TypeDate && b.typ == schema.TypeText) {
		return true
	}
	return false
}
