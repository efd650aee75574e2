package sqlparse

// Expr is any expression node.
type Expr interface {
	exprNode()
}

// TableRef is a source in a FROM clause.
type TableRef interface {
	tableRefNode()
}

// SelectStmt is a complete statement with an optional WITH clause.
type SelectStmt struct {
	With *WithClause
	Body *SelectBody
}

// WithClause holds the CTE list.
type WithClause struct {
	Recursive bool
	CTEs      []*CTE
}

// CTE is a single common table expression.
type CTE struct {
	Name   string
	Select *SelectStmt
}

// SelectBody chains SELECT cores through set operations.
type SelectBody struct {
	Left  *SelectCore
	Op    SetOpType
	All   bool
	Right *SelectBody
}

type SetOpType string

const (
	SetOpNone      SetOpType = ""
	SetOpUnion     SetOpType = "UNION"
	SetOpUnionAll  SetOpType = "UNION ALL"
	SetOpIntersect SetOpType = "INTERSECT"
	SetOpExcept    SetOpType = "EXCEPT"
)

// SelectCore is a single SELECT clause.
type SelectCore struct {
	Distinct bool
	Columns  []SelectItem
	From     *FromClause
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	OrderBy  []OrderByItem
	Limit    Expr
	Offset   Expr
}

// SelectItem is one projection in the SELECT list.
type SelectItem struct {
	Star      bool   // SELECT *
	TableStar string // SELECT t.*
	Expr      Expr
	Alias     string
}

type FromClause struct {
	Source TableRef
	Joins  []*Join
}

type Join struct {
	Type      JoinType
	Right     TableRef
	Condition Expr
}

type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
	JoinComma JoinType = ","
)

type OrderByItem struct {
	Expr Expr
	Desc bool
}

// TableName references a base table or CTE, optionally aliased.
type TableName struct {
	Name  string
	Alias string
}

func (*TableName) tableRefNode() {}

// DerivedTable is a subquery in a FROM clause.
type DerivedTable struct {
	Select *SelectStmt
	Alias  string
}

func (*DerivedTable) tableRefNode() {}

// ColumnRef is a possibly qualified column reference.
type ColumnRef struct {
	Table  string
	Column string
}

func (*ColumnRef) exprNode() {}

type Literal struct {
	Type  LiteralType
	Value string
}

func (*Literal) exprNode() {}

type LiteralType int

const (
	LiteralNumber LiteralType = iota
	LiteralString
	LiteralBool
	LiteralNull
)

type BinaryExpr struct {
	Left  Expr
	Op    string
	Right Expr
}

func (*BinaryExpr) exprNode() {}

type UnaryExpr struct {
	Op   string // -, +, NOT
	Expr Expr
}

func (*UnaryExpr) exprNode() {}

type FuncCall struct {
	Name     string
	Distinct bool
	Args     []Expr
	Star     bool // COUNT(*)
}

func (*FuncCall) exprNode() {}

type CaseExpr struct {
	Operand Expr
	Whens   []WhenClause
	Else    Expr
}

func (*CaseExpr) exprNode() {}

type WhenClause struct {
	Condition Expr
	Result    Expr
}

type CastExpr struct {
	Expr     Expr
	TypeName string
}

func (*CastExpr) exprNode() {}

type InExpr struct {
	Expr   Expr
	Not    bool
	Values []Expr
	Query  *SelectStmt
}

func (*InExpr) exprNode() {}

type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

func (*BetweenExpr) exprNode() {}

type IsNullExpr struct {
	Expr Expr
	Not  bool
}

func (*IsNullExpr) exprNode() {}

type LikeExpr struct {
	Expr    Expr
	Not     bool
	Pattern Expr
	ILike   bool
}

func (*LikeExpr) exprNode() {}

type ParenExpr struct {
	Expr Expr
}

func (*ParenExpr) exprNode() {}

// SubqueryExpr is a subquery used as an expression.
type SubqueryExpr struct {
	Select *SelectStmt
}

func (*SubqueryExpr) exprNode() {}

type ExistsExpr struct {
	Not    bool
	Select *SelectStmt
}

func (*ExistsExpr) exprNode() {}
