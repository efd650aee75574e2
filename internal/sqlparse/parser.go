// Package sqlparse parses the restricted SQL dialect candidate queries
// are written in. The surface is deliberately small: a single SELECT
// statement with optional CTEs, set operations, joins, and scalar
// expressions. Anything else is rejected before it can reach the store.
//
// Grammar overview:
//
//	statement     → [WITH [RECURSIVE] cte_list] select_body
//	                [ORDER BY order_list] [LIMIT expr [OFFSET expr]] [";"]
//	cte_list      → cte ("," cte)*
//	cte           → identifier AS "(" statement ")"
//	select_body   → select_core [(UNION|INTERSECT|EXCEPT) [ALL] select_body]
//	select_core   → SELECT [DISTINCT|ALL] select_list
//	                [FROM from_clause] [WHERE expr]
//	                [GROUP BY expr_list] [HAVING expr]
package sqlparse

import (
	"fmt"
	"strings"
)

// ParseError reports malformed SQL with a source position.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error at line %d column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// DisallowedError reports SQL that parsed as something other than a
// single SELECT statement.
type DisallowedError struct {
	Reason string
}

func (e *DisallowedError) Error() string {
	return "disallowed statement: " + e.Reason
}

// disallowedVerbs are leading keywords that identify non-SELECT
// statements. Classifying them separately from syntax errors lets the
// caller report them as policy rejections instead of malformed SQL.
var disallowedVerbs = map[string]struct{}{
	"insert":   {},
	"update":   {},
	"delete":   {},
	"drop":     {},
	"alter":    {},
	"create":   {},
	"truncate": {},
	"grant":    {},
	"revoke":   {},
	"merge":    {},
	"copy":     {},
	"attach":   {},
	"pragma":   {},
	"vacuum":   {},
	"call":     {},
	"set":      {},
	"begin":    {},
	"commit":   {},
	"rollback": {},
	"explain":  {},
}

type parser struct {
	lexer  *lexer
	token  token
	peek   token
	peek2  token
	errors []error
}

func newParser(sql string) *parser {
	p := &parser{lexer: newLexer(sql)}
	// Fill current, peek, and peek2.
	p.nextToken()
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single SELECT statement. It returns *DisallowedError
// for non-SELECT statements and statement batches, and *ParseError for
// malformed SQL.
func Parse(sql string) (*SelectStmt, error) {
	p := newParser(sql)
	stmt := p.parseStatement()

	// Trailing semicolons are tolerated; a second statement is not.
	// Leftover tokens without a semicolon boundary are plain syntax
	// errors, not a statement batch.
	sawSemicolon := false
	for p.match(tokenSemicolon) {
		sawSemicolon = true
	}
	if !p.check(tokenEOF) && len(p.errors) == 0 {
		if sawSemicolon {
			return nil, &DisallowedError{Reason: "multiple statements"}
		}
		return nil, &ParseError{
			Pos:     p.token.pos,
			Message: fmt.Sprintf("unexpected %s after end of statement", p.token.typ),
		}
	}

	if len(p.errors) > 0 {
		return nil, p.errors[0]
	}
	return stmt, nil
}

// checkDisallowedVerb classifies statements that begin with a known
// non-SELECT verb before general parsing turns them into a less useful
// syntax error. It applies wherever a statement can start, so a
// disallowed verb inside a CTE or subquery is caught too.
func (p *parser) checkDisallowedVerb() bool {
	if !p.check(tokenIdent) {
		return false
	}
	if _, ok := disallowedVerbs[strings.ToLower(p.token.literal)]; ok {
		p.errors = append(p.errors, &DisallowedError{Reason: strings.ToLower(p.token.literal) + " statement"})
		return true
	}
	return false
}

// ---------- Token helpers ----------

func (p *parser) nextToken() {
	p.token = p.peek
	p.peek = p.peek2
	p.peek2 = p.lexer.next()
}

func (p *parser) check(t tokenType) bool {
	return p.token.typ == t
}

func (p *parser) checkPeek(t tokenType) bool {
	return p.peek.typ == t
}

func (p *parser) checkPeek2(t tokenType) bool {
	return p.peek2.typ == t
}

func (p *parser) match(t tokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	return false
}

func (p *parser) expect(t tokenType) bool {
	if p.check(t) {
		p.nextToken()
		return true
	}
	p.addError(fmt.Sprintf("unexpected %s, expected %s", p.token.typ, t))
	return false
}

func (p *parser) addError(msg string) {
	p.errors = append(p.errors, &ParseError{Pos: p.token.pos, Message: msg})
}

// ---------- Keyword helpers ----------

// isAliasBlocked reports whether the token cannot serve as a bare alias.
func (p *parser) isAliasBlocked(tok token) bool {
	switch tok.typ {
	case tokenFrom, tokenWhere, tokenGroup, tokenHaving, tokenOrder,
		tokenLimit, tokenOffset, tokenUnion, tokenIntersect, tokenExcept,
		tokenLeft, tokenRight, tokenInner, tokenOuter, tokenFull,
		tokenCross, tokenJoin, tokenOn:
		return true
	}
	return false
}
