package sqlparse

import "strings"

// Expression parsing by descending precedence:
//
//	expression → or
//	or         → and (OR and)*
//	and        → not (AND not)*
//	not        → [NOT] comparison
//	comparison → additive [comparison_op additive | IS [NOT] NULL |
//	             [NOT] BETWEEN additive AND additive |
//	             [NOT] IN "(" (expr_list | statement) ")" |
//	             [NOT] (LIKE|ILIKE) additive]
//	additive   → multiplicative (("+"|"-"|"||") multiplicative)*
//	multiplicative → unary (("*"|"/"|"%") unary)*
//	unary      → ["-"|"+"] primary
//	primary    → literal | column_ref | function_call | CASE | CAST |
//	             EXISTS | "(" (expression | statement) ")"

func (p *parser) parseExpression() Expr {
	return p.parseOr()
}

func (p *parser) parseOr() Expr {
	left := p.parseAnd()
	for p.match(tokenOr) {
		right := p.parseAnd()
		left = &BinaryExpr{Left: left, Op: "OR", Right: right}
	}
	return left
}

func (p *parser) parseAnd() Expr {
	left := p.parseNot()
	for p.match(tokenAnd) {
		right := p.parseNot()
		left = &BinaryExpr{Left: left, Op: "AND", Right: right}
	}
	return left
}

func (p *parser) parseNot() Expr {
	if p.match(tokenNot) {
		if p.check(tokenExists) {
			return p.parseExistsExpr(true)
		}
		return &UnaryExpr{Op: "NOT", Expr: p.parseNot()}
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() Expr {
	left := p.parseAdditive()

	switch p.token.typ {
	case tokenEq, tokenNe, tokenLt, tokenGt, tokenLe, tokenGe:
		op := p.token.literal
		p.nextToken()
		right := p.parseAdditive()
		return &BinaryExpr{Left: left, Op: op, Right: right}

	case tokenIs:
		p.nextToken()
		not := p.match(tokenNot)
		p.expect(tokenNull)
		return &IsNullExpr{Expr: left, Not: not}

	case tokenBetween:
		return p.parseBetween(left, false)

	case tokenIn:
		return p.parseIn(left, false)

	case tokenLike:
		p.nextToken()
		return &LikeExpr{Expr: left, Pattern: p.parseAdditive()}

	case tokenIlike:
		p.nextToken()
		return &LikeExpr{Expr: left, Pattern: p.parseAdditive(), ILike: true}

	case tokenNot:
		// expr NOT BETWEEN / NOT IN / NOT LIKE
		switch p.peek.typ {
		case tokenBetween:
			p.nextToken()
			return p.parseBetween(left, true)
		case tokenIn:
			p.nextToken()
			return p.parseIn(left, true)
		case tokenLike:
			p.nextToken()
			p.nextToken()
			return &LikeExpr{Expr: left, Not: true, Pattern: p.parseAdditive()}
		case tokenIlike:
			p.nextToken()
			p.nextToken()
			return &LikeExpr{Expr: left, Not: true, Pattern: p.parseAdditive(), ILike: true}
		}
	}

	return left
}

func (p *parser) parseBetween(left Expr, not bool) Expr {
	p.expect(tokenBetween)
	low := p.parseAdditive()
	p.expect(tokenAnd)
	high := p.parseAdditive()
	return &BetweenExpr{Expr: left, Not: not, Low: low, High: high}
}

func (p *parser) parseIn(left Expr, not bool) Expr {
	p.expect(tokenIn)
	p.expect(tokenLParen)

	in := &InExpr{Expr: left, Not: not}
	if p.check(tokenSelect) || p.check(tokenWith) {
		in.Query = p.parseStatement()
	} else {
		in.Values = p.parseExpressionList()
	}
	p.expect(tokenRParen)
	return in
}

func (p *parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for {
		switch p.token.typ {
		case tokenPlus, tokenMinus, tokenConcat:
			op := p.token.literal
			p.nextToken()
			right := p.parseMultiplicative()
			left = &BinaryExpr{Left: left, Op: op, Right: right}
		default:
			return left
		}
	}
}

func (p *parser) parseMultiplicative() Expr {
	left := p.parseUnary()
	for {
		switch p.token.typ {
		case tokenStar, tokenSlash, tokenPercent:
			op := p.token.literal
			p.nextToken()
			right := p.parseUnary()
			left = &BinaryExpr{Left: left, Op: op, Right: right}
		default:
			return left
		}
	}
}

func (p *parser) parseUnary() Expr {
	if p.check(tokenMinus) || p.check(tokenPlus) {
		op := p.token.literal
		p.nextToken()
		return &UnaryExpr{Op: op, Expr: p.parseUnary()}
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() Expr {
	switch p.token.typ {
	case tokenNumber:
		lit := &Literal{Type: LiteralNumber, Value: p.token.literal}
		p.nextToken()
		return lit

	case tokenString:
		lit := &Literal{Type: LiteralString, Value: p.token.literal}
		p.nextToken()
		return lit

	case tokenTrue, tokenFalse:
		lit := &Literal{Type: LiteralBool, Value: strings.ToLower(p.token.literal)}
		p.nextToken()
		return lit

	case tokenNull:
		p.nextToken()
		return &Literal{Type: LiteralNull, Value: "NULL"}

	case tokenCase:
		return p.parseCaseExpr()

	case tokenCast:
		return p.parseCastExpr()

	case tokenExists:
		return p.parseExistsExpr(false)

	case tokenLParen:
		return p.parseParenExpr()

	case tokenIdent:
		return p.parseIdentExpr()

	default:
		p.addError("unexpected " + p.token.typ.String() + " in expression")
		p.nextToken()
		return nil
	}
}

// parseIdentExpr parses a column reference or a function call.
func (p *parser) parseIdentExpr() Expr {
	name := p.token.literal

	// Function call.
	if p.checkPeek(tokenLParen) {
		p.nextToken()
		return p.parseFuncCall(name)
	}

	// Qualified column: table.column
	if p.checkPeek(tokenDot) {
		p.nextToken()
		p.nextToken()
		if !p.check(tokenIdent) {
			p.addError("expected column name after '.'")
			return &ColumnRef{Table: name}
		}
		ref := &ColumnRef{Table: name, Column: p.token.literal}
		p.nextToken()
		return ref
	}

	p.nextToken()
	return &ColumnRef{Column: name}
}

func (p *parser) parseFuncCall(name string) Expr {
	p.expect(tokenLParen)
	call := &FuncCall{Name: strings.ToLower(name)}

	if p.match(tokenStar) {
		call.Star = true
		p.expect(tokenRParen)
		return call
	}

	if p.match(tokenDistinct) {
		call.Distinct = true
	}

	if !p.check(tokenRParen) {
		call.Args = p.parseExpressionList()
	}
	p.expect(tokenRParen)
	return call
}

func (p *parser) parseCaseExpr() Expr {
	p.expect(tokenCase)
	caseExpr := &CaseExpr{}

	if !p.check(tokenWhen) {
		caseExpr.Operand = p.parseExpression()
	}

	for p.match(tokenWhen) {
		when := WhenClause{}
		when.Condition = p.parseExpression()
		p.expect(tokenThen)
		when.Result = p.parseExpression()
		caseExpr.Whens = append(caseExpr.Whens, when)
	}

	if p.match(tokenElse) {
		caseExpr.Else = p.parseExpression()
	}

	p.expect(tokenEnd)
	return caseExpr
}

func (p *parser) parseCastExpr() Expr {
	p.expect(tokenCast)
	p.expect(tokenLParen)

	cast := &CastExpr{}
	cast.Expr = p.parseExpression()

	p.expect(tokenAs)
	cast.TypeName = p.parseTypeName()

	p.expect(tokenRParen)
	return cast
}

func (p *parser) parseTypeName() string {
	if !p.check(tokenIdent) {
		p.addError("expected type name")
		return ""
	}

	typeName := p.token.literal
	p.nextToken()

	// Parameterized types like VARCHAR(255) or DECIMAL(10, 2).
	if p.match(tokenLParen) {
		typeName += "("
		for {
			if p.check(tokenNumber) || p.check(tokenIdent) {
				typeName += p.token.literal
				p.nextToken()
			}
			if !p.match(tokenComma) {
				break
			}
			typeName += ", "
		}
		p.expect(tokenRParen)
		typeName += ")"
	}

	return typeName
}

// parseParenExpr parses a parenthesized expression or a scalar subquery.
func (p *parser) parseParenExpr() Expr {
	p.expect(tokenLParen)

	if p.check(tokenSelect) || p.check(tokenWith) {
		subquery := &SubqueryExpr{Select: p.parseStatement()}
		p.expect(tokenRParen)
		return subquery
	}

	expr := p.parseExpression()
	p.expect(tokenRParen)
	return &ParenExpr{Expr: expr}
}

func (p *parser) parseExistsExpr(not bool) Expr {
	p.expect(tokenExists)
	p.expect(tokenLParen)
	exists := &ExistsExpr{Not: not, Select: p.parseStatement()}
	p.expect(tokenRParen)
	return exists
}
