package sqlparse

// Statement parsing: WITH clause, CTEs, SELECT body, SELECT list,
// ORDER BY, LIMIT.

func (p *parser) parseStatement() *SelectStmt {
	stmt := &SelectStmt{}

	if p.checkDisallowedVerb() {
		p.skipToEOF()
		return stmt
	}

	if p.check(tokenWith) {
		stmt.With = p.parseWithClause()
	}
	stmt.Body = p.parseSelectBody()

	// ORDER BY and LIMIT belong to the whole statement, not to the last
	// core of a set-operation chain. They are stored on the first core,
	// whose projection names the combined result.
	if stmt.Body != nil && stmt.Body.Left != nil {
		if p.match(tokenOrder) {
			p.expect(tokenBy)
			stmt.Body.Left.OrderBy = p.parseOrderByList()
		}
		if p.match(tokenLimit) {
			stmt.Body.Left.Limit = p.parseExpression()

			if p.match(tokenOffset) {
				stmt.Body.Left.Offset = p.parseExpression()
			}
		}
	}

	return stmt
}

// skipToEOF abandons the remaining input after a fatal classification.
func (p *parser) skipToEOF() {
	for !p.check(tokenEOF) {
		p.nextToken()
	}
}

func (p *parser) parseWithClause() *WithClause {
	p.expect(tokenWith)
	with := &WithClause{}

	if p.match(tokenRecursive) {
		with.Recursive = true
	}

	for {
		cte := p.parseCTE()
		with.CTEs = append(with.CTEs, cte)

		if !p.match(tokenComma) {
			break
		}
	}

	return with
}

func (p *parser) parseCTE() *CTE {
	cte := &CTE{}

	if !p.check(tokenIdent) {
		p.addError("expected CTE name")
		return cte
	}
	cte.Name = p.token.literal
	p.nextToken()

	p.expect(tokenAs)
	p.expect(tokenLParen)
	cte.Select = p.parseStatement()
	p.expect(tokenRParen)

	return cte
}

func (p *parser) parseSelectBody() *SelectBody {
	body := &SelectBody{}
	body.Left = p.parseSelectCore()

	if p.check(tokenUnion) || p.check(tokenIntersect) || p.check(tokenExcept) {
		switch p.token.typ {
		case tokenUnion:
			p.nextToken()
			if p.match(tokenAll) {
				body.Op = SetOpUnionAll
				body.All = true
			} else {
				body.Op = SetOpUnion
				p.match(tokenDistinct)
			}
		case tokenIntersect:
			p.nextToken()
			body.Op = SetOpIntersect
			p.match(tokenAll)
		case tokenExcept:
			p.nextToken()
			body.Op = SetOpExcept
			p.match(tokenAll)
		}

		body.Right = p.parseSelectBody()
	}

	return body
}

func (p *parser) parseSelectCore() *SelectCore {
	p.expect(tokenSelect)
	core := &SelectCore{}

	if p.match(tokenDistinct) {
		core.Distinct = true
	} else {
		p.match(tokenAll)
	}

	core.Columns = p.parseSelectList()

	if p.match(tokenFrom) {
		core.From = p.parseFromClause()
	}

	if p.match(tokenWhere) {
		core.Where = p.parseExpression()
	}

	if p.match(tokenGroup) {
		p.expect(tokenBy)
		core.GroupBy = p.parseExpressionList()
	}

	if p.match(tokenHaving) {
		core.Having = p.parseExpression()
	}

	return core
}

func (p *parser) parseSelectList() []SelectItem {
	var items []SelectItem

	for {
		item := p.parseSelectItem()
		items = append(items, item)

		if !p.match(tokenComma) {
			break
		}
	}

	return items
}

func (p *parser) parseSelectItem() SelectItem {
	item := SelectItem{}

	if p.check(tokenStar) {
		item.Star = true
		p.nextToken()
		return item
	}

	// table.* needs two tokens of lookahead, no rollback required.
	if p.check(tokenIdent) && p.checkPeek(tokenDot) && p.checkPeek2(tokenStar) {
		item.TableStar = p.token.literal
		p.nextToken()
		p.nextToken()
		p.nextToken()
		return item
	}

	item.Expr = p.parseExpression()

	if p.match(tokenAs) {
		if p.check(tokenIdent) {
			item.Alias = p.token.literal
			p.nextToken()
		} else {
			p.addError("expected alias after AS")
		}
	} else if p.check(tokenIdent) && !p.isAliasBlocked(p.token) {
		item.Alias = p.token.literal
		p.nextToken()
	}

	return item
}

func (p *parser) parseOrderByList() []OrderByItem {
	var items []OrderByItem

	for {
		item := OrderByItem{}
		item.Expr = p.parseExpression()

		if p.match(tokenAsc) {
			item.Desc = false
		} else if p.match(tokenDesc) {
			item.Desc = true
		}

		items = append(items, item)

		if !p.match(tokenComma) {
			break
		}
	}

	return items
}

func (p *parser) parseExpressionList() []Expr {
	var exprs []Expr

	for {
		expr := p.parseExpression()
		exprs = append(exprs, expr)

		if !p.match(tokenComma) {
			break
		}
	}

	return exprs
}
