package sqlparse

// FROM clause parsing: table references, derived tables, JOINs.
//
// Grammar:
//
//	from_clause   → table_ref (join)*
//	table_ref     → table_name | derived_table
//	table_name    → identifier [AS] [identifier]
//	derived_table → "(" statement ")" [AS] identifier
//	join          → join_type JOIN table_ref [ON expr] | "," table_ref
//	join_type     → [INNER] | LEFT [OUTER] | RIGHT [OUTER] | FULL [OUTER] | CROSS

func (p *parser) parseFromClause() *FromClause {
	from := &FromClause{}
	from.Source = p.parseTableRef()

	for {
		join := p.parseJoin()
		if join == nil {
			break
		}
		from.Joins = append(from.Joins, join)
	}

	return from
}

func (p *parser) parseTableRef() TableRef {
	if p.check(tokenLParen) {
		return p.parseDerivedTable()
	}
	return p.parseTableName()
}

func (p *parser) parseTableName() *TableName {
	table := &TableName{}

	if !p.check(tokenIdent) {
		p.addError("expected table name")
		return table
	}
	table.Name = p.token.literal
	p.nextToken()

	// Schema qualifiers are not part of the dialect; the catalog is flat.
	if p.check(tokenDot) {
		p.addError("qualified table names are not supported")
		return table
	}

	if p.match(tokenAs) {
		if p.check(tokenIdent) {
			table.Alias = p.token.literal
			p.nextToken()
		}
	} else if p.check(tokenIdent) && !p.isAliasBlocked(p.token) {
		table.Alias = p.token.literal
		p.nextToken()
	}

	return table
}

func (p *parser) parseDerivedTable() *DerivedTable {
	p.expect(tokenLParen)
	derived := &DerivedTable{}
	derived.Select = p.parseStatement()
	p.expect(tokenRParen)

	if p.match(tokenAs) {
		if p.check(tokenIdent) {
			derived.Alias = p.token.literal
			p.nextToken()
		}
	} else if p.check(tokenIdent) {
		derived.Alias = p.token.literal
		p.nextToken()
	}

	if derived.Alias == "" {
		p.addError("derived table requires an alias")
	}

	return derived
}

func (p *parser) parseJoin() *Join {
	join := &Join{}

	// Comma join (implicit cross join).
	if p.match(tokenComma) {
		join.Type = JoinComma
		join.Right = p.parseTableRef()
		return join
	}

	switch {
	case p.match(tokenCross):
		join.Type = JoinCross
		p.expect(tokenJoin)
		join.Right = p.parseTableRef()
		return join

	case p.match(tokenLeft):
		join.Type = JoinLeft
		p.match(tokenOuter)

	case p.match(tokenRight):
		join.Type = JoinRight
		p.match(tokenOuter)

	case p.match(tokenFull):
		join.Type = JoinFull
		p.match(tokenOuter)

	case p.match(tokenInner):
		join.Type = JoinInner

	case p.check(tokenJoin):
		join.Type = JoinInner

	default:
		return nil
	}

	if !p.expect(tokenJoin) {
		return nil
	}

	join.Right = p.parseTableRef()

	if p.match(tokenOn) {
		join.Condition = p.parseExpression()
	}

	return join
}
