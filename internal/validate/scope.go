package validate

import (
	"github.com/querypilot/querypilot/internal/schema"
)

// columnType pairs a type with whether it is statically known. Unknown
// types bind successfully but are exempt from type claims.
type columnType struct {
	typ   schema.ColumnType
	known bool
}

// relation is one name visible in a FROM clause: a base table, a CTE,
// or a derived table. Open relations carry a star projection whose
// column set cannot be derived statically, so any column resolves
// against them with an unknown type.
type relation struct {
	name    string
	columns map[string]columnType
	open    bool
}

// scope tracks the relations and CTEs visible at one query level.
// Parent scopes make correlated subqueries resolvable.
type scope struct {
	parent  *scope
	ctes    map[string]*relation
	rels    []*relation
	aliases map[string]columnType // SELECT aliases, visible to ORDER BY and GROUP BY
}

func newScope(parent *scope) *scope {
	return &scope{
		parent:  parent,
		ctes:    make(map[string]*relation),
		aliases: make(map[string]columnType),
	}
}

func (s *scope) registerCTE(name string, rel *relation) {
	s.ctes[schema.Normalize(name)] = rel
}

func (s *scope) lookupCTE(name string) (*relation, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if rel, ok := cur.ctes[schema.Normalize(name)]; ok {
			return rel, true
		}
	}
	return nil, false
}

func (s *scope) addRelation(rel *relation) {
	s.rels = append(s.rels, rel)
}

func (s *scope) lookupRelation(name string) (*relation, bool) {
	normalized := schema.Normalize(name)
	for cur := s; cur != nil; cur = cur.parent {
		for _, rel := range cur.rels {
			if rel.name == normalized {
				return rel, true
			}
		}
	}
	return nil, false
}

type resolution int

const (
	resolved resolution = iota
	notFound
	ambiguous
)

// resolveColumn resolves an unqualified column against the scope chain.
// Closed relations are consulted first; an open relation absorbs any
// name that no closed relation claims.
func (s *scope) resolveColumn(column string) (columnType, resolution) {
	normalized := schema.Normalize(column)
	for cur := s; cur != nil; cur = cur.parent {
		var match columnType
		matches := 0
		hasOpen := false
		for _, rel := range cur.rels {
			if ct, ok := rel.columns[normalized]; ok {
				match = ct
				matches++
				continue
			}
			if rel.open {
				hasOpen = true
			}
		}
		switch {
		case matches == 1:
			return match, resolved
		case matches > 1:
			return columnType{}, ambiguous
		case hasOpen:
			return columnType{}, resolved
		}
	}
	return columnType{}, notFound
}

// resolveQualified resolves table.column against the scope chain.
func (s *scope) resolveQualified(table, column string) (columnType, resolution) {
	rel, ok := s.lookupRelation(table)
	if !ok {
		return columnType{}, notFound
	}
	if ct, ok := rel.columns[schema.Normalize(column)]; ok {
		return ct, resolved
	}
	if rel.open {
		return columnType{}, resolved
	}
	return columnType{}, notFound
}

// relationFromTable builds a scope relation for a catalog table.
func relationFromTable(table schema.Table, alias string) *relation {
	name := table.Name
	if alias != "" {
		name = schema.Normalize(alias)
	}
	columns := make(map[string]columnType, len(table.Columns))
	for _, column := range table.Columns {
		columns[column.Name] = columnType{typ: column.Type, known: true}
	}
	return &relation{name: name, columns: columns}
}
