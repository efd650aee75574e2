// Package schema models the relational schema the pipeline answers
// questions against. A Catalog is built once from source metadata,
// case-normalized, and immutable afterwards; reloading produces a new
// Catalog, never an in-place mutation.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ColumnType is the declared type of a column as the validator sees it.
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeText    ColumnType = "TEXT"
	TypeDate    ColumnType = "DATE"
	TypeBoolean ColumnType = "BOOLEAN"
)

type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

type Table struct {
	Name       string
	Columns    []Column // declared order
	PrimaryKey map[string]struct{}
	// EstimatedRows is an advisory planner estimate used by the
	// wide-table safety heuristic; zero means unknown.
	EstimatedRows int64
}

// Catalog is the canonical, queryable model of the schema. Safe for
// unlimited concurrent readers.
type Catalog struct {
	tables  map[string]Table
	columns map[string]map[string]Column
	names   []string // sorted table names for deterministic rendering
}

// Metadata is the raw loader output Load consumes.
type Metadata struct {
	Tables []TableMetadata `json:"tables"`
}

type TableMetadata struct {
	Name          string           `json:"name"`
	Columns       []ColumnMetadata `json:"columns"`
	PrimaryKey    []string         `json:"primary_key"`
	EstimatedRows int64            `json:"estimated_rows"`
}

type ColumnMetadata struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// LoadError reports invalid source metadata. It is fatal at startup: the
// process must not serve traffic with an unloaded or inconsistent catalog.
type LoadError struct {
	Detail string
}

func (e *LoadError) Error() string {
	return "schema load: " + e.Detail
}

// Load builds an immutable Catalog from raw metadata. Table and column
// names are lower-cased once here; collisions after normalization and
// unrecognized declared types fail the load.
func Load(raw Metadata) (*Catalog, error) {
	if len(raw.Tables) == 0 {
		return nil, &LoadError{Detail: "metadata contains no tables"}
	}

	catalog := &Catalog{
		tables:  make(map[string]Table, len(raw.Tables)),
		columns: make(map[string]map[string]Column, len(raw.Tables)),
	}

	for _, tableMeta := range raw.Tables {
		tableName := Normalize(tableMeta.Name)
		if tableName == "" {
			return nil, &LoadError{Detail: "table with empty name"}
		}
		if _, exists := catalog.tables[tableName]; exists {
			return nil, &LoadError{Detail: fmt.Sprintf("duplicate table name %q after normalization", tableName)}
		}
		if len(tableMeta.Columns) == 0 {
			return nil, &LoadError{Detail: fmt.Sprintf("table %q has no columns", tableName)}
		}

		table := Table{
			Name:          tableName,
			Columns:       make([]Column, 0, len(tableMeta.Columns)),
			PrimaryKey:    make(map[string]struct{}, len(tableMeta.PrimaryKey)),
			EstimatedRows: tableMeta.EstimatedRows,
		}
		byName := make(map[string]Column, len(tableMeta.Columns))

		for _, columnMeta := range tableMeta.Columns {
			columnName := Normalize(columnMeta.Name)
			if columnName == "" {
				return nil, &LoadError{Detail: fmt.Sprintf("table %q has a column with an empty name", tableName)}
			}
			if _, exists := byName[columnName]; exists {
				return nil, &LoadError{Detail: fmt.Sprintf("duplicate column %q in table %q after normalization", columnName, tableName)}
			}
			columnType, err := ParseColumnType(columnMeta.Type)
			if err != nil {
				return nil, &LoadError{Detail: fmt.Sprintf("table %q column %q: %v", tableName, columnName, err)}
			}
			column := Column{Name: columnName, Type: columnType, Nullable: columnMeta.Nullable}
			table.Columns = append(table.Columns, column)
			byName[columnName] = column
		}

		for _, key := range tableMeta.PrimaryKey {
			keyName := Normalize(key)
			if _, ok := byName[keyName]; !ok {
				return nil, &LoadError{Detail: fmt.Sprintf("primary key column %q not present in table %q", keyName, tableName)}
			}
			table.PrimaryKey[keyName] = struct{}{}
		}

		catalog.tables[tableName] = table
		catalog.columns[tableName] = byName
		catalog.names = append(catalog.names, tableName)
	}

	sort.Strings(catalog.names)
	return catalog, nil
}

// Normalize is the single case-normalization rule for identifiers.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ParseColumnType maps a declared source type to the catalog's type enum.
// It accepts the common spellings the loaders encounter.
func ParseColumnType(declared string) (ColumnType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(declared))
	if idx := strings.IndexByte(normalized, '('); idx > 0 {
		normalized = normalized[:idx]
	}
	switch normalized {
	case "INTEGER", "INT", "INT2", "INT4", "INT8", "SMALLINT", "BIGINT":
		return TypeInteger, nil
	case "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return TypeReal, nil
	case "TEXT", "VARCHAR", "CHAR", "CHARACTER", "CHARACTER VARYING", "STRING":
		return TypeText, nil
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP WITH TIME ZONE":
		return TypeDate, nil
	case "BOOLEAN", "BOOL":
		return TypeBoolean, nil
	default:
		return "", fmt.Errorf("unrecognized declared type %q", declared)
	}
}

// Resolve is the sole lookup path the validator uses.
func (c *Catalog) Resolve(table, column string) (Column, bool) {
	columns, ok := c.columns[Normalize(table)]
	if !ok {
		return Column{}, false
	}
	col, ok := columns[Normalize(column)]
	return col, ok
}

func (c *Catalog) Table(name string) (Table, bool) {
	table, ok := c.tables[Normalize(name)]
	return table, ok
}

func (c *Catalog) TableNames() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// RenderForPrompt produces the deterministic textual schema description
// used to ground the synthesizer. Tables are sorted, columns keep their
// declared order, so identical catalogs render identically.
func (c *Catalog) RenderForPrompt() string {
	var b strings.Builder
	for _, name := range c.names {
		table := c.tables[name]
		b.WriteString("TABLE ")
		b.WriteString(name)
		b.WriteString(" (\n")
		for _, column := range table.Columns {
			b.WriteString("  ")
			b.WriteString(column.Name)
			b.WriteString(" ")
			b.WriteString(string(column.Type))
			if !column.Nullable {
				b.WriteString(" NOT NULL")
			}
			if _, ok := table.PrimaryKey[column.Name]; ok {
				b.WriteString(" PRIMARY KEY")
			}
			b.WriteString("\n")
		}
		b.WriteString(")\n")
	}
	return b.String()
}

// Fingerprint is a stable digest of the rendered catalog, used to key
// memoized answers so a reloaded schema never serves stale results.
func (c *Catalog) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.RenderForPrompt()))
	return hex.EncodeToString(sum[:8])
}
