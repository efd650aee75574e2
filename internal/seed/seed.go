// Package seed loads a parquet dataset into the backing store so a
// fresh environment has data matching the schema catalog. It reads the
// file schema, creates the table, and bulk-inserts the rows in batches.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Column is one column of the dataset with its declared store type.
type Column struct {
	Name    string
	SQLType string
}

// Dataset is a fully materialized parquet file ready for insertion.
type Dataset struct {
	Table   string
	Columns []Column
	Rows    [][]any
}

// ReadParquet loads the named file into memory. Column names are
// sanitized so they are valid unquoted SQL identifiers.
func ReadParquet(path, table string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Dataset{}, fmt.Errorf("stat dataset: %w", err)
	}
	file, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return Dataset{}, fmt.Errorf("read parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	columns := make([]Column, len(fields))
	for i, field := range fields {
		columns[i] = Column{
			Name:    SanitizeIdentifier(field.Name()),
			SQLType: sqlTypeFor(field),
		}
	}

	dataset := Dataset{Table: SanitizeIdentifier(table), Columns: columns}
	for _, group := range file.RowGroups() {
		rows := group.Rows()
		buf := make([]parquet.Row, 64)
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				values := make([]any, len(fields))
				for _, value := range row {
					idx := value.Column()
					if idx >= 0 && idx < len(values) {
						values[idx] = goValue(value)
					}
				}
				dataset.Rows = append(dataset.Rows, values)
			}
			if err != nil {
				break
			}
		}
		_ = rows.Close()
	}
	if len(dataset.Rows) == 0 {
		return Dataset{}, fmt.Errorf("dataset %q contains no rows", path)
	}
	return dataset, nil
}

// SanitizeIdentifier lowercases and replaces everything outside
// [a-z0-9_] so dataset headers like "Patient Name" become patient_name.
func SanitizeIdentifier(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

func sqlTypeFor(field parquet.Field) string {
	if field.Leaf() {
		switch field.Type().Kind() {
		case parquet.Boolean:
			return "BOOLEAN"
		case parquet.Int32, parquet.Int64:
			return "BIGINT"
		case parquet.Float, parquet.Double:
			return "DOUBLE PRECISION"
		}
	}
	return "TEXT"
}

func goValue(value parquet.Value) any {
	if value.IsNull() {
		return nil
	}
	switch value.Kind() {
	case parquet.Boolean:
		return value.Boolean()
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return float64(value.Float())
	case parquet.Double:
		return value.Double()
	default:
		return value.String()
	}
}

// Dialect controls placeholder rendering for the target store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectDuckDB   Dialect = "duckdb"
)

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Loader inserts a dataset over an open handle. The handle must allow
// writes, so it never shares the sandbox's read-only connection.
type Loader struct {
	db      *sql.DB
	dialect Dialect
	batch   int
}

func NewLoader(db *sql.DB, dialect Dialect, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Loader{db: db, dialect: dialect, batch: batchSize}
}

// Load creates the table and inserts every row in batches inside one
// transaction, so a failed seed leaves nothing behind.
func (l *Loader) Load(ctx context.Context, dataset Dataset) error {
	if len(dataset.Columns) == 0 {
		return fmt.Errorf("dataset has no columns")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, createTableSQL(dataset)); err != nil {
		return fmt.Errorf("create table %q: %w", dataset.Table, err)
	}

	for start := 0; start < len(dataset.Rows); start += l.batch {
		end := start + l.batch
		if end > len(dataset.Rows) {
			end = len(dataset.Rows)
		}
		stmt, args := insertBatchSQL(dataset, l.dialect, dataset.Rows[start:end])
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert rows %d..%d: %w", start, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}
	return nil
}

func createTableSQL(dataset Dataset) string {
	defs := make([]string, len(dataset.Columns))
	for i, column := range dataset.Columns {
		defs[i] = fmt.Sprintf("%s %s", column.Name, column.SQLType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", dataset.Table, strings.Join(defs, ", "))
}

func insertBatchSQL(dataset Dataset, dialect Dialect, rows [][]any) (string, []any) {
	names := make([]string, len(dataset.Columns))
	for i, column := range dataset.Columns {
		names[i] = column.Name
	}

	var (
		tuples []string
		args   []any
	)
	n := 1
	for _, row := range rows {
		holders := make([]string, len(dataset.Columns))
		for i := range dataset.Columns {
			holders[i] = dialect.placeholder(n)
			n++
			if i < len(row) {
				args = append(args, row[i])
			} else {
				args = append(args, nil)
			}
		}
		tuples = append(tuples, "("+strings.Join(holders, ", ")+")")
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		dataset.Table,
		strings.Join(names, ", "),
		strings.Join(tuples, ", "),
	)
	return stmt, args
}
