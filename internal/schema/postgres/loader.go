// Package postgres loads catalog metadata from a live PostgreSQL
// database by introspecting information_schema and planner estimates.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/querypilot/querypilot/internal/schema"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store db: %w", err)
	}

	return db, nil
}

// Loader introspects the public schema of the connected database and
// produces catalog metadata.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

func (l *Loader) HealthCheck(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping store db: %w", err)
	}
	return nil
}

// Load reads column definitions, primary keys, and planner row
// estimates for every ordinary table in the public schema.
func (l *Loader) Load(ctx context.Context) (schema.Metadata, error) {
	columnsByTable, tableOrder, err := l.loadColumns(ctx)
	if err != nil {
		return schema.Metadata{}, err
	}
	keysByTable, err := l.loadPrimaryKeys(ctx)
	if err != nil {
		return schema.Metadata{}, err
	}
	rowsByTable, err := l.loadRowEstimates(ctx)
	if err != nil {
		return schema.Metadata{}, err
	}

	meta := schema.Metadata{Tables: make([]schema.TableMetadata, 0, len(tableOrder))}
	for _, tableName := range tableOrder {
		meta.Tables = append(meta.Tables, schema.TableMetadata{
			Name:          tableName,
			Columns:       columnsByTable[tableName],
			PrimaryKey:    keysByTable[tableName],
			EstimatedRows: rowsByTable[tableName],
		})
	}
	return meta, nil
}

func (l *Loader) loadColumns(ctx context.Context) (map[string][]schema.ColumnMetadata, []string, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name ASC, ordinal_position ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("load columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columnsByTable := make(map[string][]schema.ColumnMetadata)
	tableOrder := make([]string, 0)
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, nil, fmt.Errorf("scan column row: %w", err)
		}
		if _, seen := columnsByTable[tableName]; !seen {
			tableOrder = append(tableOrder, tableName)
		}
		columnsByTable[tableName] = append(columnsByTable[tableName], schema.ColumnMetadata{
			Name:     columnName,
			Type:     dataType,
			Nullable: isNullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columnsByTable, tableOrder, nil
}

func (l *Loader) loadPrimaryKeys(ctx context.Context) (map[string][]string, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name
 AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = 'public'
  AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY tc.table_name ASC, kcu.ordinal_position ASC`)
	if err != nil {
		return nil, fmt.Errorf("load primary keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keysByTable := make(map[string][]string)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, fmt.Errorf("scan primary key row: %w", err)
		}
		keysByTable[tableName] = append(keysByTable[tableName], columnName)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary key rows: %w", err)
	}
	return keysByTable, nil
}

func (l *Loader) loadRowEstimates(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT relname, GREATEST(reltuples, 0)::bigint
FROM pg_class
WHERE relkind = 'r'
  AND relnamespace = 'public'::regnamespace
ORDER BY relname ASC`)
	if err != nil {
		return nil, fmt.Errorf("load row estimates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rowsByTable := make(map[string]int64)
	for rows.Next() {
		var tableName string
		var estimate int64
		if err := rows.Scan(&tableName, &estimate); err != nil {
			return nil, fmt.Errorf("scan row estimate: %w", err)
		}
		rowsByTable[tableName] = estimate
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate row estimates: %w", err)
	}
	return rowsByTable, nil
}
