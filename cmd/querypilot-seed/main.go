package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/seed"
)

func main() {
	file := flag.String("file", "", "path to the parquet dataset")
	table := flag.String("table", "", "target table name")
	batch := flag.Int("batch", 500, "rows per insert batch")
	flag.Parse()

	if *file == "" || *table == "" {
		fmt.Fprintln(os.Stderr, "usage: querypilot-seed -file dataset.parquet -table patients")
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv("querypilot-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	db, dialect, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "store open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "store ping error: %v\n", err)
		os.Exit(1)
	}

	dataset, err := seed.ReadParquet(*file, *table)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dataset read error: %v\n", err)
		os.Exit(1)
	}

	loader := seed.NewLoader(db, dialect, *batch)
	if err := loader.Load(ctx, dataset); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded %s with %d row(s)\n", dataset.Table, len(dataset.Rows))
}

// openStore opens a writable handle to the configured backend. The
// seed tool is the one place that writes; the API only ever reads.
func openStore(cfg config.Config) (*sql.DB, seed.Dialect, error) {
	switch cfg.Store.Backend {
	case config.BackendDuckDB:
		if cfg.Store.Path == "" {
			return nil, "", fmt.Errorf("QUERYPILOT_STORE_PATH is required for the duckdb backend")
		}
		db, err := sql.Open("duckdb", cfg.Store.Path)
		return db, seed.DialectDuckDB, err
	default:
		if cfg.Store.DSN == "" {
			return nil, "", fmt.Errorf("QUERYPILOT_STORE_DSN is required for the postgres backend")
		}
		db, err := sql.Open("pgx", cfg.Store.DSN)
		return db, seed.DialectPostgres, err
	}
}
