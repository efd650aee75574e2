package schema

import (
	"errors"
	"strings"
	"testing"
)

func sampleMetadata() Metadata {
	return Metadata{
		Tables: []TableMetadata{
			{
				Name: "Patients",
				Columns: []ColumnMetadata{
					{Name: "ID", Type: "bigint"},
					{Name: "Name", Type: "varchar(120)"},
					{Name: "Admitted_At", Type: "timestamp", Nullable: true},
					{Name: "Weight", Type: "double precision", Nullable: true},
					{Name: "Active", Type: "bool"},
				},
				PrimaryKey:    []string{"ID"},
				EstimatedRows: 2_500_000,
			},
			{
				Name: "visits",
				Columns: []ColumnMetadata{
					{Name: "id", Type: "int"},
					{Name: "patient_id", Type: "int"},
					{Name: "visit_date", Type: "date"},
				},
				PrimaryKey: []string{"id"},
			},
		},
	}
}

func TestLoadNormalizesIdentifiers(t *testing.T) {
	catalog, err := Load(sampleMetadata())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	table, ok := catalog.Table("PATIENTS")
	if !ok {
		t.Fatalf("expected table lookup to be case-insensitive")
	}
	if table.Name != "patients" {
		t.Fatalf("expected normalized table name, got %q", table.Name)
	}
	if table.EstimatedRows != 2_500_000 {
		t.Fatalf("unexpected estimated rows: %d", table.EstimatedRows)
	}

	column, ok := catalog.Resolve("Patients", "ADMITTED_AT")
	if !ok {
		t.Fatalf("expected column lookup to be case-insensitive")
	}
	if column.Type != TypeDate {
		t.Fatalf("expected timestamp to map to %s, got %s", TypeDate, column.Type)
	}
	if !column.Nullable {
		t.Fatalf("expected admitted_at to remain nullable")
	}

	if _, ok := catalog.Resolve("patients", "missing"); ok {
		t.Fatalf("expected unknown column to fail resolution")
	}
	if _, ok := catalog.Resolve("nope", "id"); ok {
		t.Fatalf("expected unknown table to fail resolution")
	}
}

func TestLoadRejectsInvalidMetadata(t *testing.T) {
	cases := []struct {
		name string
		raw  Metadata
	}{
		{
			name: "empty metadata",
			raw:  Metadata{},
		},
		{
			name: "duplicate table after normalization",
			raw: Metadata{Tables: []TableMetadata{
				{Name: "Users", Columns: []ColumnMetadata{{Name: "id", Type: "int"}}},
				{Name: "users", Columns: []ColumnMetadata{{Name: "id", Type: "int"}}},
			}},
		},
		{
			name: "duplicate column after normalization",
			raw: Metadata{Tables: []TableMetadata{
				{Name: "users", Columns: []ColumnMetadata{
					{Name: "ID", Type: "int"},
					{Name: "id", Type: "int"},
				}},
			}},
		},
		{
			name: "unrecognized declared type",
			raw: Metadata{Tables: []TableMetadata{
				{Name: "users", Columns: []ColumnMetadata{{Name: "blob", Type: "bytea"}}},
			}},
		},
		{
			name: "primary key references missing column",
			raw: Metadata{Tables: []TableMetadata{
				{Name: "users", Columns: []ColumnMetadata{{Name: "id", Type: "int"}}, PrimaryKey: []string{"uuid"}},
			}},
		},
		{
			name: "table without columns",
			raw: Metadata{Tables: []TableMetadata{
				{Name: "users"},
			}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.raw)
			if err == nil {
				t.Fatalf("expected load error")
			}
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %T", err)
			}
		})
	}
}

func TestRenderForPromptIsDeterministic(t *testing.T) {
	first, err := Load(sampleMetadata())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	second, err := Load(sampleMetadata())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if first.RenderForPrompt() != second.RenderForPrompt() {
		t.Fatalf("expected identical catalogs to render identically")
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Fatalf("expected identical catalogs to share a fingerprint")
	}

	rendered := first.RenderForPrompt()
	if !strings.Contains(rendered, "TABLE patients (") {
		t.Fatalf("rendered schema missing patients table:\n%s", rendered)
	}
	if !strings.Contains(rendered, "id INTEGER NOT NULL PRIMARY KEY") {
		t.Fatalf("rendered schema missing primary key marker:\n%s", rendered)
	}
	if strings.Index(rendered, "TABLE patients") > strings.Index(rendered, "TABLE visits") {
		t.Fatalf("expected tables to render in sorted order:\n%s", rendered)
	}
}

func TestFingerprintChangesWithSchema(t *testing.T) {
	base, err := Load(sampleMetadata())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	altered := sampleMetadata()
	altered.Tables[0].Columns = append(altered.Tables[0].Columns, ColumnMetadata{Name: "discharged_at", Type: "date", Nullable: true})
	changed, err := Load(altered)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if base.Fingerprint() == changed.Fingerprint() {
		t.Fatalf("expected fingerprint to change when schema changes")
	}
}
