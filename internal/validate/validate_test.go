package validate

import (
	"strings"
	"testing"

	"github.com/querypilot/querypilot/internal/schema"
)

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	catalog, err := schema.Load(schema.Metadata{
		Tables: []schema.TableMetadata{
			{
				Name: "patients",
				Columns: []schema.ColumnMetadata{
					{Name: "id", Type: "INTEGER"},
					{Name: "name", Type: "TEXT"},
					{Name: "age", Type: "INTEGER"},
					{Name: "weight", Type: "REAL", Nullable: true},
					{Name: "admitted_at", Type: "DATE", Nullable: true},
					{Name: "active", Type: "BOOLEAN"},
				},
				PrimaryKey:    []string{"id"},
				EstimatedRows: 2_500_000,
			},
			{
				Name: "visits",
				Columns: []schema.ColumnMetadata{
					{Name: "id", Type: "INTEGER"},
					{Name: "patient_id", Type: "INTEGER"},
					{Name: "visit_date", Type: "DATE"},
					{Name: "note", Type: "TEXT", Nullable: true},
				},
				PrimaryKey:    []string{"id"},
				EstimatedRows: 120,
			},
		},
	})
	if err != nil {
		t.Fatalf("schema.Load() error = %v", err)
	}
	return catalog
}

func testValidator(t *testing.T) *Validator {
	t.Helper()
	return New(testCatalog(t), Config{
		MaxNodes:          400,
		MaxJoins:          2,
		MaxSubqueryDepth:  3,
		WideTableRowCount: 1_000_000,
	})
}

func expectRejection(t *testing.T, v *Validator, sql string, kind FailureKind) *Rejection {
	t.Helper()
	plan, rej := v.Validate(sql, 1000)
	if rej == nil {
		t.Fatalf("Validate(%q) accepted, plan = %+v", sql, plan)
	}
	if rej.Kind != kind {
		t.Fatalf("Validate(%q) kind = %s detail = %q, want %s", sql, rej.Kind, rej.Detail, kind)
	}
	return rej
}

func TestValidateAcceptsAndCapsQuery(t *testing.T) {
	v := testValidator(t)

	plan, rej := v.Validate("SELECT name, age FROM patients WHERE age > 30", 1000)
	if rej != nil {
		t.Fatalf("Validate() rejected: %v", rej)
	}
	want := "SELECT * FROM (SELECT name, age FROM patients WHERE age > 30) AS q LIMIT 1001"
	if plan.SQL != want {
		t.Fatalf("plan SQL = %q, want %q", plan.SQL, want)
	}
	if plan.RowCap != 1000 {
		t.Fatalf("plan RowCap = %d", plan.RowCap)
	}
}

func TestValidateKeepsQueriesAlreadyUnderCap(t *testing.T) {
	v := testValidator(t)

	plan, rej := v.Validate("SELECT name FROM patients WHERE age > 30 LIMIT 10;", 1000)
	if rej != nil {
		t.Fatalf("Validate() rejected: %v", rej)
	}
	if plan.SQL != "SELECT name FROM patients WHERE age > 30 LIMIT 10" {
		t.Fatalf("plan SQL = %q", plan.SQL)
	}

	plan, rej = v.Validate("SELECT name FROM patients WHERE age > 30 LIMIT 5000", 1000)
	if rej != nil {
		t.Fatalf("Validate() rejected: %v", rej)
	}
	if !strings.HasPrefix(plan.SQL, "SELECT * FROM (") {
		t.Fatalf("oversized LIMIT should be wrapped, got %q", plan.SQL)
	}
}

func TestValidateRejectsNonSelect(t *testing.T) {
	v := testValidator(t)

	expectRejection(t, v, "DELETE FROM patients WHERE id = 1", KindDisallowedStatement)
	expectRejection(t, v, "UPDATE patients SET age = 1 WHERE id = 1", KindDisallowedStatement)
	expectRejection(t, v, "SELECT id FROM visits; DROP TABLE patients", KindDisallowedStatement)
}

func TestValidateRejectsSyntaxErrors(t *testing.T) {
	v := testValidator(t)
	expectRejection(t, v, "SELECT FROM WHERE", KindSyntaxError)
	expectRejection(t, v, "SELECT name FROM patients WHERE (age > 30", KindSyntaxError)
}

func TestValidateRejectsUnknownIdentifiers(t *testing.T) {
	v := testValidator(t)

	rej := expectRejection(t, v, "SELECT name FROM patiens WHERE age > 30", KindUnknownTable)
	if !strings.Contains(rej.Detail, "patiens") {
		t.Fatalf("detail should name the table: %q", rej.Detail)
	}

	rej = expectRejection(t, v, "SELECT patient_name FROM patients WHERE age > 30", KindUnknownColumn)
	if !strings.Contains(rej.Detail, "patient_name") {
		t.Fatalf("detail should name the column: %q", rej.Detail)
	}

	expectRejection(t, v, "SELECT p.nmae FROM patients p WHERE p.age > 30", KindUnknownColumn)
	expectRejection(t, v, "SELECT x.name FROM patients p WHERE p.age > 30", KindUnknownTable)
}

func TestValidateRejectsTypeMismatches(t *testing.T) {
	v := testValidator(t)

	expectRejection(t, v, "SELECT id FROM patients WHERE name > 5", KindTypeMismatch)
	expectRejection(t, v, "SELECT id FROM patients WHERE age LIKE 'x%'", KindTypeMismatch)
	expectRejection(t, v, "SELECT id FROM patients WHERE age + name > 5", KindTypeMismatch)
	expectRejection(t, v, "SELECT id FROM patients WHERE age", KindTypeMismatch)
	expectRejection(t, v, "SELECT SUM(name) FROM patients WHERE age > 1", KindTypeMismatch)
}

func TestValidateAllowsDateStringComparison(t *testing.T) {
	v := testValidator(t)

	_, rej := v.Validate("SELECT id FROM visits WHERE visit_date > '2024-01-01'", 1000)
	if rej != nil {
		t.Fatalf("date/string comparison rejected: %v", rej)
	}
}

func TestValidateWideTableHeuristic(t *testing.T) {
	v := testValidator(t)

	expectRejection(t, v, "SELECT name FROM patients", KindMissingWhereOnWideTable)

	_, rej := v.Validate("SELECT name FROM patients WHERE active = TRUE", 1000)
	if rej != nil {
		t.Fatalf("filtered wide-table scan rejected: %v", rej)
	}

	// An explicit LIMIT bounds the scan as well as a WHERE does.
	_, rej = v.Validate("SELECT name FROM patients LIMIT 10", 1000)
	if rej != nil {
		t.Fatalf("limited wide-table scan rejected: %v", rej)
	}

	// Narrow tables scan freely.
	_, rej = v.Validate("SELECT note FROM visits", 1000)
	if rej != nil {
		t.Fatalf("narrow table scan rejected: %v", rej)
	}
}

func TestValidateWideTableHeuristicReportsLast(t *testing.T) {
	v := testValidator(t)

	// Binding failures win over the heuristic even when the scan is
	// also unbounded.
	rej := expectRejection(t, v, "SELECT bogus FROM patients", KindUnknownColumn)
	if !strings.Contains(rej.Detail, "bogus") {
		t.Fatalf("detail should name the column: %q", rej.Detail)
	}
	expectRejection(t, v, "SELECT name > 5 FROM patients", KindTypeMismatch)

	// So does a blown complexity budget.
	expectRejection(t, v, `
SELECT p.name
FROM patients p
JOIN visits a ON a.patient_id = p.id
JOIN visits b ON b.patient_id = p.id
JOIN visits c ON c.patient_id = p.id`, KindExceedsComplexityBudget)
}

func TestValidateSetOpWithTrailingOrderBy(t *testing.T) {
	v := testValidator(t)

	// ORDER BY after a set operation sorts the combined result and
	// binds against the first core's projection: name lives only in
	// patients, not in visits.
	_, rej := v.Validate(`
SELECT name FROM patients WHERE active = TRUE
UNION
SELECT note FROM visits
ORDER BY name`, 1000)
	if rej != nil {
		t.Fatalf("set-op query with trailing ORDER BY rejected: %v", rej)
	}
}

func TestValidateComplexityBudgets(t *testing.T) {
	v := testValidator(t)

	expectRejection(t, v, `
SELECT p.name
FROM patients p
JOIN visits a ON a.patient_id = p.id
JOIN visits b ON b.patient_id = p.id
JOIN visits c ON c.patient_id = p.id
WHERE p.age > 30`, KindExceedsComplexityBudget)

	expectRejection(t, v, `
SELECT id FROM visits WHERE patient_id IN (
  SELECT patient_id FROM visits WHERE id IN (
    SELECT id FROM visits WHERE patient_id IN (
      SELECT patient_id FROM visits WHERE id = 1)))`, KindExceedsComplexityBudget)
}

func TestValidateBindsCTEsAndAliases(t *testing.T) {
	v := testValidator(t)

	_, rej := v.Validate(`
WITH recent AS (
  SELECT patient_id, visit_date FROM visits WHERE visit_date > '2024-01-01'
)
SELECT p.name, r.visit_date
FROM patients p
JOIN recent r ON r.patient_id = p.id
WHERE p.age > 18
ORDER BY r.visit_date DESC`, 1000)
	if rej != nil {
		t.Fatalf("CTE query rejected: %v", rej)
	}

	expectRejection(t, v, `
WITH recent AS (
  SELECT patient_id FROM visits WHERE visit_date > '2024-01-01'
)
SELECT r.visit_date FROM recent r WHERE r.patient_id > 0`, KindUnknownColumn)
}

func TestValidateOrderByAlias(t *testing.T) {
	v := testValidator(t)

	_, rej := v.Validate(`
SELECT name, COUNT(*) AS n
FROM patients p JOIN visits v ON v.patient_id = p.id
WHERE p.age > 0
GROUP BY name
ORDER BY n DESC`, 1000)
	if rej != nil {
		t.Fatalf("alias in ORDER BY rejected: %v", rej)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	v := testValidator(t)
	sql := "SELECT nmae FROM patients WHERE age > 30"

	first := expectRejection(t, v, sql, KindUnknownColumn)
	second := expectRejection(t, v, sql, KindUnknownColumn)
	if first.Detail != second.Detail {
		t.Fatalf("rejections differ: %q vs %q", first.Detail, second.Detail)
	}
}
