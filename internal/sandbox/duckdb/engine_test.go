package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/querypilot/querypilot/internal/sandbox"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestExecuteMaterializesRows(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := NewEngine(db)

	mock.ExpectQuery("SELECT note FROM visits").
		WillReturnRows(sqlmock.NewRows([]string{"note"}).
			AddRow([]byte("follow-up")).
			AddRow("routine"))

	result, err := engine.Execute(context.Background(), "SELECT note FROM visits", time.Second, 100)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || result.Rows[0][0] != "follow-up" {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestExecuteEnforcesRowCap(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := NewEngine(db)

	mock.ExpectQuery("SELECT id FROM visits").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)))

	_, err := engine.Execute(context.Background(), "SELECT id FROM visits", time.Second, 1)
	var failure *sandbox.Failure
	if !errors.As(err, &failure) || failure.Kind != sandbox.KindRowLimitExceeded {
		t.Fatalf("error = %v, want row limit failure", err)
	}
}

func TestClassify(t *testing.T) {
	if f := classify(context.DeadlineExceeded, time.Second).(*sandbox.Failure); f.Kind != sandbox.KindTimeout {
		t.Fatalf("deadline kind = %s", f.Kind)
	}
	if f := classify(errors.New("catalog error"), time.Second).(*sandbox.Failure); f.Kind != sandbox.KindEngineError {
		t.Fatalf("engine kind = %s", f.Kind)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
