package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMismatchedColumns(t *testing.T) {
	structural := []DiffEntry{
		{Kind: DiffColumnMismatch, Schema: "public", Table: "orders", Object: "total"},
		{Kind: DiffColumnMismatch, Schema: "public", Table: "orders", Object: "status"},
		{Kind: DiffColumnMismatch, Schema: "billing", Table: "invoices", Object: "amount"},
		{Kind: DiffMissingColumn, Schema: "public", Table: "orders", Object: "ts"},
	}

	skip := mismatchedColumns(structural)

	orders := skip["public.orders"]
	if len(orders) != 2 {
		t.Fatalf("public.orders has %d skip columns, want 2: %v", len(orders), orders)
	}
	if _, ok := orders["total"]; !ok {
		t.Error("total missing from skip set")
	}
	if _, ok := orders["ts"]; ok {
		t.Error("missing-column entries must not feed the skip set")
	}
	if len(skip["billing.invoices"]) != 1 {
		t.Errorf("billing.invoices skip set = %v", skip["billing.invoices"])
	}
}

func mockSide(t *testing.T, database string) (*Inspector, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	return newInspector(sqlx.NewDb(mockDB, "sqlmock"), database), mock
}

func paymentsSnapshots() (*Snapshot, *Snapshot) {
	table := func() *TableMetadata {
		return &TableMetadata{
			Name: "payments",
			Columns: []ColumnInfo{
				{Name: "id", DataType: "bigint", IsPrimaryKey: true},
				{Name: "amount", DataType: "numeric", IsNullable: true},
			},
			RowCount: 2,
		}
	}
	a := snapshotWith("app_prod", map[string]*TableMetadata{"payments": table()})
	b := snapshotWith("app_replica", map[string]*TableMetadata{"payments": table()})
	return a, b
}

func TestCompareDataMatchingRows(t *testing.T) {
	inspA, mockA := mockSide(t, "app_prod")
	inspB, mockB := mockSide(t, "app_replica")

	sample := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "amount"}).
			AddRow(int64(1), 9.99).
			AddRow(int64(2), 5.00)
	}
	mockA.ExpectQuery(`SELECT "id", "amount" FROM "public"\."payments" ORDER BY "id" LIMIT 10`).
		WillReturnRows(sample())
	mockB.ExpectQuery(`SELECT "id", "amount" FROM "public"\."payments" ORDER BY "id" LIMIT 10`).
		WillReturnRows(sample())

	comparer := NewComparer(&Config{NumRowsToCompare: 10, Workers: 1}, discardLogger())
	snapA, snapB := paymentsSnapshots()

	entries := comparer.compareData(context.Background(), inspA, inspB, snapA, snapB, nil)
	if len(entries) != 0 {
		t.Errorf("got %d entries for matching rows: %v", len(entries), entries)
	}
}

func TestCompareDataDivergentRow(t *testing.T) {
	inspA, mockA := mockSide(t, "app_prod")
	inspB, mockB := mockSide(t, "app_replica")

	mockA.ExpectQuery(`FROM "public"\."payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).AddRow(int64(1), 9.99))
	mockB.ExpectQuery(`FROM "public"\."payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).AddRow(int64(1), 10.00))

	comparer := NewComparer(&Config{NumRowsToCompare: 10, Workers: 2}, discardLogger())
	snapA, snapB := paymentsSnapshots()

	entries := comparer.compareData(context.Background(), inspA, inspB, snapA, snapB, nil)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	if entries[0].Kind != DiffDataMismatch || entries[0].Object != "id=1" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestCompareDataSamplingFailureDegrades(t *testing.T) {
	inspA, mockA := mockSide(t, "app_prod")
	inspB, mockB := mockSide(t, "app_replica")

	mockA.ExpectQuery(`FROM "public"\."payments"`).
		WillReturnError(errors.New("canceling statement due to statement timeout"))
	mockB.ExpectQuery(`FROM "public"\."payments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "amount"}).AddRow(int64(1), 9.99))

	comparer := NewComparer(&Config{NumRowsToCompare: 10, Workers: 1}, discardLogger())
	snapA, snapB := paymentsSnapshots()

	entries := comparer.compareData(context.Background(), inspA, inspB, snapA, snapB, nil)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	e := entries[0]
	if e.Kind != DiffDataSamplingError || e.Table != "payments" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestCompareDataSkipsOneSidedTables(t *testing.T) {
	inspA, _ := mockSide(t, "app_prod")
	inspB, _ := mockSide(t, "app_replica")

	a, _ := paymentsSnapshots()
	b := snapshotWith("app_replica", map[string]*TableMetadata{})

	comparer := NewComparer(&Config{NumRowsToCompare: 10, Workers: 1}, discardLogger())

	// No queries expected; a one-sided table is already a structural entry
	entries := comparer.compareData(context.Background(), inspA, inspB, a, b, nil)
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0: %v", len(entries), entries)
	}
}
