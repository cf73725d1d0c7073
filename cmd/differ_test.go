package cmd

import (
	"reflect"
	"testing"
)

func snapshotWith(database string, tables map[string]*TableMetadata) *Snapshot {
	return &Snapshot{
		Database: database,
		Schemas:  map[string]map[string]*TableMetadata{"public": tables},
	}
}

func ordersTable() *TableMetadata {
	return &TableMetadata{
		Name: "orders",
		Columns: []ColumnInfo{
			{Name: "id", DataType: "bigint", IsPrimaryKey: true},
			{Name: "total", DataType: "numeric", IsNullable: true},
			{Name: "ts", DataType: "timestamp with time zone", IsNullable: true},
		},
		Indexes: []IndexInfo{
			{Name: "orders_pkey", Columns: []string{"id"}, Unique: true},
		},
		RowCount: 100,
	}
}

func TestCompareSnapshotsEquivalent(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": ordersTable()})

	if entries := CompareSnapshots(a, b); len(entries) != 0 {
		t.Errorf("CompareSnapshots() returned %d entries for identical snapshots: %v", len(entries), entries)
	}
}

func TestCompareSnapshotsMissingColumn(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})

	trimmed := ordersTable()
	trimmed.Columns = trimmed.Columns[:2] // drop ts
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": trimmed})

	entries := CompareSnapshots(a, b)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	e := entries[0]
	if e.Kind != DiffMissingColumn || e.Schema != "public" || e.Table != "orders" || e.Object != "ts" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestCompareSnapshotsRenamedIndexIsNotADifference(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})

	renamed := ordersTable()
	renamed.Indexes = []IndexInfo{
		{Name: "orders_pk_renamed", Columns: []string{"id"}, Unique: true},
	}
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": renamed})

	if entries := CompareSnapshots(a, b); len(entries) != 0 {
		t.Errorf("renamed index reported as difference: %v", entries)
	}
}

func TestCompareSnapshotsIndexStructureDiffers(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})

	changed := ordersTable()
	changed.Indexes = []IndexInfo{
		{Name: "orders_pkey", Columns: []string{"id"}, Unique: false},
	}
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": changed})

	entries := CompareSnapshots(a, b)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want missing-index and extra-index: %v", len(entries), entries)
	}
	if entries[0].Kind != DiffMissingIndex || entries[1].Kind != DiffExtraIndex {
		t.Errorf("kinds = %s, %s", entries[0].Kind, entries[1].Kind)
	}
}

func TestCompareSnapshotsRowCount(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})

	fewer := ordersTable()
	fewer.RowCount = 99
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": fewer})

	entries := CompareSnapshots(a, b)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	e := entries[0]
	if e.Kind != DiffRowCountMismatch {
		t.Fatalf("kind = %s, want %s", e.Kind, DiffRowCountMismatch)
	}
	want := "app_prod has 100 rows, app_replica has 99 rows (difference 1)"
	if e.Detail != want {
		t.Errorf("detail = %q, want %q", e.Detail, want)
	}
}

func TestCompareSnapshotsColumnMismatch(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})

	altered := ordersTable()
	altered.Columns[1].DataType = "double precision"
	altered.Columns[1].IsNullable = false
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": altered})

	entries := CompareSnapshots(a, b)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	e := entries[0]
	if e.Kind != DiffColumnMismatch || e.Object != "total" {
		t.Errorf("unexpected entry: %+v", e)
	}
	want := "type numeric vs double precision; nullable true vs false"
	if e.Detail != want {
		t.Errorf("detail = %q, want %q", e.Detail, want)
	}
}

func TestCompareSnapshotsMissingSchema(t *testing.T) {
	a := &Snapshot{
		Database: "app_prod",
		Schemas: map[string]map[string]*TableMetadata{
			"public":  {"orders": ordersTable()},
			"billing": {"invoices": ordersTable(), "credits": ordersTable()},
		},
	}
	b := snapshotWith("app_replica", map[string]*TableMetadata{"orders": ordersTable()})

	entries := CompareSnapshots(a, b)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	e := entries[0]
	if e.Kind != DiffMissingSchema || e.Schema != "billing" {
		t.Errorf("unexpected entry: %+v", e)
	}
	// Tables under the one-sided schema must not produce their own entries
	for _, entry := range entries {
		if entry.Kind == DiffMissingTable {
			t.Errorf("table under missing schema reported separately: %+v", entry)
		}
	}
}

func TestCompareSnapshotsExtraTable(t *testing.T) {
	a := snapshotWith("app_prod", map[string]*TableMetadata{"orders": ordersTable()})
	b := snapshotWith("app_replica", map[string]*TableMetadata{
		"orders":   ordersTable(),
		"archived": ordersTable(),
	})

	entries := CompareSnapshots(a, b)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %v", len(entries), entries)
	}
	if entries[0].Kind != DiffExtraTable || entries[0].Table != "archived" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestCompareSnapshotsDeterministic(t *testing.T) {
	build := func() (*Snapshot, *Snapshot) {
		a := &Snapshot{
			Database: "app_prod",
			Schemas: map[string]map[string]*TableMetadata{
				"public":  {"orders": ordersTable(), "users": ordersTable()},
				"billing": {"invoices": ordersTable()},
			},
		}
		b := &Snapshot{
			Database: "app_replica",
			Schemas: map[string]map[string]*TableMetadata{
				"public": {"users": ordersTable()},
				"extra":  {"scratch": ordersTable()},
			},
		}
		return a, b
	}

	a1, b1 := build()
	a2, b2 := build()
	first := CompareSnapshots(a1, b1)
	second := CompareSnapshots(a2, b2)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over identical inputs diverged:\n%v\n%v", first, second)
	}
	if len(first) == 0 {
		t.Fatal("expected differences")
	}
}
