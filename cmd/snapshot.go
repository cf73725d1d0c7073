package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Error definitions for introspection
var (
	ErrNoColumns = errors.New("table reports no columns")
)

// ColumnInfo represents metadata about a database column
type ColumnInfo struct {
	Name         string `db:"column_name"`
	DataType     string `db:"data_type"`
	IsNullable   bool   `db:"is_nullable"`
	IsPrimaryKey bool   `db:"is_pk"`
}

// IndexInfo represents a table index as its ordered column list plus
// uniqueness flag. The name is carried for readable output only; index
// identity in comparisons is (Columns, Unique).
type IndexInfo struct {
	Name    string
	Columns []string
	Unique  bool
}

// Signature returns the identity key of the index: its ordered column tuple
// plus uniqueness, independent of the index name.
func (ix IndexInfo) Signature() string {
	sig := ""
	for i, col := range ix.Columns {
		if i > 0 {
			sig += ","
		}
		sig += col
	}
	if ix.Unique {
		return "(" + sig + ") unique"
	}
	return "(" + sig + ")"
}

// TableMetadata is the canonical comparable form of one table, rebuilt fresh
// per comparison run.
type TableMetadata struct {
	Name     string
	Columns  []ColumnInfo
	Indexes  []IndexInfo
	RowCount int64
}

// PrimaryKeyColumns returns the names of the primary-key columns in column
// order, or nil when the table has no primary key.
func (t *TableMetadata) PrimaryKeyColumns() []string {
	var pk []string
	for _, col := range t.Columns {
		if col.IsPrimaryKey {
			pk = append(pk, col.Name)
		}
	}
	return pk
}

// ColumnNames returns all column names in column order.
func (t *TableMetadata) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// Snapshot is the normalized metadata of one database side: its schemas and,
// per schema, its tables keyed by name.
type Snapshot struct {
	Database string
	Schemas  map[string]map[string]*TableMetadata
}

// SchemaNames returns the schema names in ascending order.
func (s *Snapshot) SchemaNames() []string {
	names := make([]string, 0, len(s.Schemas))
	for name := range s.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableNames returns the table names of one schema in ascending order.
func (s *Snapshot) TableNames(schema string) []string {
	tables := s.Schemas[schema]
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeTable applies the effective ignore-set to raw table metadata:
// ignored columns are removed from the column list and from every index that
// references them, and indexes left without columns are dropped. A table
// reporting zero columns before filtering is malformed catalog metadata and
// aborts the run.
func normalizeTable(meta TableMetadata, ignored map[string]struct{}) (TableMetadata, error) {
	if len(meta.Columns) == 0 {
		return TableMetadata{}, fmt.Errorf("%w: %s", ErrNoColumns, meta.Name)
	}

	normalized := TableMetadata{
		Name:     meta.Name,
		RowCount: meta.RowCount,
	}

	for _, col := range meta.Columns {
		if _, skip := ignored[col.Name]; skip {
			continue
		}
		normalized.Columns = append(normalized.Columns, col)
	}

	for _, ix := range meta.Indexes {
		var kept []string
		for _, col := range ix.Columns {
			if _, skip := ignored[col]; skip {
				continue
			}
			kept = append(kept, col)
		}
		if len(kept) == 0 {
			continue
		}
		normalized.Indexes = append(normalized.Indexes, IndexInfo{
			Name:    ix.Name,
			Columns: kept,
			Unique:  ix.Unique,
		})
	}

	return normalized, nil
}

// BuildSnapshot introspects one database side and normalizes the result into
// a Snapshot. Any introspection failure is fatal for the run; structural
// comparison requires complete metadata.
func BuildSnapshot(ctx context.Context, in *Inspector, rules *IgnoreRules) (*Snapshot, error) {
	schemas, err := in.Schemas(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Database: in.Database,
		Schemas:  make(map[string]map[string]*TableMetadata, len(schemas)),
	}

	for _, schema := range schemas {
		tables, err := in.Tables(ctx, schema)
		if err != nil {
			return nil, err
		}

		snapshot.Schemas[schema] = make(map[string]*TableMetadata, len(tables))
		for _, table := range tables {
			raw := TableMetadata{Name: table}

			raw.Columns, err = in.Columns(ctx, schema, table)
			if err != nil {
				return nil, err
			}
			raw.Indexes, err = in.Indexes(ctx, schema, table)
			if err != nil {
				return nil, err
			}
			raw.RowCount, err = in.RowCount(ctx, schema, table)
			if err != nil {
				return nil, err
			}

			normalized, err := normalizeTable(raw, rules.Columns(table))
			if err != nil {
				return nil, fmt.Errorf("malformed metadata in %s schema %s: %w", in.Database, schema, err)
			}
			snapshot.Schemas[schema][table] = &normalized
		}
	}

	return snapshot, nil
}
