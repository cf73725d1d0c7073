package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// statementTimeoutMs caps every catalog and sampling query at 20 minutes,
// set after connecting to stay compatible with pooled connections that do
// not accept startup parameters.
const statementTimeoutMs = 60000 * 20

// Inspector issues catalog queries against one database side and returns
// structured metadata. It owns its connection exclusively; the two sides of a
// comparison never share an Inspector.
type Inspector struct {
	db       *sqlx.DB
	Database string
}

// OpenInspector connects to one database side and verifies the connection.
func OpenInspector(ctx context.Context, conn ConnectionConfig, dbname string) (*Inspector, error) {
	db, err := sqlx.Open("postgres", conn.ConnString(dbname))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", dbname, err)
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET statement_timeout = %d", statementTimeoutMs)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set statement timeout: %w", err)
	}

	return &Inspector{db: db, Database: dbname}, nil
}

// newInspector wraps an existing connection; used by tests with sqlmock.
func newInspector(db *sqlx.DB, dbname string) *Inspector {
	return &Inspector{db: db, Database: dbname}
}

func (in *Inspector) Close() error {
	return in.db.Close()
}

// Schemas lists user schemas, excluding the Postgres system and temp schemas.
func (in *Inspector) Schemas(ctx context.Context) ([]string, error) {
	query := `
		SELECT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
			AND schema_name NOT LIKE 'pg_temp_%'
			AND schema_name NOT LIKE 'pg_toast_temp_%'
		ORDER BY schema_name
	`

	var schemas []string
	if err := in.db.SelectContext(ctx, &schemas, query); err != nil {
		return nil, fmt.Errorf("failed to query schemas: %w", err)
	}
	return schemas, nil
}

// Tables lists the ordinary tables in a schema.
func (in *Inspector) Tables(ctx context.Context, schema string) ([]string, error) {
	query := `
		SELECT tablename
		FROM pg_catalog.pg_tables
		WHERE schemaname = $1
		ORDER BY tablename
	`

	var tables []string
	if err := in.db.SelectContext(ctx, &tables, query, schema); err != nil {
		return nil, fmt.Errorf("failed to query tables for schema %s: %w", schema, err)
	}
	return tables, nil
}

// Columns returns the column descriptors of a table in ordinal position order.
func (in *Inspector) Columns(ctx context.Context, schema, table string) ([]ColumnInfo, error) {
	query := `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' AS is_nullable,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.constraint_column_usage ccu
					USING (constraint_schema, constraint_name)
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND ccu.column_name = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	var columns []ColumnInfo
	if err := in.db.SelectContext(ctx, &columns, query, schema, table); err != nil {
		return nil, fmt.Errorf("failed to query columns for %s.%s: %w", schema, table, err)
	}
	return columns, nil
}

// indexRow is one (index, column) pair from the catalog; rows are grouped
// into IndexInfo by index name.
type indexRow struct {
	IndexName  string `db:"index_name"`
	ColumnName string `db:"column_name"`
	IsUnique   bool   `db:"is_unique"`
}

// Indexes returns the indexes of a table with their ordered column lists and
// uniqueness flags, read from pg_index rather than parsed out of indexdef.
func (in *Inspector) Indexes(ctx context.Context, schema, table string) ([]IndexInfo, error) {
	query := `
		SELECT
			i.relname AS index_name,
			a.attname AS column_name,
			ix.indisunique AS is_unique
		FROM pg_catalog.pg_class t
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_catalog.pg_index ix ON ix.indrelid = t.oid
		JOIN pg_catalog.pg_class i ON i.oid = ix.indexrelid
		JOIN unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_catalog.pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE n.nspname = $1 AND t.relname = $2
		ORDER BY i.relname, k.ord
	`

	var rows []indexRow
	if err := in.db.SelectContext(ctx, &rows, query, schema, table); err != nil {
		return nil, fmt.Errorf("failed to query indexes for %s.%s: %w", schema, table, err)
	}

	var indexes []IndexInfo
	for _, row := range rows {
		if n := len(indexes); n > 0 && indexes[n-1].Name == row.IndexName {
			indexes[n-1].Columns = append(indexes[n-1].Columns, row.ColumnName)
			continue
		}
		indexes = append(indexes, IndexInfo{
			Name:    row.IndexName,
			Columns: []string{row.ColumnName},
			Unique:  row.IsUnique,
		})
	}
	return indexes, nil
}

// RowCount returns the exact row count of a table.
func (in *Inspector) RowCount(ctx context.Context, schema, table string) (int64, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s.%s",
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table))

	var count int64
	if err := in.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s.%s: %w", schema, table, err)
	}
	return count, nil
}

// SampleRows fetches up to limit rows of the named columns, ordered by the
// orderBy columns ascending so both sides of a comparison see the same
// logical rows at the same positions.
func (in *Inspector) SampleRows(ctx context.Context, schema, table string, columns, orderBy []string, limit int) ([][]interface{}, error) {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = pq.QuoteIdentifier(col)
	}
	order := make([]string, len(orderBy))
	for i, col := range orderBy {
		order[i] = pq.QuoteIdentifier(col)
	}

	query := fmt.Sprintf("SELECT %s FROM %s.%s ORDER BY %s LIMIT %d",
		strings.Join(quoted, ", "),
		pq.QuoteIdentifier(schema), pq.QuoteIdentifier(table),
		strings.Join(order, ", "),
		limit,
	)

	rows, err := in.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sample rows from %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var result [][]interface{}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample row from %s.%s: %w", schema, table, err)
		}
		result = append(result, values)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample rows from %s.%s: %w", schema, table, err)
	}
	return result, nil
}
