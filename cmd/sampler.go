package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// maxRowDiffsPerTable caps how many per-row differences are reported for a
// single table before the rest are suppressed.
const maxRowDiffsPerTable = 10

// floatTolerance is the absolute tolerance applied when both values compare
// as floating-point numbers.
const floatTolerance = 1e-9

// Sampler fetches a bounded number of rows from the same table on both sides
// and compares them value by value. Sampling failures never abort the run;
// they degrade to a per-table diff entry.
type Sampler struct {
	a      *Inspector
	b      *Inspector
	limit  int
	logger *slog.Logger
}

// NewSampler returns a sampler reading up to limit rows per table from each
// side. Ignored columns never reach the sampler; normalization already
// removed them from the table metadata.
func NewSampler(a, b *Inspector, limit int, logger *slog.Logger) *Sampler {
	return &Sampler{a: a, b: b, limit: limit, logger: logger}
}

type sampleResult struct {
	rows [][]interface{}
	err  error
}

// CompareTable samples one table from both databases and reports value-level
// differences. skipCols holds column names whose declared types already
// differ structurally; their values are fetched but not compared.
func (s *Sampler) CompareTable(ctx context.Context, schema, table string, ta, tb *TableMetadata, skipCols map[string]struct{}) []DiffEntry {
	columns := commonColumns(ta, tb)
	if len(columns) == 0 {
		s.logger.Debug("No comparable columns, skipping data comparison", "schema", schema, "table", table)
		return nil
	}

	orderBy := orderColumns(ta, columns)

	chA := make(chan sampleResult, 1)
	chB := make(chan sampleResult, 1)
	go func() {
		rows, err := s.a.SampleRows(ctx, schema, table, columns, orderBy, s.limit)
		chA <- sampleResult{rows: rows, err: err}
	}()
	go func() {
		rows, err := s.b.SampleRows(ctx, schema, table, columns, orderBy, s.limit)
		chB <- sampleResult{rows: rows, err: err}
	}()
	resA, resB := <-chA, <-chB

	if resA.err != nil || resB.err != nil {
		err := resA.err
		side := s.a.Database
		if err == nil {
			err = resB.err
			side = s.b.Database
		}
		s.logger.Warn("Row sampling failed", "schema", schema, "table", table, "database", side, "error", err)
		return []DiffEntry{{
			Kind:   DiffDataSamplingError,
			Schema: schema,
			Table:  table,
			Detail: fmt.Sprintf("sampling rows from %s failed: %v", side, err),
		}}
	}

	pk := intersect(ta.PrimaryKeyColumns(), columns)
	return compareSampledRows(schema, table, columns, pk, skipCols, resA.rows, resB.rows)
}

// commonColumns returns the column names present on both sides, in the first
// side's column order.
func commonColumns(ta, tb *TableMetadata) []string {
	inB := make(map[string]struct{}, len(tb.Columns))
	for _, col := range tb.Columns {
		inB[col.Name] = struct{}{}
	}
	var common []string
	for _, col := range ta.Columns {
		if _, ok := inB[col.Name]; ok {
			common = append(common, col.Name)
		}
	}
	return common
}

// orderColumns picks the deterministic ORDER BY list: the primary-key columns
// when the table has any that survived filtering, otherwise every sampled
// column.
func orderColumns(ta *TableMetadata, columns []string) []string {
	if pk := intersect(ta.PrimaryKeyColumns(), columns); len(pk) > 0 {
		return pk
	}
	return columns
}

func intersect(names, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		set[name] = struct{}{}
	}
	var out []string
	for _, name := range names {
		if _, ok := set[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// compareSampledRows compares two ordered samples position by position and
// reports per-row differences, capped at maxRowDiffsPerTable entries.
func compareSampledRows(schema, table string, columns, pk []string, skipCols map[string]struct{}, rowsA, rowsB [][]interface{}) []DiffEntry {
	var entries []DiffEntry
	suppressed := 0

	// A sample length difference is not reported here: the row-count
	// comparison already covers it. The shorter sample bounds the walk.
	n := len(rowsA)
	if len(rowsB) < n {
		n = len(rowsB)
	}

	for i := 0; i < n; i++ {
		for c, col := range columns {
			if _, skip := skipCols[col]; skip {
				continue
			}
			if valuesEqual(rowsA[i][c], rowsB[i][c]) {
				continue
			}
			if len(entries) >= maxRowDiffsPerTable {
				suppressed++
				continue
			}
			entries = append(entries, DiffEntry{
				Kind:   DiffDataMismatch,
				Schema: schema,
				Table:  table,
				Object: rowKey(columns, pk, rowsA[i], i),
				Detail: fmt.Sprintf("column %s: %s vs %s", col, formatValue(rowsA[i][c]), formatValue(rowsB[i][c])),
			})
		}
	}

	if suppressed > 0 {
		entries = append(entries, DiffEntry{
			Kind:   DiffDataMismatch,
			Schema: schema,
			Table:  table,
			Detail: fmt.Sprintf("%d additional value differences suppressed", suppressed),
		})
	}
	return entries
}

// rowKey labels a differing row by its primary-key values when the table has
// a primary key, otherwise by its position in the ordered sample.
func rowKey(columns, pk []string, row []interface{}, position int) string {
	if len(pk) == 0 {
		return fmt.Sprintf("row %d", position)
	}
	idx := make(map[string]int, len(columns))
	for i, col := range columns {
		idx[col] = i
	}
	key := ""
	for i, col := range pk {
		if i > 0 {
			key += ","
		}
		key += col + "=" + formatValue(row[idx[col]])
	}
	return key
}

// valuesEqual compares two sampled values across the type differences the
// database drivers introduce: byte slices versus strings, numeric text with
// differing display scale, integer versus float representations of the same
// number, and timestamps with differing zone renderings. Integers compare
// exactly; the float tolerance applies only when a true float is involved,
// so bigint values beyond float64 precision are never conflated.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}

	ia, okA := asInt(a)
	ib, okB := asInt(b)
	if okA && okB {
		return ia == ib
	}

	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	if okA && okB {
		return math.Abs(fa-fb) <= floatTolerance
	}

	sa, okA := asString(a)
	sb, okB := asString(b)
	if okA && okB {
		if sa == sb {
			return true
		}
		// numeric columns arrive as text; 9.99 and 9.990 are the same value.
		// Rat also parses "a/b" fraction syntax, which is not numeric text.
		if !strings.ContainsRune(sa, '/') && !strings.ContainsRune(sb, '/') {
			if ra, ok := new(big.Rat).SetString(sa); ok {
				if rb, ok := new(big.Rat).SetString(sb); ok {
					return ra.Cmp(rb) == 0
				}
			}
		}
		return false
	}

	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int:
		return int64(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// formatValue renders a sampled value for report output.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
