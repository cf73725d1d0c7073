package cmd

import (
	"fmt"
	"sort"
	"strings"
)

// DiffKind classifies one reported difference.
type DiffKind string

const (
	DiffMissingSchema     DiffKind = "missing-schema"
	DiffExtraSchema       DiffKind = "extra-schema"
	DiffMissingTable      DiffKind = "missing-table"
	DiffExtraTable        DiffKind = "extra-table"
	DiffMissingColumn     DiffKind = "missing-column"
	DiffExtraColumn       DiffKind = "extra-column"
	DiffColumnMismatch    DiffKind = "column-mismatch"
	DiffMissingIndex      DiffKind = "missing-index"
	DiffExtraIndex        DiffKind = "extra-index"
	DiffRowCountMismatch  DiffKind = "row-count-mismatch"
	DiffDataMismatch      DiffKind = "data-mismatch"
	DiffDataSamplingError DiffKind = "data-sampling-error"
)

// orderedKinds lists every kind in report order: schema-level first, then
// table structure, then data.
var orderedKinds = []DiffKind{
	DiffMissingSchema,
	DiffExtraSchema,
	DiffMissingTable,
	DiffExtraTable,
	DiffMissingColumn,
	DiffExtraColumn,
	DiffColumnMismatch,
	DiffMissingIndex,
	DiffExtraIndex,
	DiffRowCountMismatch,
	DiffDataMismatch,
	DiffDataSamplingError,
}

// kindRank orders kinds within one (schema, table) group.
var kindRank = map[DiffKind]int{
	DiffMissingSchema:     0,
	DiffExtraSchema:       1,
	DiffMissingTable:      2,
	DiffExtraTable:        3,
	DiffMissingColumn:     4,
	DiffExtraColumn:       5,
	DiffColumnMismatch:    6,
	DiffMissingIndex:      7,
	DiffExtraIndex:        8,
	DiffRowCountMismatch:  9,
	DiffDataMismatch:      10,
	DiffDataSamplingError: 11,
}

// DiffEntry is one difference between the two databases. "Missing" kinds mean
// present in the first database and absent from the second; "extra" kinds
// mean the reverse.
type DiffEntry struct {
	Kind   DiffKind
	Schema string
	Table  string
	Object string
	Detail string
}

// String renders one entry as a single report line.
func (e DiffEntry) String() string {
	loc := e.Schema
	if e.Table != "" {
		loc = e.Schema + "." + e.Table
	}
	if e.Object != "" {
		loc += " " + e.Object
	}
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Kind, loc, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, loc)
}

// sortEntries orders entries deterministically: schema, table, kind rank,
// then object identifier.
func sortEntries(entries []DiffEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Schema != b.Schema {
			return a.Schema < b.Schema
		}
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if kindRank[a.Kind] != kindRank[b.Kind] {
			return kindRank[a.Kind] < kindRank[b.Kind]
		}
		// Entries without an object summarize their group (e.g. the
		// suppressed-differences marker) and sort after the keyed entries
		if (a.Object == "") != (b.Object == "") {
			return b.Object == ""
		}
		return a.Object < b.Object
	})
}

// CompareSnapshots performs the structural comparison of two normalized
// snapshots: schemas, tables, columns, indexes, and row counts. Data-level
// comparison is the sampler's job.
func CompareSnapshots(a, b *Snapshot) []DiffEntry {
	var entries []DiffEntry

	for _, schema := range a.SchemaNames() {
		if _, ok := b.Schemas[schema]; !ok {
			entries = append(entries, DiffEntry{
				Kind:   DiffMissingSchema,
				Schema: schema,
				Detail: fmt.Sprintf("schema exists in %s but not in %s", a.Database, b.Database),
			})
		}
	}
	for _, schema := range b.SchemaNames() {
		if _, ok := a.Schemas[schema]; !ok {
			entries = append(entries, DiffEntry{
				Kind:   DiffExtraSchema,
				Schema: schema,
				Detail: fmt.Sprintf("schema exists in %s but not in %s", b.Database, a.Database),
			})
		}
	}

	for _, schema := range a.SchemaNames() {
		if _, ok := b.Schemas[schema]; !ok {
			continue
		}

		for _, table := range a.TableNames(schema) {
			if _, ok := b.Schemas[schema][table]; !ok {
				entries = append(entries, DiffEntry{
					Kind:   DiffMissingTable,
					Schema: schema,
					Table:  table,
					Detail: fmt.Sprintf("table exists in %s but not in %s", a.Database, b.Database),
				})
			}
		}
		for _, table := range b.TableNames(schema) {
			if _, ok := a.Schemas[schema][table]; !ok {
				entries = append(entries, DiffEntry{
					Kind:   DiffExtraTable,
					Schema: schema,
					Table:  table,
					Detail: fmt.Sprintf("table exists in %s but not in %s", b.Database, a.Database),
				})
			}
		}

		for _, table := range a.TableNames(schema) {
			tb, ok := b.Schemas[schema][table]
			if !ok {
				continue
			}
			ta := a.Schemas[schema][table]

			entries = append(entries, compareColumns(schema, table, ta, tb, a.Database, b.Database)...)
			entries = append(entries, compareIndexes(schema, table, ta, tb, a.Database, b.Database)...)

			if ta.RowCount != tb.RowCount {
				diff := ta.RowCount - tb.RowCount
				if diff < 0 {
					diff = -diff
				}
				entries = append(entries, DiffEntry{
					Kind:   DiffRowCountMismatch,
					Schema: schema,
					Table:  table,
					Detail: fmt.Sprintf("%s has %d rows, %s has %d rows (difference %d)", a.Database, ta.RowCount, b.Database, tb.RowCount, diff),
				})
			}
		}
	}

	sortEntries(entries)
	return entries
}

func compareColumns(schema, table string, ta, tb *TableMetadata, nameA, nameB string) []DiffEntry {
	colsA := make(map[string]ColumnInfo, len(ta.Columns))
	for _, col := range ta.Columns {
		colsA[col.Name] = col
	}
	colsB := make(map[string]ColumnInfo, len(tb.Columns))
	for _, col := range tb.Columns {
		colsB[col.Name] = col
	}

	names := make([]string, 0, len(colsA)+len(colsB))
	for name := range colsA {
		names = append(names, name)
	}
	for name := range colsB {
		if _, ok := colsA[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var entries []DiffEntry
	for _, name := range names {
		ca, inA := colsA[name]
		cb, inB := colsB[name]

		switch {
		case inA && !inB:
			entries = append(entries, DiffEntry{
				Kind:   DiffMissingColumn,
				Schema: schema,
				Table:  table,
				Object: name,
				Detail: fmt.Sprintf("column exists in %s but not in %s", nameA, nameB),
			})
		case inB && !inA:
			entries = append(entries, DiffEntry{
				Kind:   DiffExtraColumn,
				Schema: schema,
				Table:  table,
				Object: name,
				Detail: fmt.Sprintf("column exists in %s but not in %s", nameB, nameA),
			})
		default:
			var diffs []string
			if ca.DataType != cb.DataType {
				diffs = append(diffs, fmt.Sprintf("type %s vs %s", ca.DataType, cb.DataType))
			}
			if ca.IsNullable != cb.IsNullable {
				diffs = append(diffs, fmt.Sprintf("nullable %t vs %t", ca.IsNullable, cb.IsNullable))
			}
			if ca.IsPrimaryKey != cb.IsPrimaryKey {
				diffs = append(diffs, fmt.Sprintf("primary key %t vs %t", ca.IsPrimaryKey, cb.IsPrimaryKey))
			}
			if len(diffs) > 0 {
				entries = append(entries, DiffEntry{
					Kind:   DiffColumnMismatch,
					Schema: schema,
					Table:  table,
					Object: name,
					Detail: strings.Join(diffs, "; "),
				})
			}
		}
	}
	return entries
}

// compareIndexes matches indexes by signature (ordered column tuple plus
// uniqueness) rather than by name, so a renamed but structurally identical
// index is not a difference. Signatures are compared as multisets to handle
// duplicate indexes.
func compareIndexes(schema, table string, ta, tb *TableMetadata, nameA, nameB string) []DiffEntry {
	countA := make(map[string]int)
	sampleA := make(map[string]IndexInfo)
	for _, ix := range ta.Indexes {
		sig := ix.Signature()
		countA[sig]++
		sampleA[sig] = ix
	}
	countB := make(map[string]int)
	sampleB := make(map[string]IndexInfo)
	for _, ix := range tb.Indexes {
		sig := ix.Signature()
		countB[sig]++
		sampleB[sig] = ix
	}

	sigs := make([]string, 0, len(countA)+len(countB))
	for sig := range countA {
		sigs = append(sigs, sig)
	}
	for sig := range countB {
		if _, ok := countA[sig]; !ok {
			sigs = append(sigs, sig)
		}
	}
	sort.Strings(sigs)

	var entries []DiffEntry
	for _, sig := range sigs {
		for n := countB[sig]; n < countA[sig]; n++ {
			entries = append(entries, DiffEntry{
				Kind:   DiffMissingIndex,
				Schema: schema,
				Table:  table,
				Object: sig,
				Detail: fmt.Sprintf("index on %s (%s in %s) has no structural match in %s", sig, sampleA[sig].Name, nameA, nameB),
			})
		}
		for n := countA[sig]; n < countB[sig]; n++ {
			entries = append(entries, DiffEntry{
				Kind:   DiffExtraIndex,
				Schema: schema,
				Table:  table,
				Object: sig,
				Detail: fmt.Sprintf("index on %s (%s in %s) has no structural match in %s", sig, sampleB[sig].Name, nameB, nameA),
			})
		}
	}
	return entries
}
