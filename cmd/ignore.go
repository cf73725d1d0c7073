package cmd

// wildcardTable applies an ignore rule to every table.
const wildcardTable = "*"

// IgnoreRules resolves the configured ignore lists into the effective set of
// ignored columns per table. Per-table entries are unioned with the wildcard
// entry, never replace it. The zero value ignores nothing.
type IgnoreRules struct {
	global   map[string]struct{}
	perTable map[string]map[string]struct{}
}

// NewIgnoreRules builds the resolver from the raw ignore_tables_columns
// config mapping. A nil or empty mapping yields rules that ignore nothing.
func NewIgnoreRules(config map[string][]string) *IgnoreRules {
	rules := &IgnoreRules{
		global:   make(map[string]struct{}),
		perTable: make(map[string]map[string]struct{}),
	}

	for table, columns := range config {
		if table == wildcardTable {
			for _, col := range columns {
				rules.global[col] = struct{}{}
			}
			continue
		}
		set := make(map[string]struct{}, len(columns))
		for _, col := range columns {
			set[col] = struct{}{}
		}
		rules.perTable[table] = set
	}

	return rules
}

// Columns returns the effective ignored-column set for a table: the wildcard
// set unioned with the table's own entry. Tables absent from the config get
// the wildcard set alone.
func (r *IgnoreRules) Columns(table string) map[string]struct{} {
	merged := make(map[string]struct{}, len(r.global)+len(r.perTable[table]))
	for col := range r.global {
		merged[col] = struct{}{}
	}
	for col := range r.perTable[table] {
		merged[col] = struct{}{}
	}
	return merged
}

// Ignored reports whether a single column is ignored for a table.
func (r *IgnoreRules) Ignored(table, column string) bool {
	if _, ok := r.global[column]; ok {
		return true
	}
	_, ok := r.perTable[table][column]
	return ok
}

// GlobalCount returns the number of wildcard ignore columns; TableCount the
// number of tables with their own rules. Used for the config summary log.
func (r *IgnoreRules) GlobalCount() int { return len(r.global) }

func (r *IgnoreRules) TableCount() int { return len(r.perTable) }
