package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Comparer drives one full comparison run between two databases sharing a
// connection endpoint.
type Comparer struct {
	config *Config
	logger *slog.Logger
}

// NewComparer returns a comparer for the given validated configuration.
func NewComparer(config *Config, logger *slog.Logger) *Comparer {
	return &Comparer{config: config, logger: logger}
}

// tableTask identifies one table whose rows both sides will sample.
type tableTask struct {
	schema   string
	table    string
	ta       *TableMetadata
	tb       *TableMetadata
	skipCols map[string]struct{}
}

// Run executes the comparison: introspect both databases, diff the structure,
// then (when enabled) sample and diff row content table by table. Structural
// failures are fatal; per-table sampling failures degrade into report
// entries.
func (c *Comparer) Run(ctx context.Context) (*Report, error) {
	rules := NewIgnoreRules(c.config.IgnoreTablesColumns)

	c.logger.Info("Starting database comparison",
		"database_a", c.config.DatabaseA,
		"database_b", c.config.DatabaseB,
		"host", c.config.Connection.Host,
		"rows_to_compare", c.config.NumRowsToCompare,
		"workers", c.config.Workers,
		"ignored_global_columns", rules.GlobalCount(),
		"ignored_table_rules", rules.TableCount())

	c.logger.Info("[1/6] Connecting to databases")
	inspA, err := OpenInspector(ctx, c.config.Connection, c.config.DatabaseA)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.config.DatabaseA, err)
	}
	defer inspA.Close()

	inspB, err := OpenInspector(ctx, c.config.Connection, c.config.DatabaseB)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.config.DatabaseB, err)
	}
	defer inspB.Close()

	c.logger.Info("[2/6] Reading metadata", "database", c.config.DatabaseA)
	snapA, err := BuildSnapshot(ctx, inspA, rules)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", c.config.DatabaseA, err)
	}

	c.logger.Info("[3/6] Reading metadata", "database", c.config.DatabaseB)
	snapB, err := BuildSnapshot(ctx, inspB, rules)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", c.config.DatabaseB, err)
	}

	c.logger.Info("[4/6] Comparing structure")
	structural := CompareSnapshots(snapA, snapB)
	c.logger.Info("Structural comparison complete", "differences", len(structural))

	var data []DiffEntry
	if c.config.NumRowsToCompare > 0 {
		c.logger.Info("[5/6] Comparing row content", "rows_per_table", c.config.NumRowsToCompare)
		data = c.compareData(ctx, inspA, inspB, snapA, snapB, structural)
	} else {
		c.logger.Info("[5/6] Row content comparison disabled")
	}

	c.logger.Info("[6/6] Building report")
	report := NewReport(snapA.Database, snapB.Database, structural, data)
	if report.Pass {
		c.logger.Info("Databases are equivalent")
	} else {
		c.logger.Warn("Databases differ", "differences", len(report.Entries))
	}
	return report, nil
}

// compareData distributes the tables present on both sides across a fixed
// pool of workers, each sampling and comparing one table at a time.
func (c *Comparer) compareData(ctx context.Context, inspA, inspB *Inspector, snapA, snapB *Snapshot, structural []DiffEntry) []DiffEntry {
	skip := mismatchedColumns(structural)
	sampler := NewSampler(inspA, inspB, c.config.NumRowsToCompare, c.logger)

	tasks := make([]tableTask, 0)
	for _, schema := range snapA.SchemaNames() {
		tablesB, ok := snapB.Schemas[schema]
		if !ok {
			continue
		}
		for _, table := range snapA.TableNames(schema) {
			tb, ok := tablesB[table]
			if !ok {
				continue
			}
			tasks = append(tasks, tableTask{
				schema:   schema,
				table:    table,
				ta:       snapA.Schemas[schema][table],
				tb:       tb,
				skipCols: skip[schema+"."+table],
			})
		}
	}

	todo := make(chan tableTask)
	results := make(chan []DiffEntry, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range todo {
				results <- sampler.CompareTable(ctx, task.schema, task.table, task.ta, task.tb, task.skipCols)
			}
		}()
	}

	for _, task := range tasks {
		todo <- task
	}
	close(todo)
	wg.Wait()
	close(results)

	var entries []DiffEntry
	for batch := range results {
		entries = append(entries, batch...)
	}
	return entries
}

// mismatchedColumns indexes the column-mismatch entries by schema.table so
// the sampler can exclude type-divergent columns from value comparison.
func mismatchedColumns(structural []DiffEntry) map[string]map[string]struct{} {
	skip := make(map[string]map[string]struct{})
	for _, entry := range structural {
		if entry.Kind != DiffColumnMismatch {
			continue
		}
		key := entry.Schema + "." + entry.Table
		if skip[key] == nil {
			skip[key] = make(map[string]struct{})
		}
		skip[key][entry.Object] = struct{}{}
	}
	return skip
}
