package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D7FF"))

	kindStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFAF00"))

	passStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FF00"))

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))
)

// Report is the final outcome of a comparison run: every difference found,
// in deterministic order, plus the overall verdict.
type Report struct {
	DatabaseA string
	DatabaseB string
	Entries   []DiffEntry
	Pass      bool
}

// NewReport assembles the final report from the structural and data-level
// entries. Structural entries sort ahead of data entries; each group is
// internally ordered by schema, table, kind, and object.
func NewReport(dbA, dbB string, structural, data []DiffEntry) *Report {
	sortEntries(structural)
	sortEntries(data)

	entries := make([]DiffEntry, 0, len(structural)+len(data))
	entries = append(entries, structural...)
	entries = append(entries, data...)

	return &Report{
		DatabaseA: dbA,
		DatabaseB: dbB,
		Entries:   entries,
		Pass:      len(entries) == 0,
	}
}

// HasSamplingErrors reports whether any table's data comparison failed and
// was degraded rather than compared.
func (r *Report) HasSamplingErrors() bool {
	for _, e := range r.Entries {
		if e.Kind == DiffDataSamplingError {
			return true
		}
	}
	return false
}

// Render writes the human-readable report. Rendering the same report twice
// produces identical output.
func (r *Report) Render(w io.Writer) {
	rule := strings.Repeat("━", 80)

	fmt.Fprintln(w, headerStyle.Render(rule))
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("  COMPARISON RESULTS: %s vs %s", r.DatabaseA, r.DatabaseB)))
	fmt.Fprintln(w, headerStyle.Render(rule))

	if r.Pass {
		fmt.Fprintln(w)
		fmt.Fprintln(w, passStyle.Render("✅ Databases are equivalent"))
		return
	}

	byKind := make(map[DiffKind][]DiffEntry)
	for _, entry := range r.Entries {
		byKind[entry.Kind] = append(byKind[entry.Kind], entry)
	}
	for _, kind := range orderedKinds {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, kindStyle.Render(fmt.Sprintf("%s (%d)", kind, len(group))))
		for _, entry := range group {
			fmt.Fprintf(w, "  %s\n", entry.String())
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("❌ Found %d difference(s)", len(r.Entries))))
}
