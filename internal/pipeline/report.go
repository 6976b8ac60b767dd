package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// PhaseStatus is the outcome of a phase.
type PhaseStatus string

const (
	PhaseComplete PhaseStatus = "complete"
	PhaseFailed   PhaseStatus = "failed"
)

// Phase records one executed phase.
type Phase struct {
	Name       string      `json:"name" yaml:"name"`
	Status     PhaseStatus `json:"status" yaml:"status"`
	DurationMS int64       `json:"duration_ms" yaml:"duration_ms"`
	Error      string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Report is the audit summary of a run.
type Report struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	Records      int `json:"records" yaml:"records"`
	ExpandedRows int `json:"expanded_rows" yaml:"expanded_rows"`
	// DroppedRecords counts records whose method encoding was blank or
	// malformed and so produced no rows.
	DroppedRecords int `json:"dropped_records" yaml:"dropped_records"`
	Rows           int `json:"rows" yaml:"rows"`

	// Duplicates maps a stage or table to the rows it removed.
	Duplicates map[string]int `json:"duplicates" yaml:"duplicates"`

	NullDates        int `json:"null_dates" yaml:"null_dates"`
	PlaceholderDates int `json:"placeholder_dates" yaml:"placeholder_dates"`
	UnparsableDates  int `json:"unparsable_dates" yaml:"unparsable_dates"`

	MethodEntries     int            `json:"method_entries" yaml:"method_entries"`
	Tables            map[string]int `json:"tables" yaml:"tables"`
	Unresolved        map[string]int `json:"unresolved" yaml:"unresolved"`
	AmbiguousProfiles int            `json:"ambiguous_profiles" yaml:"ambiguous_profiles"`
	// Coerced maps "table.column" to cells nulled by type coercion.
	Coerced map[string]int `json:"coerced,omitempty" yaml:"coerced,omitempty"`
	// Saved maps table names to rows written by the sink.
	Saved map[string]int64 `json:"saved,omitempty" yaml:"saved,omitempty"`

	Phases []Phase `json:"phases" yaml:"phases"`
}

func newReport(runID string) *Report {
	return &Report{
		RunID:      runID,
		StartedAt:  time.Now().UTC(),
		Duplicates: make(map[string]int),
		Tables:     make(map[string]int),
		Unresolved: make(map[string]int),
	}
}

// DurationMS sums the phase durations.
func (r *Report) DurationMS() int64 {
	var total int64
	for _, p := range r.Phases {
		total += p.DurationMS
	}
	return total
}

// JSON encodes the report for run history.
func (r *Report) JSON() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: marshal report")
	}
	return b, nil
}

// FormatReport renders a human-readable summary of a run.
func FormatReport(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Normalization Report: %s\n", r.RunID)
	fmt.Fprintf(&b, "Started: %s\n\n", r.StartedAt.Format(time.RFC3339))

	b.WriteString("## Rows\n")
	fmt.Fprintf(&b, "- Wide records: %d\n", r.Records)
	fmt.Fprintf(&b, "- Records without instances: %d\n", r.DroppedRecords)
	fmt.Fprintf(&b, "- Instance rows: %d\n", r.ExpandedRows)
	fmt.Fprintf(&b, "- Rows after dedupe: %d\n", r.Rows)
	fmt.Fprintf(&b, "- Null dates: %d (%d placeholder, %d unparsable)\n\n",
		r.NullDates, r.PlaceholderDates, r.UnparsableDates)

	b.WriteString("## Tables\n")
	writeCounts(&b, r.Tables)
	if len(r.Saved) > 0 {
		b.WriteString("\n## Saved\n")
		for _, k := range sortedKeys(r.Saved) {
			fmt.Fprintf(&b, "- %s: %d\n", k, r.Saved[k])
		}
	}

	b.WriteString("\n## Duplicates Removed\n")
	writeCounts(&b, r.Duplicates)

	b.WriteString("\n## Unresolved Keys\n")
	writeCounts(&b, r.Unresolved)
	if r.AmbiguousProfiles > 0 {
		fmt.Fprintf(&b, "- ambiguous profile ids: %d\n", r.AmbiguousProfiles)
	}

	if len(r.Coerced) > 0 {
		b.WriteString("\n## Coerced To Null\n")
		writeCounts(&b, r.Coerced)
	}

	b.WriteString("\n## Phases\n")
	for _, p := range r.Phases {
		fmt.Fprintf(&b, "- %s: %s (%dms)\n", p.Name, p.Status, p.DurationMS)
		if p.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", p.Error)
		}
	}
	return b.String()
}

func writeCounts(b *strings.Builder, m map[string]int) {
	if len(m) == 0 {
		b.WriteString("None.\n")
		return
	}
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "- %s: %d\n", k, m[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
