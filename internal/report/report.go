package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/coachdb/internal/analyze"
	"github.com/mesh-intelligence/coachdb/internal/backup"
	"github.com/mesh-intelligence/coachdb/internal/migrate"
	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/reconcile"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// maxCell truncates long cell values such as document data.
const maxCell = 60

// Documents lists documents with their data as compact JSON.
func Documents(docs []types.Document) *Table {
	t := NewTable("Path", "Data")
	for _, d := range docs {
		t.AddRow(d.Path(), truncate(compact(d.Data)))
	}
	return t
}

// Analysis lists one row per collection field.
func Analysis(stats []analyze.CollectionStats) *Table {
	t := NewTable("Collection", "Docs", "Field", "Present", "Types", "Array max", "Array total")
	for _, s := range stats {
		docs := strconv.Itoa(s.Documents)
		if len(s.Fields) == 0 {
			t.AddRow(s.Target, docs)
		}
		for _, f := range s.Fields {
			arrMax, arrTotal := "", ""
			if f.ArrayTotal > 0 || slices.Contains(f.Types, analyze.TypeArray) {
				arrMax, arrTotal = strconv.Itoa(f.ArrayMax), strconv.Itoa(f.ArrayTotal)
			}
			t.AddRow(s.Target, docs, f.Name, strconv.Itoa(f.Present), strings.Join(f.Types, ","), arrMax, arrTotal)
		}
	}
	return t
}

// Subcollections lists the subcollection IDs seen under each collection.
func Subcollections(stats []analyze.CollectionStats) *Table {
	t := NewTable("Collection", "Subcollection", "Parents")
	for _, s := range stats {
		ids := make([]string, 0, len(s.Subcollections))
		for id := range s.Subcollections {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			t.AddRow(s.Target, id, strconv.Itoa(s.Subcollections[id]))
		}
	}
	return t
}

// Relations summarizes each relation of an orphan report.
func Relations(r *reconcile.Report) *Table {
	t := NewTable("Relation", "Collection", "References", "Scanned", "Unlinked", "Orphans")
	for _, a := range r.Authorities {
		t.AddRow("(authority)", a.Collection, "", strconv.Itoa(a.Documents),
			fmt.Sprintf("%d excluded", a.Excluded))
	}
	var scanned, unlinked int
	for _, rr := range r.Relations {
		scanned += rr.Scanned
		unlinked += rr.Unlinked
		t.AddRow(rr.Relation, rr.Target, rr.References, strconv.Itoa(rr.Scanned),
			strconv.Itoa(rr.Unlinked), strconv.Itoa(len(rr.Orphans)))
	}
	t.Footer = []string{"Total", "", "", strconv.Itoa(scanned), strconv.Itoa(unlinked), strconv.Itoa(r.OrphanCount())}
	return t
}

// Orphans lists every orphan finding.
func Orphans(r *reconcile.Report) *Table {
	t := NewTable("Relation", "Document", "Action", "Dangling")
	for _, o := range r.Orphans() {
		action := o.Action
		if o.Cascade && action == plan.ActionDelete {
			action = "delete+cascade"
		}
		dangling := strings.Join(o.Dangling, ",")
		if o.Missing {
			dangling = "(missing " + o.ForeignKey + ")"
		}
		t.AddRow(o.Relation, o.Document.Path(), action, dangling)
	}
	return t
}

// Ops lists planned write operations.
func Ops(ops []types.WriteOp) *Table {
	t := NewTable("Op", "Path", "Data")
	for _, op := range ops {
		data := ""
		if op.Kind == types.OpSet {
			data = truncate(compact(op.Data))
		}
		t.AddRow(op.Kind, op.Path(), data)
	}
	return t
}

// Mutation summarizes a mutator result.
func Mutation(res mutate.Result) Fields {
	return Fields{
		{"Planned", strconv.Itoa(res.Planned)},
		{"Sets", strconv.Itoa(res.Sets)},
		{"Deletes", strconv.Itoa(res.Deletes)},
		{"Committed", strconv.Itoa(res.Committed)},
		{"Chunks", strconv.Itoa(res.Chunks)},
		{"Dry run", strconv.FormatBool(res.DryRun)},
	}
}

// Migration summarizes a migration run.
func Migration(res migrate.Result) Fields {
	f := Fields{{"Rule", res.Rule}}
	if res.AlreadyComplete {
		f.Add("Status", "already complete")
		return f
	}
	f.Add("Run", res.RunID)
	f.Add("Scanned", strconv.Itoa(res.Planned.Scanned))
	f.Add("Parents", strconv.Itoa(res.Planned.Parents))
	f.Add("Children", strconv.Itoa(res.Planned.Children))
	f.Add("Skipped", strconv.Itoa(res.Planned.Skipped))
	f.Add("Problems", strconv.Itoa(len(res.Planned.Problems)))
	return append(f, Mutation(res.Writes)...)
}

// Problems lists elements a migration could not move.
func Problems(problems []migrate.Problem) *Table {
	t := NewTable("Document", "Index", "Reason")
	for _, p := range problems {
		t.AddRow(p.Path, strconv.Itoa(p.Index), p.Reason)
	}
	return t
}

// Backup summarizes a backup file.
func Backup(sum backup.Summary) *Table {
	t := NewTable("Collection", "Documents")
	names := make([]string, 0, len(sum.Collections))
	for c := range sum.Collections {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		t.AddRow(c, strconv.Itoa(sum.Collections[c]))
	}
	t.Footer = []string{"Total", strconv.Itoa(sum.Documents)}
	return t
}

// PrintChanges writes each previewed change followed by its diff.
func PrintChanges(w io.Writer, changes []mutate.Change) error {
	for _, c := range changes {
		if _, err := fmt.Fprintf(w, "%s %s\n", c.Op.Kind, c.Op.Path()); err != nil {
			return err
		}
		if c.Diff == "" {
			if _, err := fmt.Fprintln(w, "  (no change)"); err != nil {
				return err
			}
			continue
		}
		if _, err := io.WriteString(w, c.Diff); err != nil {
			return err
		}
	}
	return nil
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxCell {
		return s
	}
	return string(r[:maxCell-3]) + "..."
}
