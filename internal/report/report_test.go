package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/coachdb/internal/analyze"
	"github.com/mesh-intelligence/coachdb/internal/backup"
	"github.com/mesh-intelligence/coachdb/internal/migrate"
	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/reconcile"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

func TestTableWrite(t *testing.T) {
	table := NewTable("Collection", "Documents")
	table.AddRow("clients", "2")
	table.AddRow("exercises")
	table.Footer = []string{"Total", "2"}

	assert.Equal(t, []string{"exercises", ""}, table.Rows[1], "short rows are padded")

	var buf bytes.Buffer
	require.NoError(t, table.Write(&buf))

	out := buf.String()
	assert.Contains(t, out, "COLLECTION")
	assert.Contains(t, out, "DOCUMENTS")
	assert.Contains(t, out, "clients")
	assert.Contains(t, out, "TOTAL")
}

func TestFieldsWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Mutation(mutate.Result{Planned: 7, Committed: 7, Chunks: 1}).Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "Planned")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "Dry run")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, mutate.Result{Planned: 2, DryRun: true}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, true, got["dry_run"])
	assert.Equal(t, float64(2), got["planned"])
}

func TestDocumentsTruncatesData(t *testing.T) {
	long := strings.Repeat("x", 100)
	table := Documents([]types.Document{
		{Collection: "clients", ID: "c1", Data: map[string]any{"name": "Ana"}},
		{Collection: "clients", ID: "c2", Data: map[string]any{"bio": long}},
	})
	rows := table.Rows
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"clients/c1", `{"name":"Ana"}`}, rows[0])
	assert.Len(t, []rune(rows[1][1]), maxCell)
	assert.True(t, strings.HasSuffix(rows[1][1], "..."))
}

func TestAnalysis(t *testing.T) {
	table := Analysis([]analyze.CollectionStats{
		{Target: "clients", Documents: 2, Fields: []analyze.FieldStats{
			{Name: "name", Present: 2, Types: []string{"string"}},
			{Name: "workouts", Present: 1, Types: []string{"array"}, ArrayMax: 3, ArrayTotal: 3},
		}},
		{Target: "empty", Documents: 0},
	})
	assert.Equal(t, [][]string{
		{"clients", "2", "name", "2", "string", "", ""},
		{"clients", "2", "workouts", "1", "array", "3", "3"},
		{"empty", "0", "", "", "", "", ""},
	}, table.Rows)
}

func TestSubcollections(t *testing.T) {
	table := Subcollections([]analyze.CollectionStats{
		{Target: "clients", Subcollections: map[string]int{"workouts": 2, "history": 1}},
	})
	assert.Equal(t, [][]string{
		{"clients", "history", "1"},
		{"clients", "workouts", "2"},
	}, table.Rows)
}

func TestOrphanTables(t *testing.T) {
	r := &reconcile.Report{
		Authorities: []reconcile.AuthorityReport{{Collection: "clients", Documents: 3, Excluded: 1, Reachable: 2}},
		Relations: []reconcile.RelationReport{
			{Relation: "workouts", Target: "workouts", References: "clients", Scanned: 4, Unlinked: 1, Orphans: []reconcile.Orphan{
				{Document: types.Document{Collection: "workouts", ID: "w3"}, Relation: "workouts", Action: "delete", Cascade: true, ForeignKey: "clientId", Dangling: []string{"c404"}},
			}},
			{Relation: "history", Target: "history", References: "clients", Scanned: 1, Orphans: []reconcile.Orphan{
				{Document: types.Document{Collection: "history", ID: "h9"}, Relation: "history", Action: "unset", ForeignKey: "clientId", Missing: true},
			}},
		},
	}

	assert.Equal(t, [][]string{
		{"(authority)", "clients", "", "3", "1 excluded", ""},
		{"workouts", "workouts", "clients", "4", "1", "1"},
		{"history", "history", "clients", "1", "0", "1"},
	}, Relations(r).Rows)
	assert.Equal(t, []string{"Total", "", "", "5", "1", "2"}, Relations(r).Footer)

	assert.Equal(t, [][]string{
		{"workouts", "workouts/w3", "delete+cascade", "c404"},
		{"history", "history/h9", "unset", "(missing clientId)"},
	}, Orphans(r).Rows)
}

func TestOps(t *testing.T) {
	table := Ops([]types.WriteOp{
		types.DeleteOp("workouts", "w3"),
		types.SetOp(types.Document{Collection: "workouts", ID: "w1", Data: map[string]any{"clientId": "c1"}}),
	})
	assert.Equal(t, [][]string{
		{"delete", "workouts/w3", ""},
		{"set", "workouts/w1", `{"clientId":"c1"}`},
	}, table.Rows)
}

func TestMigration(t *testing.T) {
	assert.Equal(t, Fields{{"Rule", "r"}, {"Status", "already complete"}},
		Migration(migrate.Result{Rule: "r", AlreadyComplete: true}))

	pairs := Migration(migrate.Result{Rule: "r", RunID: "id", Planned: migrate.Planned{Parents: 2, Children: 5}})
	assert.Contains(t, pairs, [2]string{"Parents", "2"})
	assert.Contains(t, pairs, [2]string{"Children", "5"})
	assert.Contains(t, pairs, [2]string{"Committed", "0"})

	problems := Problems([]migrate.Problem{{Path: "clients/c3", Index: 1, Reason: "element is string, not an object"}})
	assert.Equal(t, [][]string{{"clients/c3", "1", "element is string, not an object"}}, problems.Rows)
}

func TestBackup(t *testing.T) {
	table := Backup(backup.Summary{Documents: 3, Collections: map[string]int{"exercises": 1, "clients": 2}})
	assert.Equal(t, [][]string{{"clients", "2"}, {"exercises", "1"}}, table.Rows)
	assert.Equal(t, []string{"Total", "3"}, table.Footer)
}

func TestPrintChanges(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintChanges(&buf, []mutate.Change{
		{Op: types.DeleteOp("workouts", "w3"), Diff: "-  gone\n"},
		{Op: types.SetOp(types.Document{Collection: "workouts", ID: "w1", Data: map[string]any{}})},
	}))
	assert.Equal(t, "delete workouts/w3\n-  gone\nset workouts/w1\n  (no change)\n", buf.String())
}
