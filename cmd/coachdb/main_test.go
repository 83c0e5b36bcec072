package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/migrate"
	"github.com/mesh-intelligence/coachdb/internal/reconcile"
	"github.com/mesh-intelligence/coachdb/internal/sqlite"
	"github.com/mesh-intelligence/coachdb/internal/storetest"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

var doc = storetest.Doc

// testEnv is an isolated config and data directory pair.
type testEnv struct {
	configDir string
	dataDir   string
}

func newEnv(t *testing.T) testEnv {
	t.Helper()
	for _, k := range []string{"COACHDB_BACKEND", "COACHDB_BATCH_SIZE", "COACHDB_LOG_LEVEL", "COACHDB_PLAN"} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	return testEnv{configDir: filepath.Join(dir, "config"), dataDir: filepath.Join(dir, "data")}
}

// run executes the CLI in-process and returns stdout.
func (e testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config-dir", e.configDir, "--data-dir", e.dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// seed writes docs directly into the environment's SQLite database.
func (e testEnv) seed(t *testing.T, docs ...types.Document) {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: e.dataDir}))
	storetest.Seed(t, b, docs...)
	require.NoError(t, b.Detach())
}

// get reads one document directly from the database.
func (e testEnv) get(t *testing.T, collection, id string) (types.Document, error) {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: e.dataDir}))
	defer b.Detach()
	return b.Get(context.Background(), collection, id)
}

func TestVersion(t *testing.T) {
	env := newEnv(t)
	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "coachdb v"+cli.Version)
	assert.Contains(t, out, cli.ModulePath)
}

func TestInit(t *testing.T) {
	env := newEnv(t)
	out, err := env.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "coachdb initialized successfully")

	assert.FileExists(t, filepath.Join(env.configDir, "config.yaml"))
	assert.FileExists(t, filepath.Join(env.configDir, "plan.yaml"))
	assert.FileExists(t, filepath.Join(env.dataDir, sqlite.DatabaseFile))

	// Idempotent, and an edited plan is kept.
	planPath := filepath.Join(env.configDir, "plan.yaml")
	custom := "authorities:\n  - collection: coaches\n"
	require.NoError(t, os.WriteFile(planPath, []byte(custom), 0o644))
	_, err = env.run(t, "init")
	require.NoError(t, err)
	data, err := os.ReadFile(planPath)
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}

func TestDocumentCommands(t *testing.T) {
	env := newEnv(t)

	out, err := env.run(t, "set", "clients", "c1", `{"name":"Ana","age":31}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"name": "Ana"`)

	_, err = env.run(t, "set", "clients", "c2", `{"name":"Bea","status":"archived"}`)
	require.NoError(t, err)
	_, err = env.run(t, "set", "clients/c1/workouts", "w1", `{"title":"Legs"}`)
	require.NoError(t, err)

	out, err = env.run(t, "get", "clients", "c1")
	require.NoError(t, err)
	var got types.Document
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "clients/c1", got.Path())
	assert.Equal(t, float64(31), got.Data["age"])

	out, err = env.run(t, "--json", "list", "clients", "status=archived")
	require.NoError(t, err)
	var listed []types.Document
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "c2", listed[0].ID)

	out, err = env.run(t, "list", "group:workouts")
	require.NoError(t, err)
	assert.Contains(t, out, "clients/c1/workouts/w1")

	_, err = env.run(t, "delete", "clients", "c1", "--recursive", "--yes")
	require.NoError(t, err)
	_, err = env.get(t, "clients/c1/workouts", "w1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = env.run(t, "get", "clients", "c1")
	require.Error(t, err)
	assert.Equal(t, cli.ExitUserError, cli.Code(err))
}

func TestListNullFilter(t *testing.T) {
	env := newEnv(t)
	env.seed(t,
		doc("clients", "c1", "coach", nil),
		doc("clients", "c2", "coach", true),
		doc("clients", "c3", "coach", "k1"),
	)

	out, err := env.run(t, "--json", "list", "clients", "coach=null")
	require.NoError(t, err)
	var listed []types.Document
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "c1", listed[0].ID)
}

func TestDeleteRecursiveWithoutParent(t *testing.T) {
	env := newEnv(t)
	env.seed(t,
		doc("clients/c404/workouts", "w1", "title", "Arms"),
		doc("clients/c404/workouts/w1/sets", "s1", "reps", 8),
	)

	_, err := env.run(t, "delete", "clients", "c404")
	require.Error(t, err)
	assert.Equal(t, cli.ExitUserError, cli.Code(err))

	out, err := env.run(t, "delete", "clients", "c404", "-r", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted clients/c404")
	for _, p := range [][2]string{{"clients/c404/workouts", "w1"}, {"clients/c404/workouts/w1/sets", "s1"}} {
		_, err := env.get(t, p[0], p[1])
		assert.ErrorIs(t, err, types.ErrNotFound, p[0]+"/"+p[1])
	}

	_, err = env.run(t, "delete", "clients", "c404", "-r", "--yes")
	require.Error(t, err)
	assert.Equal(t, cli.ExitUserError, cli.Code(err))
}

func TestOrphansCleanDiffBeforeApplying(t *testing.T) {
	env := newEnv(t)
	env.seed(t, rosterWithOrphans()...)

	out, err := env.run(t, "orphans", "clean", "--diff", "--yes", "--no-backup")
	require.NoError(t, err)
	assert.Contains(t, out, "delete history/h1")
	_, err = env.get(t, "history", "h1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestUserErrors(t *testing.T) {
	env := newEnv(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing args", []string{"get", "clients"}},
		{"bad json", []string{"set", "clients", "c1", "[1,2]"}},
		{"document path as collection", []string{"set", "clients/c1", "x", "{}"}},
		{"bad filter", []string{"list", "clients", "noequals"}},
		{"unknown flag", []string{"list", "clients", "--bogus"}},
		{"unknown migration", []string{"migrate", "nope", "--dry-run"}},
		{"firestore without project", []string{"--backend", "firestore", "list", "clients"}},
		{"missing backup file", []string{"restore", "absent.jsonl", "--yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, cli.ExitUserError, cli.Code(err), "error: %v", err)
		})
	}
}

func TestInvalidConfig(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.MkdirAll(env.configDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.configDir, "config.yaml"),
		[]byte("backend: sqlite\nbatch_size: 900\n"), 0o644))

	_, err := env.run(t, "list", "clients")
	require.Error(t, err)
	assert.Equal(t, cli.ExitUserError, cli.Code(err))
	assert.Contains(t, err.Error(), "batch_size")
}

func TestConfigFromEnvironment(t *testing.T) {
	env := newEnv(t)
	t.Setenv("COACHDB_BATCH_SIZE", "0")
	_, err := env.run(t, "list", "clients")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func rosterWithOrphans() []types.Document {
	return []types.Document{
		doc("clients", "c1", "name", "Ana"),
		doc("clients", "c2", "name", "Bea", "status", "archived"),
		doc("exercises", "e1", "name", "Squat"),
		doc("workouts", "w1", "clientId", "c1", "exerciseIds", []any{"e1"}),
		doc("workouts", "w2", "clientId", "c2"),
		doc("workouts/w2/sets", "s1", "reps", 5),
		doc("history", "h1", "clientId", "c9"),
	}
}

func TestOrphansCheckAndClean(t *testing.T) {
	env := newEnv(t)
	env.seed(t, rosterWithOrphans()...)

	out, err := env.run(t, "--json", "orphans", "check")
	require.NoError(t, err)
	var rep reconcile.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.OrphanCount())

	_, err = env.run(t, "orphans", "check", "--strict")
	require.Error(t, err)
	assert.Equal(t, cli.ExitUserError, cli.Code(err))

	out, err = env.run(t, "orphans", "clean", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "workouts/w2/sets/s1")
	_, err = env.get(t, "workouts", "w2")
	require.NoError(t, err, "dry run must not delete")

	out, err = env.run(t, "orphans", "clean", "--dry-run", "--diff")
	require.NoError(t, err)
	assert.Contains(t, out, "delete history/h1")

	out, err = env.run(t, "--json", "orphans", "clean", "--yes")
	require.NoError(t, err)
	var cleaned cleanOutput
	require.NoError(t, json.Unmarshal([]byte(out), &cleaned))
	assert.Equal(t, 3, cleaned.Result.Committed)

	for _, p := range [][2]string{{"workouts", "w2"}, {"workouts/w2/sets", "s1"}, {"history", "h1"}} {
		_, err := env.get(t, p[0], p[1])
		assert.ErrorIs(t, err, types.ErrNotFound, p[0]+"/"+p[1])
	}
	_, err = env.get(t, "workouts", "w1")
	require.NoError(t, err)

	backups, err := filepath.Glob(filepath.Join(env.dataDir, "backups", "orphans-clean-*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	_, err = env.run(t, "orphans", "check", "--strict")
	require.NoError(t, err)

	out, err = env.run(t, "orphans", "clean", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "No orphaned documents found")
}

func TestMigrate(t *testing.T) {
	env := newEnv(t)
	env.seed(t,
		doc("clients", "c1", "name", "Ana", "workouts", []any{
			map[string]any{"id": "x1", "title": "Legs"},
			map[string]any{"title": "Arms"},
		}),
		doc("clients", "c2", "name", "Bea"),
	)

	out, err := env.run(t, "migrate", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Children")
	parent, err := env.get(t, "clients", "c1")
	require.NoError(t, err)
	assert.Contains(t, parent.Data, "workouts")

	out, err = env.run(t, "--json", "migrate", "--yes")
	require.NoError(t, err)
	var results []migrate.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Planned.Children)
	assert.Equal(t, 3, results[0].Writes.Committed)

	child, err := env.get(t, "clients/c1/workouts", "x1")
	require.NoError(t, err)
	assert.Equal(t, "c1", child.Data["clientId"])
	assert.Equal(t, int64(0), child.Data["order"])
	parent, err = env.get(t, "clients", "c1")
	require.NoError(t, err)
	assert.NotContains(t, parent.Data, "workouts")

	out, err = env.run(t, "migrate", "workouts-to-subcollections", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "already complete")
}

func TestBackupAndRestore(t *testing.T) {
	env := newEnv(t)
	env.seed(t, rosterWithOrphans()...)
	file := filepath.Join(t.TempDir(), "snapshot.jsonl")

	out, err := env.run(t, "backup", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote 7 documents")

	other := newEnv(t)
	out, err = other.run(t, "--json", "restore", file, "--only", "workouts", "--yes")
	require.NoError(t, err)
	var restored restoreOutput
	require.NoError(t, json.Unmarshal([]byte(out), &restored))
	assert.Equal(t, 3, restored.Result.Committed)

	got, err := other.get(t, "workouts/w2/sets", "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Data["reps"])
	_, err = other.get(t, "clients", "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	out, err = other.run(t, "restore", file, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run")
	_, err = other.get(t, "clients", "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
