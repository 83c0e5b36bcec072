// Shared helpers for coachdb CLI commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/internal/backup"
	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/mutate"
	"github.com/mesh-intelligence/coachdb/internal/paths"
	"github.com/mesh-intelligence/coachdb/internal/plan"
	"github.com/mesh-intelligence/coachdb/internal/report"
	"github.com/mesh-intelligence/coachdb/internal/scan"
	"github.com/mesh-intelligence/coachdb/pkg/docstore"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

// userArgs marks positional-argument errors as user errors.
func userArgs(fn cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return cli.UserError(fn(cmd, args))
	}
}

// commandContext applies the configured timeout to the command's context.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// storeConfig returns the backend configuration for docstore.Open.
func (a *app) storeConfig() types.Config {
	return types.Config{
		Backend:         a.cfg.Backend,
		DataDir:         a.dataDir,
		ProjectID:       a.cfg.ProjectID,
		CredentialsFile: a.cfg.CredentialsFile,
		DatabaseID:      a.cfg.DatabaseID,
	}
}

// openStore attaches the configured backend. The caller must Detach it.
func (a *app) openStore(ctx context.Context) (types.Store, error) {
	store, err := docstore.Open(ctx, a.storeConfig(), a.logger)
	if err != nil {
		if cli.Code(err) == cli.ExitUserError {
			return nil, err
		}
		return nil, cli.SystemError(fmt.Errorf("open %s store: %w", a.cfg.Backend, err))
	}
	return store, nil
}

// planPath returns the resolved plan file location.
func (a *app) planPath() string {
	return paths.ResolvePlanFile(a.cfg.Plan, a.configDir)
}

// loadPlan reads the plan file, falling back to the built-in plan when the
// file does not exist.
func (a *app) loadPlan(override string) (*plan.Plan, error) {
	path := override
	if path == "" {
		path = a.planPath()
	}
	p, err := plan.Load(path)
	if errors.Is(err, fs.ErrNotExist) && override == "" {
		a.logger.Debug("plan file not found, using built-in plan", zap.String("path", path))
		return plan.Default(), nil
	}
	if err != nil {
		return nil, cli.UserError(err)
	}
	return p, nil
}

func (a *app) scanner(store types.Store) *scan.Scanner {
	return &scan.Scanner{Store: store, Concurrency: a.cfg.ScanConcurrency, Logger: a.logger}
}

func (a *app) mutator(store types.Store, dryRun bool) *mutate.Mutator {
	return &mutate.Mutator{Store: store, ChunkSize: a.cfg.BatchSize, DryRun: dryRun, Logger: a.logger}
}

// autoBackup saves targets to a timestamped file in the backup directory
// before a destructive command.
func (a *app) autoBackup(ctx context.Context, cmd *cobra.Command, store types.Store, label string, targets []scan.Target, recursive bool) error {
	path := backup.AutoPath(paths.ResolveBackupDir(a.cfg.BackupDir, a.dataDir), label, time.Now())
	sum, err := backup.Write(ctx, a.scanner(store), path, targets, recursive)
	if err != nil {
		return cli.SystemError(fmt.Errorf("backup before %s: %w", label, err))
	}
	if !a.flagJSON {
		fmt.Fprintf(cmd.ErrOrStderr(), "Backed up %d documents to %s\n", sum.Documents, sum.Path)
	}
	return nil
}

// confirm asks before a destructive operation unless yes is set.
func confirm(cmd *cobra.Command, yes bool, label string) error {
	c := cli.Confirmer{
		Yes:    yes,
		Stdin:  io.NopCloser(cmd.InOrStdin()),
		Stdout: nopWriteCloser{cmd.ErrOrStderr()},
	}
	return c.Confirm(label)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// output writes data as JSON in --json mode, otherwise calls table.
func (a *app) output(cmd *cobra.Command, data any, table func(w io.Writer) error) error {
	if a.flagJSON {
		return report.PrintJSON(cmd.OutOrStdout(), data)
	}
	return table(cmd.OutOrStdout())
}

// parseTargets parses collection paths and "group:<id>" arguments.
func parseTargets(args []string) ([]scan.Target, error) {
	out := make([]scan.Target, 0, len(args))
	for _, arg := range args {
		t, err := scan.ParseTarget(arg)
		if err != nil {
			return nil, cli.UserError(err)
		}
		out = append(out, t)
	}
	return out, nil
}

// rootTargets returns every root collection of store.
func rootTargets(ctx context.Context, store types.Store) ([]scan.Target, error) {
	ids, err := store.Collections(ctx, "")
	if err != nil {
		return nil, cli.SystemError(fmt.Errorf("list collections: %w", err))
	}
	out := make([]scan.Target, 0, len(ids))
	for _, id := range ids {
		out = append(out, scan.Collection(id))
	}
	return out, nil
}

// isNotFound returns true if the error wraps ErrNotFound.
func isNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}

// isNotExist returns true if the error wraps fs.ErrNotExist.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
