// Root command for the coachdb CLI.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/internal/logging"
	"github.com/mesh-intelligence/coachdb/internal/paths"
)

// app holds global flag values and the state loaded before each command.
type app struct {
	flagConfigDir string
	flagDataDir   string
	flagBackend   string
	flagLogLevel  string
	flagJSON      bool

	configDir string
	dataDir   string
	cfg       settings
	logger    *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "coachdb",
		Short: "coachdb administers the workout application's document database",
		Long: `coachdb analyzes, reconciles, migrates, backs up and restores the
collections of the workout application (clients, exercises, workouts,
assignments, history). It works against a managed Firestore database or a
local SQLite copy.`,
		Version:       cli.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir/coachdb)")
	pf.StringVar(&a.flagDataDir, "data-dir", "", "local database directory (default: $(CWD)/.coachdb-db)")
	pf.StringVar(&a.flagBackend, "backend", "", "document store backend: sqlite or firestore")
	pf.StringVar(&a.flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.flagJSON, "json", false, "output as JSON")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return cli.UserError(err)
	})

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newSetCmd(a),
		newDeleteCmd(a),
		newAnalyzeCmd(a),
		newOrphansCmd(a),
		newMigrateCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
	)
	return root
}

// load resolves directories, reads config.yaml and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flagConfigDir)
	if err != nil {
		return cli.SystemError(fmt.Errorf("resolve config dir: %w", err))
	}
	cfg, err := loadConfig(configDir, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	dataDir, err := paths.ResolveDataDir(a.flagDataDir, cfg.DataDir)
	if err != nil {
		return cli.SystemError(fmt.Errorf("resolve data dir: %w", err))
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cli.UserError(err)
	}

	a.configDir = configDir
	a.dataDir = dataDir
	a.cfg = cfg
	a.logger = logger.With(zap.String("backend", cfg.Backend))
	a.logger.Debug("configuration loaded",
		zap.String("config_dir", configDir), zap.String("data_dir", dataDir))
	return nil
}
