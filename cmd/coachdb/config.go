// Config loading for the coachdb CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/coachdb/internal/cli"
	"github.com/mesh-intelligence/coachdb/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "COACHDB"

	cfgKeyBackend           = "backend"
	cfgKeyDataDir           = "data_dir"
	cfgKeyProjectID         = "project_id"
	cfgKeyDatabaseID        = "database_id"
	cfgKeyCredentialsFile   = "credentials_file"
	cfgKeyBatchSize         = "batch_size"
	cfgKeyScanConcurrency   = "scan_concurrency"
	cfgKeyPlan              = "plan"
	cfgKeyBackupDir         = "backup_dir"
	cfgKeyBackupCollections = "backup_collections"
	cfgKeyTimeout           = "timeout"
	cfgKeyLogLevel          = "log_level"
	cfgKeyLogFormat         = "log_format"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# coachdb configuration
# Every key can be overridden with a COACHDB_<KEY> environment variable
# (data_dir uses COACHDB_DATA_DIR with lower precedence than this file).

# Document store: sqlite (local copy) or firestore.
backend: sqlite

# Local database directory (optional; overridable by --data-dir).
# data_dir:

# Firestore settings, used when backend is firestore.
# project_id:
# database_id:
# credentials_file:

# Write operations per committed batch (1-500).
batch_size: 500

# Collections read concurrently.
scan_concurrency: 4

# Reconciliation plan, relative to this directory.
plan: plan.yaml

# Automatic backups before destructive commands, relative to the data dir.
backup_dir: backups

# Collections "coachdb backup" saves when none are named; empty means all
# root collections.
# backup_collections: clients,exercises,workouts

# Overall command timeout, e.g. 5m; 0 disables it.
timeout: 0s

log_level: warn
log_format: console
`

// settings is the decoded and validated config.yaml.
type settings struct {
	Backend           string        `mapstructure:"backend" validate:"required,oneof=sqlite firestore"`
	DataDir           string        `mapstructure:"data_dir"`
	ProjectID         string        `mapstructure:"project_id" validate:"required_if=Backend firestore"`
	DatabaseID        string        `mapstructure:"database_id"`
	CredentialsFile   string        `mapstructure:"credentials_file" validate:"omitempty,file"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gte=1,lte=500"`
	ScanConcurrency   int           `mapstructure:"scan_concurrency" validate:"gte=1,lte=64"`
	Plan              string        `mapstructure:"plan"`
	BackupDir         string        `mapstructure:"backup_dir"`
	BackupCollections []string      `mapstructure:"backup_collections"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	LogLevel          string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat         string        `mapstructure:"log_format" validate:"oneof=console json"`
}

var configDefaults = map[string]any{
	cfgKeyBackend:         types.BackendSQLite,
	cfgKeyBatchSize:       types.MaxBatchOps,
	cfgKeyScanConcurrency: 4,
	cfgKeyPlan:            "plan.yaml",
	cfgKeyBackupDir:       "backups",
	cfgKeyTimeout:         "0s",
	cfgKeyLogLevel:        "warn",
	cfgKeyLogFormat:       "console",
}

// envKeys are bound to COACHDB_<KEY>. data_dir is resolved by the paths
// package so that config.yaml wins over the environment.
var envKeys = []string{
	cfgKeyBackend, cfgKeyProjectID, cfgKeyDatabaseID, cfgKeyCredentialsFile,
	cfgKeyBatchSize, cfgKeyScanConcurrency, cfgKeyPlan, cfgKeyBackupDir,
	cfgKeyBackupCollections, cfgKeyTimeout, cfgKeyLogLevel, cfgKeyLogFormat,
}

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"backend":   cfgKeyBackend,
	"log-level": cfgKeyLogLevel,
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

// loadConfig reads config.yaml from configDir, creating the directory and a
// default file on first run, then applies environment and flag overrides.
// A missing config.yaml is not an error.
func loadConfig(configDir string, flags *pflag.FlagSet) (settings, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return settings{}, cli.SystemError(fmt.Errorf("ensure config dir: %w", err))
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return settings{}, cli.SystemError(fmt.Errorf("ensure default config: %w", err))
	}

	v := viper.New()
	for k, val := range configDefaults {
		v.SetDefault(k, val)
	}
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, cli.UserError(fmt.Errorf("read config: %w", err))
		}
	}

	v.SetEnvPrefix(envPrefix)
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return settings{}, cli.SystemError(err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return settings{}, cli.SystemError(err)
				}
			}
		}
	}

	var s settings
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&s, viper.DecodeHook(hook)); err != nil {
		return settings{}, cli.UserError(fmt.Errorf("decode config: %w", err))
	}
	for i, c := range s.BackupCollections {
		s.BackupCollections[i] = strings.TrimSpace(c)
	}
	if err := validate.Struct(s); err != nil {
		return settings{}, cli.UserError(configError(err))
	}
	return s, nil
}

// configError turns validator failures into one readable error.
func configError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ensureConfigDir creates the config directory if it does not exist.
func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
