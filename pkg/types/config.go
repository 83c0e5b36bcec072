package types

import (
	"errors"
	"fmt"
)

// Config holds backend selection and parameters for opening a Store.
type Config struct {
	Backend         string `json:"backend" yaml:"backend" mapstructure:"backend"`
	DataDir         string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`
	ProjectID       string `json:"project_id" yaml:"project_id" mapstructure:"project_id"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file" mapstructure:"credentials_file"`
	DatabaseID      string `json:"database_id" yaml:"database_id" mapstructure:"database_id"`
}

// Supported backend names.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config validation errors.
var (
	ErrBackendEmpty     = errors.New("backend must not be empty")
	ErrBackendUnknown   = errors.New("unknown backend")
	ErrProjectIDMissing = errors.New("firestore backend requires a project ID")
	ErrBatchSizeInvalid = errors.New("batch size must be between 1 and 500")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:    true,
	BackendFirestore: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return fmt.Errorf("%w: %q", ErrBackendUnknown, c.Backend)
	}
	if c.Backend == BackendFirestore && c.ProjectID == "" {
		return ErrProjectIDMissing
	}
	return nil
}

// ValidateBatchSize checks a write chunk size against MaxBatchOps.
func ValidateBatchSize(n int) error {
	if n < 1 || n > MaxBatchOps {
		return fmt.Errorf("%w: got %d", ErrBatchSizeInvalid, n)
	}
	return nil
}
