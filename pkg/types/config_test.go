package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name:    "empty backend returns ErrBackendEmpty",
			config:  Config{Backend: "", DataDir: "/tmp/data"},
			wantErr: ErrBackendEmpty,
		},
		{
			name:    "unknown backend returns ErrBackendUnknown",
			config:  Config{Backend: "postgres", DataDir: "/tmp/data"},
			wantErr: ErrBackendUnknown,
		},
		{
			name:   "valid sqlite config",
			config: Config{Backend: BackendSQLite, DataDir: "/tmp/data"},
		},
		{
			name:   "sqlite with empty DataDir is valid at config level",
			config: Config{Backend: BackendSQLite},
		},
		{
			name:    "firestore without project",
			config:  Config{Backend: BackendFirestore},
			wantErr: ErrProjectIDMissing,
		},
		{
			name:   "firestore with project",
			config: Config{Backend: BackendFirestore, ProjectID: "coach-prod"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, ValidateBatchSize(1))
	assert.NoError(t, ValidateBatchSize(MaxBatchOps))
	assert.ErrorIs(t, ValidateBatchSize(0), ErrBatchSizeInvalid)
	assert.ErrorIs(t, ValidateBatchSize(MaxBatchOps+1), ErrBatchSizeInvalid)
}
