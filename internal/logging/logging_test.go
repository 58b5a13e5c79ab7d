package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, LevelInfo, cfg.Level)
	assert.Equal(t, FormatText, cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "default text logger",
			config: DefaultConfig(),
		},
		{
			name: "json logger to stderr",
			config: Config{
				Level:  LevelDebug,
				Format: FormatJSON,
				Output: "stderr",
			},
		},
		{
			name: "unknown level falls back to info",
			config: Config{
				Level:  "bogus",
				Format: FormatText,
				Output: "stdout",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewFileOutput(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "patchpilot.log")

	logger, err := New(Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: logPath,
	})
	require.NoError(t, err)

	logger.Info("report committed", "scan_id", "test-scan")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "report committed")
	assert.Contains(t, string(data), "test-scan")
}

func TestWithHelpers(t *testing.T) {
	logger := NewDefault()

	assert.NotNil(t, logger.WithComponent("api"))
	assert.NotNil(t, logger.WithScanID("abc-123"))
	assert.NotNil(t, logger.WithService("ssh"))
	assert.NotNil(t, logger.WithFields("port", "22"))
}

func TestDefaultLoggerReplacement(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	replacement := NewDefault()
	SetDefault(replacement)

	assert.Equal(t, replacement, Default())
}
