package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "ledger.log")

	l, closeFn, err := New(Config{Level: "debug", File: path, MaxSizeMB: 1})
	require.NoError(err)
	l.Debug("ledger started")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(err)
	require.Contains(string(data), `"msg":"ledger started"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, _, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}

func TestLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.log")
	l, closeFn, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown")
	closeFn()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "hidden")
	require.Contains(t, string(data), "shown")
}
