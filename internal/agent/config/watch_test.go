package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherUpdatedAtZeroBeforeAnyChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selfupdate: 0\n"), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, logger)
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.UpdatedAt().IsZero())
}

func TestWatcherDetectsFileWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selfupdate: 0\n"), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, logger)
	require.NoError(t, err)
	defer w.Close()

	w.Start()

	require.NoError(t, os.WriteFile(path, []byte("selfupdate: 5\n"), 0o600))

	require.Eventually(t, func() bool {
		return !w.UpdatedAt().IsZero()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selfupdate: 0\n"), 0o600))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(path, logger)
	require.NoError(t, err)

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
