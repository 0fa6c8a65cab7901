package util

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func todayLogName() string {
	return fmt.Sprintf("%s%s.log", logFilePrefix, time.Now().Format("2006-01-02"))
}

func TestInitLoggerCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultLogConfig()
	cfg.Directory = dir
	cfg.Console = false
	require.NoError(t, InitLogger(cfg))

	info, err := os.Stat(filepath.Join(dir, todayLogName()))
	require.NoError(t, err)
	assert.False(t, info.IsDir())
}

func TestInitLoggerFallsBackToInfoOnBadLevel(t *testing.T) {
	cfg := DefaultLogConfig()
	cfg.Directory = t.TempDir()
	cfg.Console = false
	cfg.Level = "loudest"

	require.NoError(t, InitLogger(cfg))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInitLoggerRollsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, todayLogName())

	// Pre-grow today's file past the 1 MB limit.
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), (1<<20)+1), 0644))

	cfg := DefaultLogConfig()
	cfg.Directory = dir
	cfg.Console = false
	cfg.MaxSizeMB = 1
	require.NoError(t, InitLogger(cfg))

	// The oversized file was moved aside and a fresh one started.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(1<<20))

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	rolled, err := os.Stat(matches[0])
	require.NoError(t, err)
	assert.Greater(t, rolled.Size(), int64(1<<20))
}

func TestPruneLogFilesKeepsNewest(t *testing.T) {
	dir := t.TempDir()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("%sold_%d.log", logFilePrefix, i)
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("log"), 0644))
		stamp := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, stamp, stamp))
	}
	// A foreign file in the directory is never touched.
	foreign := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0644))

	pruneLogFiles(dir, 2)

	for i := 0; i < 3; i++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%sold_%d.log", logFilePrefix, i)))
		assert.True(t, os.IsNotExist(err), "old_%d should be pruned", i)
	}
	for i := 3; i < 5; i++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("%sold_%d.log", logFilePrefix, i)))
		assert.NoError(t, err, "old_%d should survive", i)
	}
	_, err := os.Stat(foreign)
	assert.NoError(t, err)
}

func TestPruneLogFilesDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, logFilePrefix+"only.log")
	require.NoError(t, os.WriteFile(path, []byte("log"), 0644))

	pruneLogFiles(dir, 0)

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestComponentLogger(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	logger := ComponentLogger("supervisor")
	logger.Info().Msg("spawned")

	assert.Contains(t, buf.String(), `"component":"supervisor"`)
	assert.Contains(t, buf.String(), "spawned")
}
