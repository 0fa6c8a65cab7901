// Package util provides logging setup and host inspection helpers shared
// across the Parlor service.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogConfig holds the logging settings. After startup the values come from
// the logging section of the service configuration.
type LogConfig struct {
	Level      string
	Directory  string
	MaxSizeMB  int
	MaxBackups int
	Console    bool
}

// DefaultLogConfig returns the settings used before the configuration file
// has been loaded.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		Directory:  "logs",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	}
}

const logFilePrefix = "parlor_"

// InitLogger configures the global zerolog logger: JSON to a dated file
// under cfg.Directory, plus a human-readable console writer when
// cfg.Console is set. An unparseable level falls back to info. Files
// beyond cfg.MaxBackups are pruned, oldest first.
func InitLogger(cfg LogConfig) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
	}

	logFile, logPath, err := openLogFile(cfg)
	if err != nil {
		return err
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "parlor").
		Caller().
		Logger()

	log.Info().
		Str("level", level.String()).
		Str("log_file", logPath).
		Msg("logger initialized")

	pruneLogFiles(cfg.Directory, cfg.MaxBackups)
	return nil
}

// openLogFile opens today's log file for appending. A file that has
// already grown past MaxSizeMB is rolled aside under a timestamped name
// and a fresh one started, so a single file stays bounded across restarts.
func openLogFile(cfg LogConfig) (*os.File, string, error) {
	name := fmt.Sprintf("%s%s.log", logFilePrefix, time.Now().Format("2006-01-02"))
	path := filepath.Join(cfg.Directory, name)

	if cfg.MaxSizeMB > 0 {
		if info, err := os.Stat(path); err == nil && info.Size() > int64(cfg.MaxSizeMB)<<20 {
			rolled := fmt.Sprintf("%s.%d", path, time.Now().Unix())
			if err := os.Rename(path, rolled); err == nil {
				log.Debug().Str("file", rolled).Msg("rolled oversized log file")
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, path, nil
}

// pruneLogFiles deletes the oldest service log files once more than
// maxBackups exist in the directory. Files not named by InitLogger are
// left alone.
func pruneLogFiles(directory string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}

	entries, err := os.ReadDir(directory)
	if err != nil {
		return
	}

	type logFile struct {
		name    string
		modTime time.Time
	}
	var files []logFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), logFilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{name: entry.Name(), modTime: info.ModTime()})
	}

	if len(files) <= maxBackups {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})
	for _, f := range files[:len(files)-maxBackups] {
		path := filepath.Join(directory, f.name)
		if err := os.Remove(path); err == nil {
			log.Debug().Str("file", path).Msg("pruned old log file")
		}
	}
}

// ComponentLogger derives a sub-logger tagged with the component name.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
