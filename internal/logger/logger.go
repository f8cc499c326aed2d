// Package logger provides OpenGoat's structured logging, built on
// zerolog with a lumberjack-backed rotating file sink. Components pull
// one of the named sub-loggers below rather than constructing their
// own, mirroring the convention of named loggers per subsystem.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Core logs facade, agent-store, task-store, session-store events.
	Core zerolog.Logger
	// OpenClaw logs reconciler, gateway client, and CLI adapter events.
	OpenClaw zerolog.Logger
	// Cron logs task-cron cycle events.
	Cron zerolog.Logger
)

func init() {
	Configure(LogDir())
}

// LogDir resolves the directory log files are rotated into: OPENGOAT_HOME/logs.
func LogDir() string {
	home := os.Getenv("OPENGOAT_HOME")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = filepath.Join(h, ".opengoat")
		} else {
			home = ".opengoat"
		}
	}
	return filepath.Join(home, "logs")
}

// Configure (re)initializes every named logger against a rotating file
// sink under dir, mirrored to stdout in console-pretty form when
// OPENGOAT_DEBUG is set. Whether stdout is a terminal is not checked.
func Configure(dir string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "opengoat.log"),
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	var writers []io.Writer
	writers = append(writers, fileWriter)
	if os.Getenv("OPENGOAT_DEBUG") != "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout})
	}
	multi := zerolog.MultiLevelWriter(writers...)

	base := zerolog.New(multi).With().Timestamp().Logger()
	Core = base.With().Str("component", "core").Logger()
	OpenClaw = base.With().Str("component", "openclaw").Logger()
	Cron = base.With().Str("component", "cron").Logger()
}
