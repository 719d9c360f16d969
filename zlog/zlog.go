// Package zlog builds the *zerolog.Logger used throughout the core and
// adapters: a console writer (colorized when attached to a terminal) plus
// an optional rolling file writer, composed behind a small Config rather
// than a global singleton.
package zlog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeFormat = time.RFC3339

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// Config describes where and how verbosely to log.
type Config struct {
	// Level is a zerolog level name ("debug", "info", "warn", "error").
	// Defaults to "info" if empty or unparseable.
	Level string
	// DisableConsole suppresses the stderr console writer.
	DisableConsole bool
	// RollingDir, if non-empty, enables a size/age-rotated file writer
	// there (gopkg.in/natefinch/lumberjack.v2).
	RollingDir      string
	RollingFile     string
	RollingMaxSizeMB int
	RollingMaxAgeDays int
	RollingMaxBackups int
}

// New builds a *zerolog.Logger from cfg. A zero Config yields an
// info-level console logger.
func New(cfg Config) *zerolog.Logger {
	var writers []io.Writer

	if !cfg.DisableConsole {
		out := os.Stderr
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        colorable.NewColorable(out),
			NoColor:    !term.IsTerminal(int(out.Fd())),
			TimeFormat: consoleTimeFormat,
		})
	}

	if cfg.RollingDir != "" {
		filename := cfg.RollingFile
		if filename == "" {
			filename = "zrpc.log"
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.RollingDir, filename),
			MaxSize:    nonZero(cfg.RollingMaxSizeMB, 100),
			MaxAge:     nonZero(cfg.RollingMaxAgeDays, 28),
			MaxBackups: nonZero(cfg.RollingMaxBackups, 3),
		})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	multi := io.MultiWriter(writers...)
	log := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	return &log
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want core log output on stderr by default.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
