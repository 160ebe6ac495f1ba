// Package logging builds the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	File       string // optional JSON log file, rotated
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New returns a console logger, teeing JSON lines to a rotating file when File is set.
// The returned closer releases the file and is never nil.
func New(out io.Writer, opts Options) (zerolog.Logger, io.Closer) {
	if out == nil {
		out = os.Stdout
	}
	var w io.Writer = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(w, rotating)
		closer = rotating
	}

	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	if err != nil {
		logger.Warn().Str("level", opts.Level).Msg("unknown log level, using info")
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
