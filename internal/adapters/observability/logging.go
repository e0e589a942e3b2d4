package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects the log sink. File, when set, is rotated by lumberjack
// and written in addition to stdout.
type LogOptions struct {
	Env        string
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger returns a zerolog Logger.
// APP_ENV=dev (or development) uses a human-friendly console writer.
func NewLogger(o LogOptions) zerolog.Logger {
	var out io.Writer = os.Stdout
	if o.Env == "dev" || o.Env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if o.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
			MaxAge:     o.MaxAgeDays,
			Compress:   true,
		})
	}
	l := zerolog.New(out).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(o.Level); err == nil && o.Level != "" {
		l = l.Level(lvl)
	}
	return l
}
