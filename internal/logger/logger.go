// Package logger builds the contextualized logger of the application.
package logger

import (
	"io"

	"github.com/bool64/ctxd"
	"github.com/bool64/zapctxd"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger initiates a new contextualized zap logger.
//
// The returned closer releases the log file, it is a no-op when there is no file.
func NewLogger(cfg Config) (*zapctxd.Logger, io.Closer) {
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}

	var closer io.Closer = nopCloser{}

	if cfg.File.Path != "" {
		f := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}

		out = io.MultiWriter(out, f)
		closer = f
	}

	zCfg := zapctxd.Config{
		Level:   cfg.Level,
		DevMode: true,
		FieldNames: ctxd.FieldNames{
			Timestamp: "timestamp",
			Message:   "message",
		},
		Output:    out,
		StripTime: cfg.StripTime,
	}

	return zapctxd.New(zCfg), closer
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
