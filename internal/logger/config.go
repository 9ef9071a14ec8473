package logger

import (
	"io"

	"go.uber.org/zap/zapcore"
)

// Level is a log level.
type Level = zapcore.Level

const (
	// DebugLevel is a debug log level.
	DebugLevel = zapcore.DebugLevel
	// InfoLevel is an info log level.
	InfoLevel = zapcore.InfoLevel
	// WarnLevel is a warn log level.
	WarnLevel = zapcore.WarnLevel
	// ErrorLevel is an error log level.
	ErrorLevel = zapcore.ErrorLevel
)

// Config is the configuration for the logger.
type Config struct {
	Output io.Writer
	Level  Level
	// StripTime disables time variance in logger.
	StripTime bool
	// File is the path of a log file. When set, the messages are also written to this file which is rotated when it
	// grows too big.
	File FileConfig
}

// FileConfig is the configuration of the rotated log file.
type FileConfig struct {
	Path string
	// MaxSizeMB is the maximum size of the file before it gets rotated. Default is 100.
	MaxSizeMB int
	// MaxBackups is the maximum number of old files to keep. Zero keeps all of them.
	MaxBackups int
	// MaxAgeDays is the maximum number of days to keep the old files. Zero keeps them forever.
	MaxAgeDays int
	Compress   bool
}
