package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds configuration for file-based log output with rotation.
type FileConfig struct {
	Path      string
	MaxSizeMB int
	MaxFiles  int
}

// NewFileWriter returns an io.Writer that writes to a rotating log file.
// Rotated files are gzip-compressed.
func NewFileWriter(cfg FileConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		Compress:   true,
	}
}
