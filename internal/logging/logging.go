// Package logging builds the run logger: one zap core for the terminal and one
// for the persisted benchmark.log, fed the same entries.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level string // debug, info, warn, error
	// Console writes to Stdout; turned off while the TUI owns the terminal.
	Console bool
	Stdout  io.Writer
	// FilePath is the persisted log; empty disables it.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel falls back to info for anything unknown
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

// New returns the logger and a function that flushes and closes the file sink.
func New(cfg Config) (*zap.Logger, func()) {
	level := ParseLevel(cfg.Level)

	var cores []zapcore.Core
	if cfg.Console {
		out := cfg.Stdout
		if out == nil {
			out = os.Stdout
		}
		ec := encoderConfig()
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.AddSync(out), level))
	}

	var file *lumberjack.Logger
	if cfg.FilePath != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.AddSync(file), level))
	}

	if len(cores) == 0 {
		return zap.NewNop(), func() {}
	}

	log := zap.New(zapcore.NewTee(cores...))
	return log, func() {
		_ = log.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
}
