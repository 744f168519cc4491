// Package logging builds the process logger: a logr.Logger backed by zap.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values fall back to info.
	Level string `mapstructure:"level"`
	// Format is console or json.
	Format string `mapstructure:"format"`
	// Outputs lists stdout, stderr or file paths.
	Outputs []string `mapstructure:"outputs"`
	// Development enables caller-friendly console output.
	Development bool `mapstructure:"development"`
	// Rotation controls rotation for file outputs.
	Rotation Rotation `mapstructure:"rotation"`
}

// Rotation controls log file rotation for file outputs.
type Rotation struct {
	Enable     bool `mapstructure:"enable"`
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// New builds a logr.Logger from opts. The returned sync func flushes buffered
// entries and should be deferred by the caller.
func New(opts Options) (logr.Logger, func(), error) {
	level := parseLevel(opts.Level)

	encCfg := zap.NewProductionEncoderConfig()
	if opts.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	outputs := opts.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	var cores []zapcore.Core
	for _, out := range outputs {
		ws, err := writeSyncer(out, opts.Rotation)
		if err != nil {
			return logr.Discard(), func() {}, err
		}
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	zopts := []zap.Option{
		zap.AddCaller(),
		// Error entries carry a stack trace; the result reporter relies on it.
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if opts.Development {
		zopts = append(zopts, zap.Development())
	}

	zl := zap.New(zapcore.NewTee(cores...), zopts...)
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func writeSyncer(out string, rot Rotation) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(out) {
	case "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
	}
	if rot.Enable {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   out,
			MaxSize:    max(rot.MaxSizeMB, 10),
			MaxBackups: max(rot.MaxBackups, 1),
			MaxAge:     max(rot.MaxAgeDays, 7),
			Compress:   rot.Compress,
		}), nil
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", out, err)
	}
	return zapcore.AddSync(f), nil
}
