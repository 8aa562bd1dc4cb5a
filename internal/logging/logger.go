package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls where and how verbosely raptd logs.
type Options struct {
	Path    string
	Session string
	Level   zapcore.Level
	// Quiet drops the stderr core, leaving only the JSON file.
	Quiet bool
}

// New creates a zap logger that writes JSON to opts.Path and, unless Quiet,
// a console rendering to stderr. Session name and PID are included as
// initial fields.
func New(opts Options) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), opts.Level),
	}
	if !opts.Quiet {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stderr), opts.Level))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.Fields(
			zap.String("session", opts.Session),
			zap.Int("pid", os.Getpid()),
		),
	)

	return logger, nil
}
