package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errorLogName receives every error-level entry of a run.
const errorLogName = "error.log"

// newLogger builds the run logger. Verbose runs log at debug level with the
// development console encoder; otherwise info level JSON. Errors are also
// appended to outDir/error.log. The returned func flushes and closes.
func newLogger(outDir string, verbose bool) (*zap.Logger, func(), error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		cfg.Sampling = nil
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(outDir, errorLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open error log: %w", err)
	}
	fileEnc := zap.NewProductionEncoderConfig()
	fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
	errCore := zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), zapcore.AddSync(f), zapcore.ErrorLevel)

	logger, err := cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, errCore)
	}))
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, func() {
		_ = logger.Sync()
		_ = f.Close()
	}, nil
}
