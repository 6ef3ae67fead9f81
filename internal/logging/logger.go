package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/feedback-desk/internal/config"
)

// FileName is the structured log written under .feedback/logs.
const FileName = "feedback.log"

// New builds a JSON zap logger appending to .feedback/logs/feedback.log so
// operators can inspect failures after the TUI has exited.
func New(projectDir string, verbose bool) (*zap.Logger, error) {
	logDir := filepath.Join(projectDir, config.FeedbackDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{filepath.Join(logDir, FileName)}
	cfg.ErrorOutputPaths = []string{filepath.Join(logDir, FileName)}
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.Sampling = nil
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger.Named("feedback"), nil
}

// Console builds a human-readable logger on stderr for foreground commands
// such as `feedback serve`.
func Console(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build console logger: %w", err)
	}
	return logger.Named("feedback"), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
