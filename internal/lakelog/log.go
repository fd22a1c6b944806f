// Package lakelog configures the engine's structured logger. It follows the
// teacher's convention of a single package-level logger configured once at
// process start (internal/debug holds a comparable package-level state),
// generalized here to zap's sugared logger with the field set the Python
// original's anystore get_logger(...).info(..., key=value) calls establish:
// dataset, run_id, target, dependencies.
package lakelog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	base   *zap.Logger
	logger *zap.SugaredLogger
)

func init() {
	Configure(os.Getenv("LAKEHOUSE_DEBUG") != "")
}

// Configure (re)builds the package-level logger. debug selects development
// encoding (console, caller info) over the default production JSON encoding.
func Configure(debug bool) {
	mu.Lock()
	defer mu.Unlock()

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.DisableStacktrace = !debug

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	logger = l.Sugar()
}

// Get returns the current sugared logger.
func Get() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// ForDataset returns a logger pre-tagged with the dataset field, matching
// the per-dataset context every repository and operation logs under.
func ForDataset(dataset string) *zap.SugaredLogger {
	return Get().With("dataset", dataset)
}

// ForRun returns a logger pre-tagged with run_id, target and dependencies,
// mirroring the fields every Operation attaches to its job's log lines.
func ForRun(dataset, runID, target string, dependencies []string) *zap.SugaredLogger {
	return Get().With(
		"dataset", dataset,
		"run_id", runID,
		"target", target,
		"dependencies", dependencies,
	)
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() error {
	mu.Lock()
	b := base
	mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Sync()
}
