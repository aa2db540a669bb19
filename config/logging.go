package config

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// DebugEnabled reports whether TETHER_DEBUG asks for verbose logging.
func DebugEnabled() bool {
	debug := os.Getenv("TETHER_DEBUG")
	return debug == "true" || debug == "1"
}

// NewLogger builds the application logger. Output goes to a log file in the
// data directory so it never interleaves with chat output on the terminal.
// TETHER_DEBUG=1 lowers the level to debug.
func NewLogger(dataDir string) (*zap.Logger, error) {
	logPath := filepath.Join(dataDir, "tether.log")

	// Touch with 0600; logs can contain prompt fragments.
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	f.Close()

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}
	if DebugEnabled() {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return cfg.Build()
}
