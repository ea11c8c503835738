package telemetry

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// InitSlog installs the default logger. Verbose keeps the stock text
// handler at debug level, otherwise a compact colored handler at info.
func InitSlog(verbose bool) {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		return
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)
}
