package tools

import (
	"log/slog"
	"os"

	"github.com/atomicbase/directory/config"
)

// Logger is the global structured logger instance.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
	Level: config.Cfg.LogLevel,
}))
