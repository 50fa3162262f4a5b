package core

import (
	"log/slog"

	"github.com/rigdev/apprig/internal/logging"
)

func componentLog(name string) *slog.Logger {
	return logging.With("component", name)
}
