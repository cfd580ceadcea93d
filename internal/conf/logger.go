package conf

import (
	"log/slog"

	"github.com/tphakala/dbstation/internal/logging"
)

// GetLogger returns the config package logger. It is fetched on every call so
// it follows logging.Init when that runs after package init.
func GetLogger() *slog.Logger {
	return logging.ForService("config")
}
