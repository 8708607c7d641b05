package utils

import (
	"io"

	"github.com/MrSnakeDoc/sleuth/internal/logger"
)

// Close closes c and ignores any error.
// Use for response bodies and other best-effort cleanup in defer.
func Close(c io.Closer) {
	_ = c.Close()
}

// CloseLogged closes c and logs a failure as a warning naming what was closed.
func CloseLogged(c io.Closer, what string, log logger.Logger) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close", logger.String("resource", what), logger.Error(err))
	}
}
