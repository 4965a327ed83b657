package device

import (
	"log/slog"
	"strings"
)

// SyntheticPath selects the built-in synthetic device.
const SyntheticPath = "synthetic"

// Open returns the synthetic device for SyntheticPath or an empty path and
// opens a V4L2 node otherwise.
func Open(path string, minBuffers int, logger *slog.Logger) (Port, error) {
	if path == "" || strings.EqualFold(path, SyntheticPath) {
		return NewSynthetic(SyntheticOptions{MinBuffers: minBuffers, Logger: logger}), nil
	}
	return OpenV4L2(path, minBuffers, logger)
}
