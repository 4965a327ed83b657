//go:build !linux

package device

import (
	"errors"
	"log/slog"
)

var errUnsupported = errors.New("v4l2 capture is only supported on linux")

// V4L2 is unavailable on this platform.
type V4L2 struct {
	Synthetic
}

// OpenV4L2 always fails on non-linux platforms.
func OpenV4L2(_ string, _ int, _ *slog.Logger) (*V4L2, error) {
	return nil, errUnsupported
}

// Inspect always fails on non-linux platforms.
func Inspect(_ string) (*Info, error) {
	return nil, errUnsupported
}
