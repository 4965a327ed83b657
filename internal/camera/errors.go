package camera

import (
	"errors"

	"github.com/smazurov/camerapipe/internal/preview"
)

// Errors surfaced synchronously by the handle. Asynchronous stage failures
// are never returned here; the client sees a missing callback instead.
var (
	ErrConfigRejected   = preview.ErrConfigRejected
	ErrAllocationFailed = preview.ErrAllocationFailed
	ErrInvalidState     = preview.ErrInvalidState
	ErrWorkerDead       = preview.ErrWorkerDead

	ErrPreviewNotRunning = errors.New("preview not running")
	ErrNotInitialized    = errors.New("camera not initialized")
	ErrReleased          = errors.New("camera released")
	ErrPictureCancelled  = errors.New("picture request cancelled")
)
