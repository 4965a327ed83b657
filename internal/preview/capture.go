package preview

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/metrics"
	"github.com/smazurov/camerapipe/internal/staging"
)

// capture runs one still capture while streaming: pause circulation,
// acquire a frame at picture resolution, hand it to the staging stages and
// bring the preview back with a fresh buffer set. The state stays
// Streaming throughout.
func (w *Worker) capture(req *capture.Request) {
	start := time.Now()
	logger := w.logger.With("request_id", req.ID.String())
	logger.Info("Capture started", "width", req.Settings.Width, "height", req.Settings.Height)
	if w.onCaptureStart != nil {
		w.onCaptureStart(req.ID.String())
	}

	finish := func(err error) {
		result := "success"
		if err != nil {
			result = "error"
			w.captureFailures.Add(1)
		} else {
			w.captures.Add(1)
		}
		metrics.ObserveCapture(result, time.Since(start))
		req.Finish(err)
	}

	shutterDone := staging.NewLatch()
	if err := w.staging.PostShutter(staging.ShutterMessage{
		Shutter: req.Shutter,
		Cookie:  req.Cookie,
		Done:    shutterDone,
	}); err != nil {
		logger.Warn("Shutter notification dropped", "error", err)
		close(shutterDone)
	}

	if err := w.engine.Halt(); err != nil {
		logger.Warn("Stop streaming for capture failed", "error", err)
	}

	frame, err := w.acquire(req.Settings)
	if err != nil {
		logger.Error("Capture acquisition failed", "error", err)
		w.restorePreview()
		<-shutterDone
		finish(err)
		return
	}

	rawDone := staging.NewLatch()
	if err := w.staging.PostRaw(staging.RawMessage{
		Frame:  frame,
		Raw:    req.Raw,
		Cookie: req.Cookie,
		After:  shutterDone,
		Done:   rawDone,
	}); err != nil {
		logger.Warn("Raw notification dropped", "error", err)
		close(rawDone)
	}

	if req.Settings.SnapshotPreview {
		snapDone := staging.NewLatch()
		if err := w.staging.PostSnapshot(staging.SnapshotMessage{
			Frame: frame,
			Pool:  w.pool,
			Sink:  w.sink,
			Done:  snapDone,
		}); err != nil {
			logger.Warn("Snapshot dropped", "error", err)
		} else {
			<-snapDone
		}
	}

	if err := w.staging.PostProcess(staging.ProcessMessage{
		Frame:    frame,
		Settings: req.Settings,
		Encoded:  req.Encoded,
		Cookie:   req.Cookie,
		After:    rawDone,
		Finish:   finish,
	}); err != nil {
		logger.Error("Post-processing dropped", "error", err)
		// The frame is still ours; the raw callback may be reading it.
		go func() {
			<-rawDone
			_ = frame.Release()
			finish(err)
		}()
	}

	w.restorePreview()
}

// acquire performs the one-shot capture into a single-buffer picture set.
func (w *Worker) acquire(s capture.Settings) (*capture.Frame, error) {
	format := buffers.Format{
		Width:       s.Width,
		Height:      s.Height,
		PixelFormat: buffers.PixelFormatYUYV,
	}
	fps := max(w.preview.FPS, 1)
	if err := w.device.Configure(format, fps); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigRejected, err)
	}

	// Each capture gets its own set, released by whoever holds the frame last.
	pool := buffers.NewPool("picture", w.poolBudget)
	ids, err := pool.Allocate(1, format)
	if err != nil {
		if errors.Is(err, buffers.ErrOutOfMemory) {
			return nil, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		return nil, err
	}

	id, err := w.grab(pool, ids[0])
	if stopErr := w.device.StopStreaming(); stopErr != nil && err == nil {
		err = fmt.Errorf("stop streaming: %w", stopErr)
	}
	if err != nil {
		pool.FreeAll()
		return nil, err
	}

	frame, err := capture.Claim(pool, id)
	if err != nil {
		pool.FreeAll()
		return nil, err
	}
	return frame, nil
}

func (w *Worker) grab(pool *buffers.Pool, id buffers.ID) (buffers.ID, error) {
	if err := w.device.Bind(pool); err != nil {
		return 0, fmt.Errorf("bind picture pool: %w", err)
	}
	if err := w.device.Enqueue(id); err != nil {
		return 0, fmt.Errorf("enqueue picture buffer: %w", err)
	}
	if err := w.device.StartStreaming(); err != nil {
		return 0, fmt.Errorf("start picture stream: %w", err)
	}
	return w.device.Dequeue()
}

// restorePreview reallocates the preview set at the prior preview format
// and restarts circulation. Failure leaves the worker Idle.
func (w *Worker) restorePreview() {
	w.engine.Teardown()
	w.pool.FreeAll()
	if err := w.startPreview(w.preview); err != nil {
		w.logger.Error("Preview restore after capture failed", "error", err)
		w.setState(Idle)
	}
}
