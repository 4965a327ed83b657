// Package camera is the client-facing handle of the capture pipeline. It
// owns one preview worker and one staging pipeline, translates client
// calls into worker commands and serialises still-capture requests.
package camera

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/circulation"
	"github.com/smazurov/camerapipe/internal/device"
	"github.com/smazurov/camerapipe/internal/events"
	"github.com/smazurov/camerapipe/internal/focus"
	"github.com/smazurov/camerapipe/internal/imaging"
	"github.com/smazurov/camerapipe/internal/logging"
	"github.com/smazurov/camerapipe/internal/preview"
	"github.com/smazurov/camerapipe/internal/sink"
	"github.com/smazurov/camerapipe/internal/staging"
)

const (
	defaultReleaseTimeout = 5 * time.Second
	// closeGrace bounds the wait for the worker once the device is closed.
	closeGrace = 2 * time.Second
)

// Options configures a Camera.
type Options struct {
	// Name identifies the device in events and logs.
	Name   string
	Device device.Port
	Sink   sink.Port
	Focus  focus.Engine

	Filter  imaging.Filter
	Encoder imaging.Encoder

	Parameters        Parameters
	OptimalQueueDepth int
	PoolBudget        int
	StageQueueSize    int
	CommandQueueSize  int

	// Events receives pipeline events when set.
	Events *events.Bus
	Logger *slog.Logger
	// ReleaseTimeout bounds how long Release waits for the worker.
	ReleaseTimeout time.Duration
}

// Stats is a snapshot of the whole pipeline.
type Stats struct {
	Preview        preview.Stats `json:"preview"`
	Staging        staging.Stats `json:"staging"`
	QueuedPictures int           `json:"queued_pictures"`
	Recording      bool          `json:"recording"`
}

// Camera is the handle. All methods are safe for concurrent use.
type Camera struct {
	name   string
	opts   Options
	bus    *events.Bus
	logger *slog.Logger

	mu          sync.RWMutex
	params      Parameters
	initialized bool
	released    bool

	worker   *preview.Worker
	stages   *staging.Pipeline
	pictures *pictureQueue

	releaseOnce sync.Once
	releaseErr  error
}

// New creates an uninitialised handle. Parameters default when zero.
func New(opts Options) (*Camera, error) {
	if opts.Device == nil {
		return nil, errors.New("camera: device is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("camera: sink is required")
	}
	if depth, capacity := opts.OptimalQueueDepth, opts.Sink.BufferCount(); depth > capacity {
		return nil, fmt.Errorf("camera: optimal queue depth %d exceeds sink capacity of %d buffers", depth, capacity)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("camera")
	}
	name := opts.Name
	if name == "" {
		name = "camera"
	}

	params := opts.Parameters
	if params == (Parameters{}) {
		params = DefaultParameters()
	}
	params = params.Normalized()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	c := &Camera{
		name:   name,
		opts:   opts,
		bus:    opts.Events,
		logger: logger.With("device", name),
		params: params,
	}
	c.pictures = newPictureQueue(c.dispatch)
	return c, nil
}

// Initialize starts the staging goroutines and the preview worker. The
// worker starts Idle.
func (c *Camera) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return ErrReleased
	}
	if c.initialized {
		return nil
	}

	c.stages = staging.New(staging.Options{
		QueueSize: c.opts.StageQueueSize,
		Filter:    c.opts.Filter,
		Encoder:   c.opts.Encoder,
	})
	c.worker = preview.NewWorker(preview.Options{
		Device:            c.opts.Device,
		Sink:              c.opts.Sink,
		Focus:             c.opts.Focus,
		Staging:           c.stages,
		OptimalQueueDepth: c.opts.OptimalQueueDepth,
		PoolBudget:        c.opts.PoolBudget,
		CommandQueueSize:  c.opts.CommandQueueSize,
		OnStateChange:     c.publishState,
		OnFocus:           c.publishFocus,
		OnCaptureStart:    c.publishCaptureStart,
	})
	c.worker.Run()
	c.initialized = true
	c.logger.Info("Camera initialized", "preview", c.params.PreviewConfig().Format.String())
	return nil
}

// Release stops the worker and the stages. Queued pictures are cancelled
// without callbacks. Safe to call more than once.
func (c *Camera) Release(ctx context.Context) error {
	c.releaseOnce.Do(func() {
		c.releaseErr = c.release(ctx)
	})
	return c.releaseErr
}

func (c *Camera) release(ctx context.Context) error {
	c.mu.Lock()
	initialized := c.initialized
	c.released = true
	c.mu.Unlock()

	for _, req := range c.pictures.cancel() {
		req.Finish(ErrPictureCancelled)
	}

	if !initialized {
		return c.opts.Device.Close()
	}

	timeout := c.opts.ReleaseTimeout
	if timeout <= 0 {
		timeout = defaultReleaseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	_, termErr := c.worker.Send(ctx, preview.Command{Kind: preview.Terminate})
	if err := c.opts.Device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close device: %w", err))
	}
	// ctx may have run out while the worker was blocked on the device.
	graceCtx, graceCancel := context.WithTimeout(context.WithoutCancel(ctx), closeGrace)
	defer graceCancel()
	if termErr != nil && !errors.Is(termErr, preview.ErrWorkerDead) {
		// The worker may have been blocked on the device; closing it
		// unblocks the dequeue so Terminate can be read.
		if _, err := c.worker.Send(graceCtx, preview.Command{Kind: preview.Terminate}); err != nil && !errors.Is(err, preview.ErrWorkerDead) {
			errs = append(errs, fmt.Errorf("terminate worker: %w", err))
		}
	}

	select {
	case <-c.worker.Done():
	case <-graceCtx.Done():
		errs = append(errs, fmt.Errorf("wait for worker: %w", graceCtx.Err()))
	}

	c.stages.Close()
	c.logger.Info("Camera released")
	return errors.Join(errs...)
}

func (c *Camera) workerHandle() (*preview.Worker, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.released {
		return nil, ErrReleased
	}
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	return c.worker, nil
}

// command sends cmd and maps a Nack to its error.
func (c *Camera) command(ctx context.Context, cmd preview.Command) error {
	w, err := c.workerHandle()
	if err != nil {
		return err
	}
	r, err := w.Send(ctx, cmd)
	if err != nil {
		return err
	}
	if r.Reply == preview.Nack {
		if r.Err != nil {
			return r.Err
		}
		return ErrInvalidState
	}
	return nil
}

// StartPreview starts streaming at the current preview parameters.
func (c *Camera) StartPreview(ctx context.Context) error {
	cfg := c.Parameters().PreviewConfig()
	return c.command(ctx, preview.Command{Kind: preview.Start, Preview: cfg})
}

// StopPreview stops streaming and frees the preview buffers.
func (c *Camera) StopPreview(ctx context.Context) error {
	return c.command(ctx, preview.Command{Kind: preview.Stop})
}

// PreviewEnabled reports whether the worker is streaming.
func (c *Camera) PreviewEnabled() bool {
	w, err := c.workerHandle()
	if err != nil {
		return false
	}
	return w.State() == preview.Streaming
}

// AutoFocus starts one autofocus run. fn is called once on completion
// unless the run is cancelled first.
func (c *Camera) AutoFocus(ctx context.Context, fn preview.FocusFunc, cookie any) error {
	return c.command(ctx, preview.Command{Kind: preview.FocusStart, Focus: fn, Cookie: cookie})
}

// CancelAutoFocus stops a running autofocus without a callback.
func (c *Camera) CancelAutoFocus(ctx context.Context) error {
	return c.command(ctx, preview.Command{Kind: preview.FocusStop})
}

// StartContinuousFocus enables continuous focus tracking.
func (c *Camera) StartContinuousFocus(ctx context.Context) error {
	return c.command(ctx, preview.Command{Kind: preview.ContinuousFocusStart})
}

// StopContinuousFocus disables continuous focus tracking.
func (c *Camera) StopContinuousFocus(ctx context.Context) error {
	return c.command(ctx, preview.Command{Kind: preview.ContinuousFocusStop})
}

// TakePicture submits a still capture with the current picture
// parameters. The preview must be running. If another capture is in
// progress the request waits its turn and keeps its own callbacks.
// When ctx ends before the worker accepts the request, the request is
// finished with the context error and that error is returned.
func (c *Camera) TakePicture(ctx context.Context, cb capture.Callbacks, cookie any) (*capture.Request, error) {
	w, err := c.workerHandle()
	if err != nil {
		return nil, err
	}
	if w.State() != preview.Streaming {
		return nil, ErrPreviewNotRunning
	}

	settings := c.Parameters().PictureSettings()
	req := capture.NewRequest(settings, cb, cookie)
	c.wrapEncoded(req)
	req.OnDone(func(r *capture.Request, err error) {
		if err != nil && !errors.Is(err, ErrPictureCancelled) {
			c.publishCaptureError(r, err)
		}
		c.pictures.complete(r)
	})

	if queued := c.pictures.submit(ctx, req); queued {
		c.logger.Debug("Picture request queued", "request_id", req.ID.String(), "pending", c.pictures.queuedCount())
		return req, nil
	}
	select {
	case <-req.Done():
		if err := req.Err(); errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return req, err
		}
	default:
	}
	return req, nil
}

// dispatch hands one request to the worker. A request the worker never
// accepts is finished here so the queue keeps moving; the worker skips it
// if it reads the command later.
func (c *Camera) dispatch(ctx context.Context, req *capture.Request) {
	w, err := c.workerHandle()
	if err != nil {
		req.Finish(err)
		return
	}
	r, err := w.Send(ctx, preview.Command{Kind: preview.Capture, Capture: req})
	if err != nil {
		req.Finish(err)
		return
	}
	if r.Reply == preview.Nack {
		req.Finish(r.Err)
	}
}

// CancelPicture drops every queued picture request and asks the worker to
// cancel the running one. A running capture always completes, so the
// worker's refusal is not an error. It returns the number of requests
// dropped.
func (c *Camera) CancelPicture(ctx context.Context) (int, error) {
	w, err := c.workerHandle()
	if err != nil {
		return 0, err
	}
	dropped := c.pictures.cancel()
	for _, req := range dropped {
		req.Finish(ErrPictureCancelled)
	}
	if _, err := w.Send(ctx, preview.Command{Kind: preview.CaptureCancel}); err != nil {
		return len(dropped), err
	}
	return len(dropped), nil
}

// QueuedPictures is the number of requests waiting behind the running
// capture.
func (c *Camera) QueuedPictures() int {
	return c.pictures.queuedCount()
}

// StartRecording registers fn for every preview frame returned by the
// sink. Each frame must be released with ReleaseRecordingFrame.
func (c *Camera) StartRecording(fn circulation.RecordingFunc, cookie any) error {
	if fn == nil {
		return errors.New("camera: recording callback is required")
	}
	w, err := c.workerHandle()
	if err != nil {
		return err
	}
	w.Engine().SetRecording(fn, cookie)
	return nil
}

// StopRecording unregisters the recording callback. Frames already handed
// out stay valid until released or until the preview stops.
func (c *Camera) StopRecording() {
	if w, err := c.workerHandle(); err == nil {
		w.Engine().SetRecording(nil, nil)
	}
}

// ReleaseRecordingFrame returns a recording frame to circulation.
func (c *Camera) ReleaseRecordingFrame(id buffers.ID) error {
	w, err := c.workerHandle()
	if err != nil {
		return err
	}
	return w.Engine().Release(id)
}

// RecordingEnabled reports whether a recording callback is registered.
func (c *Camera) RecordingEnabled() bool {
	w, err := c.workerHandle()
	if err != nil {
		return false
	}
	return w.Engine().Recording()
}

// SetParameters validates and replaces the parameters. Preview changes
// apply at the next StartPreview, picture changes at the next TakePicture.
func (c *Camera) SetParameters(p Parameters) error {
	p = p.Normalized()
	if err := p.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.params = p
	c.mu.Unlock()

	c.logger.Info("Parameters updated", "preview", p.PreviewConfig().Format.String(),
		"picture", fmt.Sprintf("%dx%d", p.PictureWidth, p.PictureHeight), "quality", p.Quality)
	c.publish(events.ParametersChangedEvent{
		Device:    c.name,
		Quality:   p.Quality,
		Timestamp: now(),
	})
	return nil
}

// Parameters returns the current parameters.
func (c *Camera) Parameters() Parameters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.params
}

// State is the preview worker state. A handle that was never initialised
// reports Idle, a released one Dead.
func (c *Camera) State() preview.State {
	w, err := c.workerHandle()
	switch {
	case errors.Is(err, ErrReleased):
		return preview.Dead
	case err != nil:
		return preview.Idle
	}
	return w.State()
}

// Name returns the device name used in events.
func (c *Camera) Name() string {
	return c.name
}

// Stats returns a snapshot of the pipeline counters.
func (c *Camera) Stats() Stats {
	s := Stats{QueuedPictures: c.pictures.queuedCount()}
	w, err := c.workerHandle()
	if err != nil {
		return s
	}
	s.Preview = w.Stats()
	s.Staging = c.stages.Stats()
	s.Recording = w.Engine().Recording()
	return s
}

// wrapEncoded publishes a success event after the client's own encoded
// callback.
func (c *Camera) wrapEncoded(req *capture.Request) {
	if c.bus == nil {
		return
	}
	width, height := req.Settings.Transform().OutputSize()
	id := req.ID.String()
	encoded := req.Encoded
	req.Encoded = func(data []byte, cookie any) {
		if encoded != nil {
			encoded(data, cookie)
		}
		c.publish(events.CaptureSuccessEvent{
			RequestID: id,
			Device:    c.name,
			Message:   "Picture captured successfully",
			ImageData: base64.StdEncoding.EncodeToString(data),
			Width:     width,
			Height:    height,
			Timestamp: now(),
		})
	}
}

func (c *Camera) publishState(s preview.State) {
	c.publish(events.PreviewStateChangedEvent{
		Device:    c.name,
		State:     s.String(),
		Timestamp: now(),
	})
}

func (c *Camera) publishFocus(success bool) {
	c.publish(events.FocusCompletedEvent{
		Device:    c.name,
		Success:   success,
		Timestamp: now(),
	})
}

func (c *Camera) publishCaptureStart(id string) {
	c.publish(events.CaptureStartedEvent{
		RequestID: id,
		Device:    c.name,
		Timestamp: now(),
	})
}

func (c *Camera) publishCaptureError(req *capture.Request, err error) {
	c.publish(events.CaptureErrorEvent{
		RequestID: req.ID.String(),
		Device:    c.name,
		Message:   "Picture capture failed",
		Error:     err.Error(),
		Timestamp: now(),
	})
}

func (c *Camera) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func now() string {
	return time.Now().Format(time.RFC3339)
}
