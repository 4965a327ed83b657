// Package preview implements the preview worker: the single goroutine
// that owns the capture device, drives buffer circulation while streaming
// and services start, stop, focus and capture commands in between frames.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/circulation"
	"github.com/smazurov/camerapipe/internal/device"
	"github.com/smazurov/camerapipe/internal/focus"
	"github.com/smazurov/camerapipe/internal/imaging"
	"github.com/smazurov/camerapipe/internal/logging"
	"github.com/smazurov/camerapipe/internal/metrics"
	"github.com/smazurov/camerapipe/internal/sink"
	"github.com/smazurov/camerapipe/internal/staging"
)

const (
	defaultCommandQueueSize = 8
	defaultRetryDelay       = 20 * time.Millisecond
)

// State is the worker state.
type State int32

const (
	Idle State = iota
	Streaming
	Dead
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures a Worker.
type Options struct {
	Device  device.Port
	Sink    sink.Port
	Focus   focus.Engine
	Staging *staging.Pipeline

	OptimalQueueDepth int
	// PoolBudget bounds the bytes of one buffer set, zero is unbounded.
	PoolBudget       int
	CommandQueueSize int
	// RetryDelay is the pause after a failed circulation iteration.
	RetryDelay time.Duration

	// OnStateChange is called from the worker goroutine after every
	// transition.
	OnStateChange func(State)
	// OnFocus observes every completed autofocus run.
	OnFocus func(success bool)
	// OnCaptureStart observes every capture the worker begins.
	OnCaptureStart func(id string)
	Logger         *slog.Logger
}

// Stats is a point-in-time worker snapshot.
type Stats struct {
	State           string            `json:"state"`
	Buffers         buffers.Counts    `json:"buffers"`
	Circulation     circulation.Stats `json:"circulation"`
	Captures        uint64            `json:"captures"`
	CaptureFailures uint64            `json:"capture_failures"`
}

// Worker owns the device lifecycle.
type Worker struct {
	device  device.Port
	sink    sink.Port
	focus   focus.Engine
	staging *staging.Pipeline
	logger  *slog.Logger

	pool       *buffers.Pool
	poolBudget int
	engine     *circulation.Engine
	ch         *Channel

	retryDelay     time.Duration
	onStateChange  func(State)
	onFocus        func(bool)
	onCaptureStart func(string)

	state atomic.Int32
	done  chan struct{}

	// Worker-goroutine state.
	preview      Config
	focusFn      FocusFunc
	focusCookie  any
	focusRunning bool

	captures        atomic.Uint64
	captureFailures atomic.Uint64
}

// NewWorker creates a worker in Idle. Call Run to start it.
func NewWorker(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("preview")
	}
	f := opts.Focus
	if f == nil {
		f = &focus.Fixed{}
	}
	retry := opts.RetryDelay
	if retry <= 0 {
		retry = defaultRetryDelay
	}
	size := opts.CommandQueueSize
	if size <= 0 {
		size = defaultCommandQueueSize
	}

	pool := buffers.NewPool("preview", opts.PoolBudget)
	done := make(chan struct{})
	w := &Worker{
		device:         opts.Device,
		sink:           opts.Sink,
		focus:          f,
		staging:        opts.Staging,
		logger:         logger,
		pool:           pool,
		poolBudget:     opts.PoolBudget,
		retryDelay:     retry,
		onStateChange:  opts.OnStateChange,
		onFocus:        opts.OnFocus,
		onCaptureStart: opts.OnCaptureStart,
		done:           done,
		ch:             newChannel(size, done),
	}
	w.engine = circulation.New(pool, opts.Device, opts.Sink, circulation.Options{
		OptimalQueueDepth: opts.OptimalQueueDepth,
		Logger:            logging.GetLogger("circulation"),
	})
	return w
}

// Run starts the worker goroutine.
func (w *Worker) Run() {
	metrics.SetPreviewState(Idle.String())
	go w.loop()
}

// Send posts a command and waits for its reply.
func (w *Worker) Send(ctx context.Context, cmd Command) (Response, error) {
	return w.ch.Send(ctx, cmd)
}

// State returns the current state. Safe from any goroutine.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Done is closed when the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Engine exposes the circulation engine for recording registration and
// frame release, both of which are safe from any goroutine.
func (w *Worker) Engine() *circulation.Engine {
	return w.engine
}

// Pool returns the preview buffer pool.
func (w *Worker) Pool() *buffers.Pool {
	return w.pool
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		State:           w.State().String(),
		Buffers:         w.pool.Counts(),
		Circulation:     w.engine.Stats(),
		Captures:        w.captures.Load(),
		CaptureFailures: w.captureFailures.Load(),
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		if w.State() != Streaming {
			if !w.handle(<-w.ch.cmds) {
				return
			}
			continue
		}

		select {
		case cmd := <-w.ch.cmds:
			if !w.handle(cmd) {
				return
			}
			continue
		default:
		}

		if err := w.engine.Iterate(); err != nil {
			if errors.Is(err, device.ErrClosed) {
				w.logger.Error("Device closed while streaming", "error", err)
				w.stopPreview()
				w.setState(Idle)
				continue
			}
			w.logger.Warn("Circulation iteration failed", "error", err)
			if !w.backoff() {
				return
			}
			continue
		}
		w.pollFocus()
	}
}

// backoff waits out a device error while still servicing commands.
func (w *Worker) backoff() bool {
	timer := time.NewTimer(w.retryDelay)
	defer timer.Stop()

	select {
	case cmd := <-w.ch.cmds:
		return w.handle(cmd)
	case <-timer.C:
		return true
	}
}

// handle services one command. It returns false when the worker must exit.
func (w *Worker) handle(cmd Command) bool {
	w.logger.Debug("Command received", "kind", cmd.Kind.String(), "state", w.State().String())
	streaming := w.State() == Streaming

	switch cmd.Kind {
	case Start:
		if streaming {
			cmd.nack(fmt.Errorf("%w: already streaming", ErrInvalidState))
			return true
		}
		if err := w.startPreview(cmd.Preview); err != nil {
			w.logger.Warn("Preview start failed", "format", cmd.Preview.Format.String(), "error", err)
			cmd.nack(err)
			return true
		}
		w.preview = cmd.Preview
		w.setState(Streaming)
		cmd.ack()

	case Stop:
		if !streaming {
			cmd.nack(fmt.Errorf("%w: not streaming", ErrInvalidState))
			return true
		}
		w.stopPreview()
		w.setState(Idle)
		cmd.ack()

	case FocusStart, FocusStop, ContinuousFocusStart, ContinuousFocusStop:
		if !streaming {
			cmd.nack(fmt.Errorf("%w: focus needs a running preview", ErrInvalidState))
			return true
		}
		if err := w.focusCommand(cmd); err != nil {
			cmd.nack(err)
			return true
		}
		cmd.ack()

	case Capture:
		cmd.ack()
		req := cmd.Capture
		if req == nil {
			return true
		}
		select {
		case <-req.Done():
			w.logger.Debug("Skipping finished capture request", "request_id", req.ID.String(), "error", req.Err())
			return true
		default:
		}
		if !streaming {
			req.Finish(fmt.Errorf("%w: capture needs a running preview", ErrInvalidState))
			return true
		}
		w.capture(req)

	case CaptureCancel:
		// A capture in progress always runs to completion.
		cmd.nack(fmt.Errorf("%w: capture cannot be aborted", ErrInvalidState))

	case Terminate:
		if streaming {
			w.stopPreview()
		}
		w.setState(Dead)
		cmd.ack()
		return false

	default:
		cmd.nack(fmt.Errorf("%w: unknown command %s", ErrInvalidState, cmd.Kind))
	}
	return true
}

// startPreview configures the device, allocates a fresh preview set,
// primes circulation and starts streaming.
func (w *Worker) startPreview(cfg Config) error {
	if err := w.device.Configure(cfg.Format, cfg.FPS); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigRejected, err)
	}
	crop := imaging.ZoomCrop(cfg.Format.Width, cfg.Format.Height, cfg.Zoom)
	if err := w.sink.SetCrop(crop); err != nil {
		return fmt.Errorf("%w: display crop: %w", ErrConfigRejected, err)
	}
	if err := w.sink.Resize(cfg.Format.Width, cfg.Format.Height); err != nil {
		return fmt.Errorf("%w: display size: %w", ErrConfigRejected, err)
	}

	ids, err := w.pool.Allocate(w.engine.PoolSize(), cfg.Format)
	if err != nil {
		if errors.Is(err, buffers.ErrOutOfMemory) {
			return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrConfigRejected, err)
	}

	if err := w.bindAndStart(ids); err != nil {
		_ = w.device.StopStreaming()
		w.engine.Teardown()
		w.pool.FreeAll()
		return err
	}
	w.logger.Info("Preview streaming", "format", cfg.Format.String(), "fps", cfg.FPS, "zoom", cfg.Zoom, "crop", crop.String(), "buffers", len(ids), "depth", w.engine.Depth())
	return nil
}

func (w *Worker) bindAndStart(ids []buffers.ID) error {
	if err := w.device.Bind(w.pool); err != nil {
		return fmt.Errorf("%w: bind device: %w", ErrConfigRejected, err)
	}
	if err := w.sink.Bind(w.pool); err != nil {
		return fmt.Errorf("%w: bind sink: %w", ErrConfigRejected, err)
	}
	if err := w.engine.Prime(ids); err != nil {
		return fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}
	if err := w.device.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming: %w", err)
	}
	return nil
}

// stopPreview stops streaming and frees the preview set.
func (w *Worker) stopPreview() {
	if err := w.engine.Halt(); err != nil {
		w.logger.Warn("Stop streaming failed", "error", err)
	}
	w.engine.Teardown()
	w.pool.FreeAll()
	if w.focusRunning {
		_ = w.focus.Cancel()
		w.clearFocus()
	}
}

func (w *Worker) focusCommand(cmd Command) error {
	switch cmd.Kind {
	case FocusStart:
		if err := w.focus.Start(); err != nil {
			return err
		}
		w.focusFn = cmd.Focus
		w.focusCookie = cmd.Cookie
		w.focusRunning = true
		return nil
	case FocusStop:
		w.clearFocus()
		return w.focus.Cancel()
	case ContinuousFocusStart:
		return w.focus.StartContinuous()
	default:
		return w.focus.StopContinuous()
	}
}

// pollFocus advances the focus engine once per frame and reports a
// completed run exactly once.
func (w *Worker) pollFocus() {
	done, ok := w.focus.Poll()
	if !done || !w.focusRunning {
		return
	}
	fn, cookie := w.focusFn, w.focusCookie
	w.clearFocus()

	w.logger.Debug("Autofocus completed", "success", ok)
	if fn != nil {
		fn(ok, cookie)
	}
	if w.onFocus != nil {
		w.onFocus(ok)
	}
}

func (w *Worker) clearFocus() {
	w.focusFn = nil
	w.focusCookie = nil
	w.focusRunning = false
}

func (w *Worker) setState(s State) {
	if State(w.state.Swap(int32(s))) == s {
		return
	}
	metrics.SetPreviewState(s.String())
	w.logger.Info("Preview state changed", "state", s.String())
	if w.onStateChange != nil {
		w.onStateChange(s)
	}
}
