// Package focus provides the autofocus strategies driven by the preview
// worker. Engines are polled once per preview frame from the worker
// goroutine and need no locking of their own.
package focus

import "errors"

// ErrBusy is returned by Start while a focus run is already in progress.
var ErrBusy = errors.New("autofocus already running")

// Engine is an autofocus strategy.
type Engine interface {
	// Start begins a single autofocus run.
	Start() error
	// Cancel aborts a single run without reporting completion.
	Cancel() error
	StartContinuous() error
	StopContinuous() error
	// Poll advances the engine by one frame. done is true exactly once per
	// completed single run.
	Poll() (done, success bool)
}

// Fixed is a fixed-focus lens: every run completes successfully on the
// next frame.
type Fixed struct {
	pending    bool
	continuous bool
}

// Start implements Engine.
func (f *Fixed) Start() error {
	if f.pending {
		return ErrBusy
	}
	f.pending = true
	return nil
}

// Cancel implements Engine.
func (f *Fixed) Cancel() error {
	f.pending = false
	return nil
}

// StartContinuous implements Engine.
func (f *Fixed) StartContinuous() error {
	f.continuous = true
	return nil
}

// StopContinuous implements Engine.
func (f *Fixed) StopContinuous() error {
	f.continuous = false
	return nil
}

// Continuous reports whether continuous focus is on.
func (f *Fixed) Continuous() bool {
	return f.continuous
}

// Poll implements Engine.
func (f *Fixed) Poll() (bool, bool) {
	if !f.pending {
		return false, false
	}
	f.pending = false
	return true, true
}
