// Package capture defines a still-picture request and the raw frame it
// produces. A Request carries its own callbacks and cookie through the
// preview worker and the staging stages, so no correlation table is needed.
package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/camerapipe/internal/imaging"
)

// ShutterFunc fires when the exposure starts.
type ShutterFunc func(cookie any)

// RawFunc receives the unprocessed frame. The frame is only valid for the
// duration of the call.
type RawFunc func(frame *Frame, cookie any)

// EncodedFunc receives the encoded picture. The slice belongs to the callee.
type EncodedFunc func(data []byte, cookie any)

// Callbacks are the per-request client notifications. Any may be nil.
type Callbacks struct {
	Shutter ShutterFunc
	Raw     RawFunc
	Encoded EncodedFunc
}

// Settings is the picture configuration captured when the request is made.
type Settings struct {
	Width           int                  `json:"width"`
	Height          int                  `json:"height"`
	Quality         int                  `json:"quality"`
	Zoom            int                  `json:"zoom"`
	Rotation        int                  `json:"rotation"`
	Filter          imaging.FilterParams `json:"filter"`
	SnapshotPreview bool                 `json:"snapshot_preview"`
}

// Transform returns the resample the post-process stage applies.
func (s Settings) Transform() imaging.Transform {
	return imaging.Transform{
		Width:    s.Width,
		Height:   s.Height,
		Rotation: s.Rotation,
		Zoom:     s.Zoom,
	}
}

// Request is one takePicture call.
type Request struct {
	ID       uuid.UUID
	Settings Settings
	Callbacks
	Cookie  any
	Created time.Time

	once  sync.Once
	mu    sync.Mutex
	hooks []func(*Request, error)
	err   error
	done  chan struct{}
}

// NewRequest creates a request with a fresh id.
func NewRequest(settings Settings, cb Callbacks, cookie any) *Request {
	return &Request{
		ID:        uuid.New(),
		Settings:  settings,
		Callbacks: cb,
		Cookie:    cookie,
		Created:   time.Now(),
		done:      make(chan struct{}),
	}
}

// OnDone registers fn to run when the request finishes. Hooks run in
// registration order on the finishing goroutine. Registering after Finish
// runs fn immediately.
func (r *Request) OnDone(fn func(*Request, error)) {
	r.mu.Lock()
	select {
	case <-r.done:
		err := r.err
		r.mu.Unlock()
		fn(r, err)
		return
	default:
	}
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// Finish marks the request complete. Only the first call has an effect.
func (r *Request) Finish(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.err = err
		hooks := r.hooks
		r.hooks = nil
		close(r.done)
		r.mu.Unlock()

		for _, fn := range hooks {
			fn(r, err)
		}
	})
}

// Done is closed once the request has finished.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err is the outcome after Done is closed.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
