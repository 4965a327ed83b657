package preview

import (
	"context"
	"errors"
	"fmt"

	"github.com/smazurov/camerapipe/internal/buffers"
	"github.com/smazurov/camerapipe/internal/capture"
)

var (
	// ErrConfigRejected means the device or the parameters refused the format.
	ErrConfigRejected = errors.New("configuration rejected")
	// ErrAllocationFailed means the buffer pool could not be allocated.
	ErrAllocationFailed = errors.New("buffer allocation failed")
	// ErrInvalidState answers a command the worker cannot service in its
	// current state.
	ErrInvalidState = errors.New("command not valid in current state")
	// ErrWorkerDead is returned once the worker has terminated.
	ErrWorkerDead = errors.New("preview worker terminated")
)

// Kind is the command tag.
type Kind int

const (
	Start Kind = iota
	Stop
	FocusStart
	FocusStop
	ContinuousFocusStart
	ContinuousFocusStop
	Capture
	CaptureCancel
	Terminate
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case FocusStart:
		return "focus_start"
	case FocusStop:
		return "focus_stop"
	case ContinuousFocusStart:
		return "continuous_focus_start"
	case ContinuousFocusStop:
		return "continuous_focus_stop"
	case Capture:
		return "capture"
	case CaptureCancel:
		return "capture_cancel"
	case Terminate:
		return "terminate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Reply is the worker's answer to a command.
type Reply int

const (
	Ack Reply = iota
	Nack
)

func (r Reply) String() string {
	if r == Ack {
		return "ack"
	}
	return "nack"
}

// Response pairs the reply with the reason for a Nack.
type Response struct {
	Reply Reply
	Err   error
}

// FocusFunc is called once when an autofocus run completes.
type FocusFunc func(success bool, cookie any)

// Config is the preview stream configuration applied on Start.
type Config struct {
	Format buffers.Format
	FPS    int
	// Zoom selects the display crop, see imaging.ZoomCrop.
	Zoom int
}

// Command is one request to the worker. The reply channel travels with it
// and is answered exactly once.
type Command struct {
	Kind    Kind
	Preview Config
	Capture *capture.Request
	Focus   FocusFunc
	Cookie  any

	reply chan Response
}

func (c Command) respond(r Response) {
	if c.reply != nil {
		c.reply <- r
	}
}

func (c Command) ack() { c.respond(Response{Reply: Ack}) }

func (c Command) nack(err error) { c.respond(Response{Reply: Nack, Err: err}) }

// Channel is the synchronous request/acknowledgement pair in front of the
// worker. Commands are read in FIFO order by a single goroutine.
type Channel struct {
	cmds chan Command
	dead <-chan struct{}
}

func newChannel(size int, dead <-chan struct{}) *Channel {
	return &Channel{cmds: make(chan Command, size), dead: dead}
}

// Send posts cmd and blocks until the worker answers, the worker dies or
// ctx is done. A Nack is returned as a Response, not an error.
func (c *Channel) Send(ctx context.Context, cmd Command) (Response, error) {
	cmd.reply = make(chan Response, 1)

	select {
	case c.cmds <- cmd:
	case <-c.dead:
		return Response{Reply: Nack, Err: ErrWorkerDead}, ErrWorkerDead
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case r := <-cmd.reply:
		return r, nil
	case <-c.dead:
		// Terminate is answered before the worker exits.
		select {
		case r := <-cmd.reply:
			return r, nil
		default:
		}
		return Response{Reply: Nack, Err: ErrWorkerDead}, ErrWorkerDead
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
