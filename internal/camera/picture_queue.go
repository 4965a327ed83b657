package camera

import (
	"context"
	"sync"

	"github.com/smazurov/camerapipe/internal/capture"
	"github.com/smazurov/camerapipe/internal/metrics"
)

// pictureQueue keeps at most one capture in flight. Requests arriving
// while one runs wait in FIFO order with their own callbacks; each
// completion dispatches exactly one more.
type pictureQueue struct {
	dispatch func(ctx context.Context, req *capture.Request)

	mu       sync.Mutex
	inFlight *capture.Request
	pending  []*capture.Request
}

func newPictureQueue(dispatch func(context.Context, *capture.Request)) *pictureQueue {
	return &pictureQueue{dispatch: dispatch}
}

// submit starts req now or queues it behind the running capture. It
// reports whether the request was queued.
func (q *pictureQueue) submit(ctx context.Context, req *capture.Request) bool {
	q.mu.Lock()
	if q.inFlight != nil {
		q.pending = append(q.pending, req)
		metrics.SetPictureQueueDepth(len(q.pending))
		q.mu.Unlock()
		return true
	}
	q.inFlight = req
	q.mu.Unlock()

	q.dispatch(ctx, req)
	return false
}

// complete is the end-of-capture signal for req.
func (q *pictureQueue) complete(req *capture.Request) {
	q.mu.Lock()
	if q.inFlight != req {
		q.mu.Unlock()
		return
	}
	q.inFlight = nil

	var next *capture.Request
	if len(q.pending) > 0 {
		next = q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.inFlight = next
	}
	metrics.SetPictureQueueDepth(len(q.pending))
	q.mu.Unlock()

	if next != nil {
		go q.dispatch(context.Background(), next)
	}
}

// cancel drops every queued request and returns them. The running capture
// is not affected.
func (q *pictureQueue) cancel() []*capture.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.pending
	q.pending = nil
	metrics.SetPictureQueueDepth(0)
	return dropped
}

// queuedCount is the number of requests waiting behind the running one.
func (q *pictureQueue) queuedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *pictureQueue) busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight != nil
}
