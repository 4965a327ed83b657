package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/camerapipe/internal/buffers"
)

// Frame is a captured picture buffer held by the client side of the
// pipeline. Data aliases pool memory until Release.
type Frame struct {
	ID        buffers.ID
	Format    buffers.Format
	Data      []byte
	Timestamp time.Time

	pool    *buffers.Pool
	release sync.Once
	err     error
}

// Claim moves a Free picture buffer to HeldByClient and wraps it.
func Claim(pool *buffers.Pool, id buffers.ID) (*Frame, error) {
	data, err := pool.Bytes(id)
	if err != nil {
		return nil, err
	}
	if err := pool.Transfer(id, buffers.Free, buffers.HeldByClient); err != nil {
		return nil, fmt.Errorf("claim %s: %w", id, err)
	}
	return &Frame{
		ID:        id,
		Format:    pool.Format(),
		Data:      data,
		Timestamp: time.Now(),
		pool:      pool,
	}, nil
}

// Release hands the buffer back and frees its backing store. Calls after
// the first return the first result.
func (f *Frame) Release() error {
	f.release.Do(func() {
		err := f.pool.Transfer(f.ID, buffers.HeldByClient, buffers.Free)
		if err == nil {
			err = f.pool.Free(f.ID)
		}
		if errors.Is(err, buffers.ErrStaleBuffer) {
			err = nil
		}
		f.err = err
		f.Data = nil
	})
	return f.err
}
