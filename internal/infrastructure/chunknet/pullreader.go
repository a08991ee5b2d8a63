package chunknet

import (
	"io"
	"sync"
)

const defaultQueueDepth = 64

// PullReader adapts the push-style arrival of chunk payloads into an
// on-demand byte stream. One producer pushes buffers, one consumer reads;
// Read suspends while the queue is empty. After end-of-stream is signalled
// and the queue drains, Read returns io.EOF on every call.
//
// Acknowledgement is the real back-pressure mechanism upstream, but the
// queue capacity acts as a high-water mark: a producer pushing into a full
// queue blocks until the consumer catches up.
type PullReader struct {
	queue     chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	closeErr  error // set before queue closes; read after the close is observed

	pending []byte
}

func NewPullReader(depth int) *PullReader {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &PullReader{
		queue: make(chan []byte, depth),
		done:  make(chan struct{}),
	}
}

// push hands one buffer to the consumer, blocking while the queue is full.
// It reports false once the consumer has gone away.
func (r *PullReader) push(buf []byte) bool {
	select {
	case r.queue <- buf:
		return true
	case <-r.done:
		return false
	}
}

// closeQueue signals end-of-stream. A non-nil err marks an abnormal end
// that Read surfaces instead of io.EOF once the queue drains.
func (r *PullReader) closeQueue(err error) {
	r.closeOnce.Do(func() {
		r.closeErr = err
		close(r.queue)
	})
}

func (r *PullReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		buf, ok := <-r.queue
		if !ok {
			if r.closeErr != nil {
				return 0, r.closeErr
			}
			return 0, io.EOF
		}
		r.pending = buf
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// Prime buffers up to n bytes ahead of the next Read, so a demuxer can
// probe the container from one burst. Reaching end-of-stream before n
// bytes is not an error; an abnormal end is.
func (r *PullReader) Prime(n int) error {
	for len(r.pending) < n {
		buf, ok := <-r.queue
		if !ok {
			return r.closeErr
		}
		r.pending = append(r.pending, buf...)
	}
	return nil
}

// Close releases the consumer side and unblocks a blocked producer.
func (r *PullReader) Close() error {
	r.doneOnce.Do(func() { close(r.done) })
	return nil
}
