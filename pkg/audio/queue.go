package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueFrames is the default capacity of capture and playback queues:
// 10 frames ≈ 300 ms at the 30 ms cadence.
const DefaultQueueFrames = 10

// CaptureQueue is the bounded FIFO between a device capture callback and the
// pipeline consumer. Push never blocks: when the queue is full the oldest
// unread frame is evicted, the drop counter is incremented, and a warning is
// logged (rate-limited to the first occurrence per overflow burst).
//
// Exactly one producer (the device callback) and one consumer (the pipeline)
// are expected. Frames are delivered in production order.
type CaptureQueue struct {
	mu     sync.Mutex
	frames []Frame
	cap    int
	out    chan Frame
	closed bool

	produced atomic.Uint64
	dropped  atomic.Uint64
	warned   atomic.Bool
}

// NewCaptureQueue creates a queue holding at most capacity frames.
// capacity <= 0 selects [DefaultQueueFrames].
func NewCaptureQueue(capacity int) *CaptureQueue {
	if capacity <= 0 {
		capacity = DefaultQueueFrames
	}
	return &CaptureQueue{
		cap: capacity,
		out: make(chan Frame, capacity),
	}
}

// Push enqueues a frame from the device callback. It never blocks: a full
// queue evicts its oldest unread frame first. Push after Close is a no-op.
func (q *CaptureQueue) Push(frame Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	q.produced.Add(1)

	select {
	case q.out <- frame:
		q.warned.Store(false)
	default:
		// Full: evict the oldest unread frame, then retry.
		select {
		case <-q.out:
			q.dropped.Add(1)
			if q.warned.CompareAndSwap(false, true) {
				slog.Warn("audio: capture queue full, dropping oldest frame",
					"capacity", q.cap,
					"dropped_total", q.dropped.Load(),
				)
			}
		default:
		}
		select {
		case q.out <- frame:
		default:
			// Consumer raced an eviction slot away; count the loss.
			q.dropped.Add(1)
		}
	}
}

// Frames returns the consumer channel. Closed by [CaptureQueue.Close].
func (q *CaptureQueue) Frames() <-chan Frame { return q.out }

// Stats returns a snapshot of the queue counters.
func (q *CaptureQueue) Stats() CaptureStats {
	return CaptureStats{
		FramesProduced: q.produced.Load(),
		FramesDropped:  q.dropped.Load(),
	}
}

// Close closes the consumer channel. Subsequent Push calls are dropped
// silently. Safe to call more than once.
func (q *CaptureQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.out)
}

// PlaybackRing is the bounded queue between the pipeline and a device
// playback callback. Write rejects with [ErrBufferFull] when no slot is free;
// Pop never blocks and reports whether a frame was available.
type PlaybackRing struct {
	mu     sync.Mutex
	frames chan Frame
	closed bool
}

// NewPlaybackRing creates a ring holding at most capacity frames.
// capacity <= 0 selects [DefaultQueueFrames].
func NewPlaybackRing(capacity int) *PlaybackRing {
	if capacity <= 0 {
		capacity = DefaultQueueFrames
	}
	return &PlaybackRing{frames: make(chan Frame, capacity)}
}

// Write enqueues a frame for the device. Returns [ErrBufferFull] when the
// ring is full and [ErrStreamClosed] after Close.
func (r *PlaybackRing) Write(frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrStreamClosed
	}
	select {
	case r.frames <- frame:
		return nil
	default:
		return ErrBufferFull
	}
}

// Pop dequeues the next frame for the device callback without blocking.
func (r *PlaybackRing) Pop() (Frame, bool) {
	select {
	case f, ok := <-r.frames:
		return f, ok
	default:
		return Frame{}, false
	}
}

// Len reports the number of frames currently enqueued.
func (r *PlaybackRing) Len() int { return len(r.frames) }

// Drain discards all enqueued frames without closing the ring.
func (r *PlaybackRing) Drain() {
	for {
		select {
		case <-r.frames:
		default:
			return
		}
	}
}

// Close discards enqueued frames and rejects further writes. Safe to call
// more than once.
func (r *PlaybackRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for {
		select {
		case <-r.frames:
		default:
			return
		}
	}
}
