package audio

import (
	"sync/atomic"
	"time"

	"github.com/asem187/voice-pipeline/internal/observability"
)

// FrameQueue is a bounded, thread-safe queue of captured frames sitting
// between the device callback (producer) and the recording loop
// (consumer). Push never blocks: when the queue is full the new frame
// is dropped so the real-time producer is never exposed to consumer
// backpressure. Single producer, single consumer, FIFO.
type FrameQueue struct {
	frames  chan Frame
	dropped atomic.Uint64
}

// NewFrameQueue creates a queue holding at most capacity frames
func NewFrameQueue(capacity int) *FrameQueue {
	return &FrameQueue{
		frames: make(chan Frame, capacity),
	}
}

// Push enqueues a frame without blocking. Returns false when the queue
// is full and the frame was dropped; the drop is counted and surfaced
// as a metric rather than escalated to the caller.
func (q *FrameQueue) Push(f Frame) bool {
	select {
	case q.frames <- f:
		return true
	default:
		q.dropped.Add(1)
		observability.RecordFrameDropped()
		return false
	}
}

// Pop dequeues the oldest frame, waiting up to timeout. Returns false
// when the queue stayed empty for the full timeout; an empty queue is
// not an error.
func (q *FrameQueue) Pop(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-q.frames:
		return f, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-q.frames:
		return f, true
	case <-timer.C:
		return Frame{}, false
	}
}

// TryPop dequeues the oldest frame without waiting
func (q *FrameQueue) TryPop() (Frame, bool) {
	select {
	case f := <-q.frames:
		return f, true
	default:
		return Frame{}, false
	}
}

// Len returns the number of frames currently queued
func (q *FrameQueue) Len() int {
	return len(q.frames)
}

// Dropped returns the total number of frames dropped on overflow
func (q *FrameQueue) Dropped() uint64 {
	return q.dropped.Load()
}
