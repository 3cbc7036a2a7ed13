package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func seqFrame(seq uint32) Frame {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, seq)
	return Frame{Data: data, Timestamp: time.Now()}
}

func frameSeq(f Frame) uint32 {
	return binary.LittleEndian.Uint32(f.Data)
}

func TestFrameQueue_FIFO(t *testing.T) {
	q := NewFrameQueue(16)

	for i := uint32(0); i < 10; i++ {
		if !q.Push(seqFrame(i)) {
			t.Fatalf("Push %d failed unexpectedly", i)
		}
	}

	for i := uint32(0); i < 10; i++ {
		f, ok := q.TryPop()
		if !ok {
			t.Fatalf("Expected frame %d, queue empty", i)
		}
		if got := frameSeq(f); got != i {
			t.Fatalf("Expected frame %d, got %d", i, got)
		}
	}
}

func TestFrameQueue_FIFOConcurrent(t *testing.T) {
	const total = 1000
	q := NewFrameQueue(total)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := uint32(0); i < total; i++ {
			q.Push(seqFrame(i))
		}
	}()

	for i := uint32(0); i < total; i++ {
		f, ok := q.Pop(time.Second)
		if !ok {
			t.Fatalf("Timed out waiting for frame %d", i)
		}
		if got := frameSeq(f); got != i {
			t.Fatalf("Order violated: expected %d, got %d", i, got)
		}
	}
	<-done

	if q.Dropped() != 0 {
		t.Errorf("Expected no drops, got %d", q.Dropped())
	}
}

func TestFrameQueue_DropsOnOverflow(t *testing.T) {
	q := NewFrameQueue(4)

	for i := uint32(0); i < 4; i++ {
		if !q.Push(seqFrame(i)) {
			t.Fatalf("Push %d should succeed", i)
		}
	}
	// Queue is full: the new frames are dropped, not the queued ones
	for i := uint32(4); i < 6; i++ {
		if q.Push(seqFrame(i)) {
			t.Errorf("Push %d should have been dropped", i)
		}
	}

	if got := q.Dropped(); got != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", got)
	}

	// Retained frames are still the oldest four, in order
	for i := uint32(0); i < 4; i++ {
		f, ok := q.TryPop()
		if !ok || frameSeq(f) != i {
			t.Fatalf("Expected retained frame %d", i)
		}
	}
}

func TestFrameQueue_PopTimeout(t *testing.T) {
	q := NewFrameQueue(4)

	start := time.Now()
	_, ok := q.Pop(50 * time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("Expected empty pop to report no frame")
	}
	if elapsed < 40*time.Millisecond {
		t.Errorf("Pop returned after %v, expected it to wait for the timeout", elapsed)
	}
}

func TestFrameQueue_TryPopEmpty(t *testing.T) {
	q := NewFrameQueue(4)
	if _, ok := q.TryPop(); ok {
		t.Error("Expected TryPop on empty queue to report no frame")
	}
}
