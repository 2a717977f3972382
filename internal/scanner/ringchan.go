package scanner

import "sync/atomic"

// ringChannel is a bounded channel with overwrite-oldest semantics.
// Producers never block: when the buffer is full the oldest element is discarded.
//
// Only one goroutine may send at a time; the scanner serialises sends under its lock.
type ringChannel[T any] struct {
	ch      chan T
	dropped atomic.Int64
}

func newRingChannel[T any](capacity int) *ringChannel[T] {
	if capacity <= 0 {
		panic("scanner: ring capacity must be > 0")
	}
	return &ringChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side.
func (rc *ringChannel[T]) C() <-chan T {
	return rc.ch
}

// forceSend always succeeds immediately, discarding the oldest value if needed.
// It reports whether a value was dropped.
func (rc *ringChannel[T]) forceSend(v T) bool {
	select {
	case rc.ch <- v:
		return false
	default:
	}

	dropped := false
	select {
	case <-rc.ch:
		rc.dropped.Add(1)
		dropped = true
	default:
	}
	rc.ch <- v
	return dropped
}

// Dropped returns how many values were overwritten before being read.
func (rc *ringChannel[T]) Dropped() int64 {
	return rc.dropped.Load()
}
