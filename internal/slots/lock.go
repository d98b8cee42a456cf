package slots

import "sync/atomic"

// generationLock is a non-blocking lock: a second generation run is
// refused instead of queued behind the first.
type generationLock struct {
	state atomic.Int32 // 0 = free, 1 = generation running
}

// tryAcquire takes the lock without blocking and reports whether it succeeded
func (l *generationLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// release frees the lock. Only the holder may call it.
func (l *generationLock) release() {
	l.state.Store(0)
}
