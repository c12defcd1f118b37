package fixture

import "sync/atomic"

// LoadLock is a non-blocking lock guarding one load at a time per Loader.
type LoadLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to take the lock without blocking.
func (l *LoadLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Only the holder may call it.
func (l *LoadLock) Release() {
	l.state.Store(0)
}
