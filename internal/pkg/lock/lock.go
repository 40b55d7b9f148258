// Package lock provides per-key mutual exclusion.
// Session dispatch and the reaper both lock a conversation by its id so
// that an expiring session never races an in-flight action.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a key cannot be locked within the timeout period.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// keyMutex wraps a mutex with a count of holders and waiters. An entry is
// only dropped from the map while that count is zero.
type keyMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyLock maps string keys to lazily created mutexes.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*keyMutex)}
}

// acquire returns the mutex for key, creating it if needed, and counts the
// caller as a reference.
func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.locks[key]
	if !ok {
		l = &keyMutex{}
		kl.locks[key] = l
	}
	l.refs++
	return l
}

// release drops one reference taken by acquire.
func (kl *KeyLock) release(l *keyMutex) {
	kl.mu.Lock()
	l.refs--
	kl.mu.Unlock()
}

// Lock acquires the lock for key.
func (kl *KeyLock) Lock(key string) {
	kl.acquire(key).mu.Lock()
}

// Unlock releases the lock for key.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	l, ok := kl.locks[key]
	if ok {
		l.refs--
	}
	kl.mu.Unlock()
	if ok {
		l.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (kl *KeyLock) TryLock(key string) bool {
	l := kl.acquire(key)
	if l.mu.TryLock() {
		return true
	}
	kl.release(l)
	return false
}

// LockWithTimeout attempts to acquire the lock until timeout or ctx ends.
func (kl *KeyLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	l := kl.acquire(key)

	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiter still acquires eventually; hand the lock straight back.
		go func() {
			<-done
			kl.release(l)
			l.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the lock for key.
func (kl *KeyLock) WithLock(key string, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key, giving up
// with ErrLockTimeout if the lock is not acquired within timeout.
func (kl *KeyLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !kl.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer kl.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked checks if key is currently held.
// Note: This is a point-in-time check and may change immediately after.
func (kl *KeyLock) IsLocked(key string) bool {
	kl.mu.Lock()
	l, ok := kl.locks[key]
	kl.mu.Unlock()
	if !ok {
		return false
	}
	if l.mu.TryLock() {
		l.mu.Unlock()
		return false
	}
	return true
}

// Forget drops the mutex for key once nobody holds or waits on it. Callers
// use it after a session ends so the map does not grow with every
// conversation id. It reports whether the entry was removed.
func (kl *KeyLock) Forget(key string) bool {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.locks[key]
	if !ok || l.refs > 0 {
		return false
	}
	delete(kl.locks, key)
	return true
}

// Len returns how many keys currently have a mutex.
func (kl *KeyLock) Len() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
