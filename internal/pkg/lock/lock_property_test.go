// Package lock property-based tests for per-conversation serialization.
package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestSerializedActionsProperty tests Property 1: Serialized Session Actions.
// *For any* number of concurrent actions on the same conversation, a
// read-modify-write under the key lock SHALL lose no updates.
func TestSerializedActionsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")
		key := fmt.Sprintf("conv-%d", rapid.IntRange(1, 1000).Draw(t, "conv"))

		kl := NewKeyLock()
		turns := 0

		var wg sync.WaitGroup
		wg.Add(numOps)
		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					current := turns
					turns = current + 1
					return nil
				})
			}()
		}
		wg.Wait()

		if turns != numOps {
			t.Fatalf("lost updates: expected %d turns, got %d", numOps, turns)
		}
	})
}

// TestIndependentKeysProperty tests Property 2: Independent Conversations.
// *For any* set of conversations, actions on one SHALL NOT affect the
// counters of another.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 10).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(5, 20).Draw(t, "opsPerKey")

		kl := NewKeyLock()
		counts := make(map[string]*int, numKeys)
		for i := 0; i < numKeys; i++ {
			n := 0
			counts[fmt.Sprintf("k%d", i)] = &n
		}

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for key := range counts {
			for j := 0; j < opsPerKey; j++ {
				go func(k string) {
					defer wg.Done()
					kl.Lock(k)
					defer kl.Unlock(k)
					*counts[k]++
				}(key)
			}
		}
		wg.Wait()

		for key, n := range counts {
			if *n != opsPerKey {
				t.Fatalf("key %s: expected %d, got %d", key, opsPerKey, *n)
			}
		}
	})
}

// TestTryLockExclusionProperty tests Property 3: TryLock Exclusion.
// *For any* burst of TryLock attempts on a held key, every attempt SHALL
// fail, and the key SHALL be free again after Unlock.
func TestTryLockExclusionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		attempts := rapid.IntRange(1, 20).Draw(t, "attempts")
		kl := NewKeyLock()

		kl.Lock("busy")

		var acquired atomic.Int32
		var wg sync.WaitGroup
		wg.Add(attempts)
		for i := 0; i < attempts; i++ {
			go func() {
				defer wg.Done()
				if kl.TryLock("busy") {
					acquired.Add(1)
					kl.Unlock("busy")
				}
			}()
		}
		wg.Wait()

		if acquired.Load() != 0 {
			t.Fatalf("TryLock succeeded %d times on a held key", acquired.Load())
		}

		kl.Unlock("busy")
		if !kl.TryLock("busy") {
			t.Fatal("key should be free after Unlock")
		}
		kl.Unlock("busy")
	})
}

// TestLockUnlockSymmetryProperty tests that every Lock has a corresponding Unlock.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cycles := rapid.IntRange(1, 50).Draw(t, "cycles")
		kl := NewKeyLock()

		for i := 0; i < cycles; i++ {
			kl.Lock("k")
			kl.Unlock("k")
		}

		if kl.IsLocked("k") {
			t.Fatal("key should be free after symmetric lock/unlock cycles")
		}
	})
}

func TestWithLockContext_Timeout(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("k")

	err := kl.WithLockContext(context.Background(), "k", 20*time.Millisecond, func() error {
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)

	kl.Unlock("k")
	// The abandoned waiter hands the lock back.
	assert.Eventually(t, func() bool { return !kl.IsLocked("k") }, time.Second, 5*time.Millisecond)
}

func TestForget(t *testing.T) {
	kl := NewKeyLock()

	assert.False(t, kl.Forget("missing"))

	kl.Lock("k")
	assert.False(t, kl.Forget("k"), "held keys are kept")
	kl.Unlock("k")

	require.True(t, kl.Forget("k"))
	assert.False(t, kl.IsLocked("k"))
	assert.True(t, kl.TryLock("k"), "a forgotten key is recreated on demand")
	kl.Unlock("k")
}

func TestForget_KeepsKeyWithWaiters(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("k")

	acquired := make(chan struct{})
	go func() {
		kl.Lock("k")
		close(acquired)
	}()

	// Wait until the second caller is queued on the mutex.
	assert.Eventually(t, func() bool {
		kl.mu.Lock()
		defer kl.mu.Unlock()
		return kl.locks["k"].refs == 2
	}, time.Second, time.Millisecond)

	kl.Unlock("k")
	assert.False(t, kl.Forget("k"), "a queued caller keeps the key")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	kl.Unlock("k")

	assert.False(t, kl.IsLocked("k"), "the waiter released the same mutex it acquired")
	require.True(t, kl.Forget("k"))
	assert.Zero(t, kl.Len())
}

func TestTryLock_FailureLeavesNoReference(t *testing.T) {
	kl := NewKeyLock()
	kl.Lock("k")
	assert.False(t, kl.TryLock("k"))
	kl.Unlock("k")
	assert.True(t, kl.Forget("k"))
}
