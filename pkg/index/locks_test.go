package index

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessLocksMutualExclusion(t *testing.T) {
	locks := NewAccessLocks()

	h1 := locks.Acquire("serde")
	h1.Lock()

	entered := make(chan struct{})
	go func() {
		h2 := locks.Acquire("serde")
		h2.Lock()
		close(entered)
		h2.Unlock()
		h2.Release()
	}()

	select {
	case <-entered:
		t.Fatal("second holder acquired the lock while the first held it")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Unlock()
	h1.Release()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock")
	}
}

func TestAccessLocksUnrelatedCratesDoNotBlock(t *testing.T) {
	locks := NewAccessLocks()

	h1 := locks.Acquire("serde")
	h1.Lock()
	defer func() {
		h1.Unlock()
		h1.Release()
	}()

	done := make(chan struct{})
	go func() {
		h2 := locks.Acquire("tokio")
		h2.Lock()
		h2.Unlock()
		h2.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("an unrelated crate's lock blocked")
	}
}

func TestAccessLocksSharedReaders(t *testing.T) {
	locks := NewAccessLocks()

	var wg sync.WaitGroup
	gate := make(chan struct{})
	entered := make(chan struct{}, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := locks.Acquire("serde")
			defer h.Release()
			h.RLock()
			defer h.RUnlock()
			entered <- struct{}{}
			<-gate
		}()
	}

	// All four readers must be inside the lock before the gate opens.
	for range 4 {
		select {
		case <-entered:
		case <-time.After(time.Second):
			close(gate)
			t.Fatal("readers did not share the lock")
		}
	}
	close(gate)
	wg.Wait()
}

func TestAccessLocksEntryCleanup(t *testing.T) {
	locks := NewAccessLocks()

	h1 := locks.Acquire("serde")
	h2 := locks.Acquire("serde")
	assert.True(t, locks.held("serde"))

	h1.Release()
	assert.True(t, locks.held("serde"), "entry dropped while a holder remains")

	h2.Release()
	assert.False(t, locks.held("serde"), "entry kept after the last holder released")
}

func TestAccessLocksReleaseIsIdempotent(t *testing.T) {
	locks := NewAccessLocks()

	h1 := locks.Acquire("serde")
	h2 := locks.Acquire("serde")
	h1.Release()
	h1.Release()

	// The double release above must not have dropped h2's reference.
	assert.True(t, locks.held("serde"))
	h2.Release()
	assert.False(t, locks.held("serde"))
}
