package server

import (
	"sync"
	"testing"
	"time"

	"github.com/coreos/etcd/pkg/testutil"
)

func TestKeyLocksSerializeSameKey(t *testing.T) {
	var kl keyLocks

	unlock := kl.lock("k")
	acquired := make(chan struct{})
	go func() {
		u := kl.lock("k")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	// other keys are not blocked
	other := kl.lock("j")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(3 * time.Second):
		t.Fatal("second lock not acquired after unlock")
	}
}

func TestKeyLocksReleased(t *testing.T) {
	var kl keyLocks

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.lock("k")()
		}()
	}
	wg.Wait()

	kl.mu.Lock()
	n := len(kl.locks)
	kl.mu.Unlock()
	testutil.AssertEqual(t, 0, n)
}
