package locks

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("a")
			counter++
			k.Unlock("a")
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	k.Lock("a")
	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()
	<-done // must not block on the unrelated key
	k.Unlock("a")
}

func TestKeyedMutex_ReleasesIdleEntries(t *testing.T) {
	k := NewKeyedMutex()
	for _, key := range []string{"a", "b", "c"} {
		k.Lock(key)
		k.Unlock(key)
	}
	if n := k.Len(); n != 0 {
		t.Errorf("Len = %d after all unlocks, want 0", n)
	}

	k.Lock("a")
	if n := k.Len(); n != 1 {
		t.Errorf("Len = %d while held, want 1", n)
	}
	k.Unlock("a")
	if n := k.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}
