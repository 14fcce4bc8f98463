// Package locks provides a keyed mutex that holds no memory for idle keys.
package locks

import "sync"

// KeyedMutex serializes callers per key. Entries are reference-counted and
// removed when the last holder releases, so memory stays bounded by the
// number of keys currently contended rather than ever seen.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock acquires the mutex for key, blocking while another caller holds it.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Must pair with a prior Lock for the
// same key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e := k.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// Len reports how many keys currently hold an entry.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
