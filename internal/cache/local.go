package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// localEntry is one value in the local tier.
type localEntry struct {
	key        string
	value      string
	expiresAt  time.Time
	size       int
	lruElement *list.Element
}

// localStore is the process-private tier: a bounded map with per-entry TTL,
// capped by item count and approximate memory. Never authoritative across
// processes.
type localStore struct {
	mu       sync.Mutex
	entries  map[string]*localEntry
	lru      *list.List // front = most recently used
	maxItems int
	maxBytes int
	curBytes int
	nowF     func() time.Time
}

func newLocalStore(maxItems, maxBytes int) *localStore {
	if maxItems <= 0 {
		maxItems = 10000
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	return &localStore{
		entries:  make(map[string]*localEntry),
		lru:      list.New(),
		maxItems: maxItems,
		maxBytes: maxBytes,
		nowF:     func() time.Time { return time.Now().UTC() },
	}
}

// get returns the value for key if present and not expired, marking it
// recently used.
func (s *localStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.removeLocked(e)
		return "", false
	}
	s.lru.MoveToFront(e.lruElement)
	return e.value, true
}

// set stores value for key until now+ttl, evicting expired then
// least-recently-used entries to stay under the caps.
func (s *localStore) set(key, value string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.removeLocked(e)
	}
	e := &localEntry{
		key:       key,
		value:     value,
		expiresAt: s.nowF().Add(ttl),
		size:      len(key) + len(value),
	}
	e.lruElement = s.lru.PushFront(e)
	s.entries[key] = e
	s.curBytes += e.size
	s.evictLocked()
}

func (s *localStore) delPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) {
			s.removeLocked(e)
		}
	}
}

func (s *localStore) del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(e)
	return true
}

func (s *localStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*localEntry)
	s.lru.Init()
	s.curBytes = 0
}

func (s *localStore) stats() (items, bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), s.curBytes
}

func (s *localStore) removeLocked(e *localEntry) {
	s.lru.Remove(e.lruElement)
	delete(s.entries, e.key)
	s.curBytes -= e.size
}

// localRemoteAdapter presents the local tier through the RemoteStore
// interface, for single-process deployments that run without Redis.
type localRemoteAdapter struct {
	s *localStore
}

func (a localRemoteAdapter) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := a.s.get(key)
	return v, ok, nil
}

func (a localRemoteAdapter) Set(_ context.Context, key, value string, ttl time.Duration) error {
	a.s.set(key, value, ttl)
	return nil
}

func (a localRemoteAdapter) Del(_ context.Context, key string) error {
	a.s.del(key)
	return nil
}

func (a localRemoteAdapter) DelPrefix(_ context.Context, prefix string) error {
	a.s.delPrefix(prefix)
	return nil
}

func (a localRemoteAdapter) Ping(_ context.Context) error { return nil }

// evictLocked drops entries from the LRU tail until both caps hold.
// Expired entries at the tail go first by construction.
func (s *localStore) evictLocked() {
	for len(s.entries) > s.maxItems || s.curBytes > s.maxBytes {
		back := s.lru.Back()
		if back == nil {
			return
		}
		s.removeLocked(back.Value.(*localEntry))
	}
}
