package magiclink

import (
	"context"
	"encoding/json"
	"time"

	"studyhub/backend/internal/cache"
)

// Link is the mapping a magic-link token points at while it lives.
type Link struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps magic-link tokens in the distributed cache tier only, never the
// local tier: single-use needs one authoritative copy, and a process-private
// replica could serve an already-consumed token.
type Store struct {
	remote cache.RemoteStore
	ttl    time.Duration
}

// NewStore returns a Store writing through to remote with the given token lifetime.
func NewStore(remote cache.RemoteStore, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{remote: remote, ttl: ttl}
}

func linkKey(token string) string {
	return "magiclink:" + token
}

// Put stores the link under token for the store's TTL.
func (s *Store) Put(ctx context.Context, token string, link Link) error {
	b, err := json.Marshal(link)
	if err != nil {
		return err
	}
	return s.remote.Set(ctx, linkKey(token), string(b), s.ttl)
}

// Get returns the link for token, or found=false when the token never existed,
// expired, or was already consumed.
func (s *Store) Get(ctx context.Context, token string) (Link, bool, error) {
	v, found, err := s.remote.Get(ctx, linkKey(token))
	if err != nil || !found {
		return Link{}, false, err
	}
	var link Link
	if err := json.Unmarshal([]byte(v), &link); err != nil {
		return Link{}, false, nil
	}
	return link, true, nil
}

// Consume deletes the mapping; any replay after this finds nothing.
func (s *Store) Consume(ctx context.Context, token string) error {
	return s.remote.Del(ctx, linkKey(token))
}
