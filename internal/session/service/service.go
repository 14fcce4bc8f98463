// Package service implements the session store: one record per logged-in
// device, capped per user, deactivated (never deleted) on logout or eviction.
package service

import (
	"context"
	"time"

	"studyhub/backend/internal/locks"
	"studyhub/backend/internal/security"
	"studyhub/backend/internal/session/domain"
	"studyhub/backend/internal/session/repository"
)

// RequestContext carries the request attributes recorded on a new session.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

// Service enforces the per-user concurrency cap and tracks session liveness.
type Service struct {
	repo       repository.Repository
	maxPerUser int
	sessionTTL time.Duration
	nowF       func() time.Time

	// userLocks serializes create/evict per user so the cap holds within this
	// process. Across processes the cap stays advisory; the store has no
	// compare-and-swap on the active count.
	userLocks *locks.KeyedMutex
}

// NewService returns a session service with the given cap and lifetime.
func NewService(repo repository.Repository, maxPerUser int, sessionTTL time.Duration) *Service {
	if maxPerUser <= 0 {
		maxPerUser = 5
	}
	return &Service{
		repo:       repo,
		maxPerUser: maxPerUser,
		sessionTTL: sessionTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
		userLocks:  locks.NewKeyedMutex(),
	}
}

// Create opens a session for the user. When the user is already at the cap,
// the least-recently-active session is deactivated first; count-evict-insert
// runs under a per-user lock. Returns the new session id.
func (s *Service) Create(ctx context.Context, userID string, reqCtx RequestContext, method domain.LoginMethod) (string, error) {
	s.userLocks.Lock(userID)
	defer s.userLocks.Unlock(userID)

	active, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	for len(active) >= s.maxPerUser {
		// ListActiveByUser orders most recently active first.
		oldest := active[len(active)-1]
		if err := s.repo.Deactivate(ctx, oldest.ID); err != nil {
			return "", err
		}
		active = active[:len(active)-1]
	}

	id, err := security.RandomOpaqueToken()
	if err != nil {
		return "", err
	}
	now := s.nowF()
	sess := &domain.Session{
		ID:           id,
		UserID:       userID,
		IPAddress:    reqCtx.IPAddress,
		UserAgent:    reqCtx.UserAgent,
		DeviceType:   domain.DeriveDeviceType(reqCtx.UserAgent),
		LoginMethod:  method,
		IsActive:     true,
		LastActivity: now,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return id, nil
}

// Validate reports whether an active, unexpired session exists for id and
// touches its last-activity timestamp as a side effect.
func (s *Service) Validate(ctx context.Context, id string) bool {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil || sess == nil || !sess.IsActive {
		return false
	}
	now := s.nowF()
	if !sess.ExpiresAt.After(now) {
		return false
	}
	// Best-effort; a failed touch does not invalidate the session.
	_ = s.repo.UpdateLastActivity(ctx, id, now)
	return true
}

// IsActive reports session liveness without touching last activity. Used by
// the token manager for the session-bound validity check.
func (s *Service) IsActive(ctx context.Context, id string) bool {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil || sess == nil || !sess.IsActive {
		return false
	}
	return sess.ExpiresAt.After(s.nowF())
}

// ListActive returns the user's active sessions, most recently active first.
func (s *Service) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return s.repo.ListActiveByUser(ctx, userID)
}

// Deactivate marks the session inactive. Returns false only when the record
// could not be found; store write failures fail open, since token blacklisting
// is the authoritative revoke and the session flag is bookkeeping.
func (s *Service) Deactivate(ctx context.Context, id string) bool {
	sess, err := s.repo.GetByID(ctx, id)
	if err != nil || sess == nil {
		return false
	}
	_ = s.repo.Deactivate(ctx, id)
	return true
}

// DeactivateAll logs the user out everywhere, optionally keeping the caller's
// current session. Returns the number of sessions deactivated.
func (s *Service) DeactivateAll(ctx context.Context, userID, exceptID string) int {
	n, err := s.repo.DeactivateAllByUser(ctx, userID, exceptID)
	if err != nil {
		return 0
	}
	return n
}
