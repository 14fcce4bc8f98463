// Package token implements the token pair manager: minting, validation,
// rotation, and revocation of paired access/refresh tokens bound to a session.
package token

import (
	"context"
	"time"

	"studyhub/backend/internal/locks"
	"studyhub/backend/internal/security"
)

// ErrInvalidToken is the uniform failure for every validation outcome: bad
// signature, expired, wrong type, blacklisted, or session no longer active.
// Callers never learn which check failed.
var ErrInvalidToken = security.ErrInvalidToken

// SessionChecker is the session-store surface the manager needs to enforce
// session-bound token validity.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) bool
	Deactivate(ctx context.Context, sessionID string) bool
}

// TokenPair is one minted access/refresh pair sharing userId and sessionId.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager mints, validates, rotates, and blacklists token pairs.
type Manager struct {
	signer           *security.TokenSigner
	blacklist        *Blacklist
	sessions         SessionChecker
	refreshThreshold time.Duration
	nowF             func() time.Time

	// sessionLocks single-flights rotation per sessionId so two concurrent
	// refreshes of the same token cannot both pass the blacklist check.
	sessionLocks *locks.KeyedMutex
}

// NewManager returns a Manager over the given signer, blacklist, and session
// store. refreshThreshold is the remaining-lifetime low-water mark below which
// ShouldRefresh advises a proactive refresh.
func NewManager(signer *security.TokenSigner, blacklist *Blacklist, sessions SessionChecker, refreshThreshold time.Duration) *Manager {
	return &Manager{
		signer:           signer,
		blacklist:        blacklist,
		sessions:         sessions,
		refreshThreshold: refreshThreshold,
		nowF:             func() time.Time { return time.Now().UTC() },
		sessionLocks:     locks.NewKeyedMutex(),
	}
}

// GeneratePair mints an access/refresh pair bound to the given user and session.
func (m *Manager) GeneratePair(ctx context.Context, userID, sessionID string) (*TokenPair, error) {
	access, accessExp, err := m.signer.SignAccess(userID, sessionID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := m.signer.SignRefresh(userID, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// ValidateAccess verifies the token as an access token: signature, expiry,
// type, blacklist, and liveness of the bound session.
func (m *Manager) ValidateAccess(ctx context.Context, token string) (*security.Claims, error) {
	return m.validate(ctx, token, security.TokenTypeAccess)
}

// ValidateRefresh verifies the token as a refresh token.
func (m *Manager) ValidateRefresh(ctx context.Context, token string) (*security.Claims, error) {
	return m.validate(ctx, token, security.TokenTypeRefresh)
}

func (m *Manager) validate(ctx context.Context, token string, typ security.TokenType) (*security.Claims, error) {
	claims, err := m.signer.Parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != typ {
		return nil, ErrInvalidToken
	}
	if m.blacklist.Contains(ctx, token) {
		return nil, ErrInvalidToken
	}
	if !m.sessions.IsActive(ctx, claims.SessionID) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Metadata decodes the token's claims without verifying the signature. Good
// only for branching (e.g. legacy-format detection), never for authorization.
func (m *Manager) Metadata(token string) (*security.Claims, error) {
	return m.signer.ParseUnverified(token)
}

// ShouldRefresh reports whether the access token's remaining lifetime is under
// the low-water mark. Advisory only; an invalid token reads false.
func (m *Manager) ShouldRefresh(token string) bool {
	claims, err := m.signer.Parse(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Sub(m.nowF()) < m.refreshThreshold
}

// Refresh validates the refresh token and rotates it, returning a brand-new
// pair. Rotation is single-flighted per sessionId: of two concurrent refreshes
// with the same token, exactly one wins.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := m.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	m.sessionLocks.Lock(claims.SessionID)
	defer m.sessionLocks.Unlock(claims.SessionID)
	// Re-check under the lock: a racing refresh may have rotated first.
	if m.blacklist.Contains(ctx, refreshToken) {
		return nil, ErrInvalidToken
	}
	return m.rotate(ctx, refreshToken, claims)
}

// Rotate blacklists oldToken and mints a new pair for the given user and
// session. One-shot: once rotated, oldToken can never be used again, even if
// the new pair is later invalidated.
func (m *Manager) Rotate(ctx context.Context, oldToken, userID, sessionID string) (*TokenPair, error) {
	claims, err := m.signer.ParseUnverified(oldToken)
	if err != nil || claims.UserID != userID || claims.SessionID != sessionID {
		return nil, ErrInvalidToken
	}
	return m.rotate(ctx, oldToken, claims)
}

// rotate blacklists first, then mints, so a crash between the two steps loses
// a pair rather than leaving a live old token.
func (m *Manager) rotate(ctx context.Context, oldToken string, claims *security.Claims) (*TokenPair, error) {
	m.BlacklistToken(ctx, oldToken)
	return m.GeneratePair(ctx, claims.UserID, claims.SessionID)
}

// BlacklistToken revokes the token for its remaining lifetime. Idempotent.
func (m *Manager) BlacklistToken(ctx context.Context, token string) {
	expiresAt := m.nowF() // already-expired fallback; Add applies the residual TTL
	if claims, err := m.signer.ParseUnverified(token); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	m.blacklist.Add(ctx, token, expiresAt)
}

// IsBlacklisted reports whether the token has been revoked.
func (m *Manager) IsBlacklisted(ctx context.Context, token string) bool {
	return m.blacklist.Contains(ctx, token)
}

// RevokeSession is the "kill this device" operation: it deactivates the
// session so every token bound to it, blacklisted or not, fails the liveness
// check. Always safe to call when no tokens are individually known.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string) bool {
	return m.sessions.Deactivate(ctx, sessionID)
}
