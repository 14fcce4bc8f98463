package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/security"
)

type fakeSessions struct {
	mu       sync.Mutex
	inactive map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{inactive: make(map[string]bool)}
}

func (f *fakeSessions) IsActive(ctx context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.inactive[id]
}

func (f *fakeSessions) Deactivate(ctx context.Context, id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inactive[id] = true
	return true
}

func newTestManager(t *testing.T) (*Manager, *fakeSessions) {
	t.Helper()
	signer := security.NewTokenSigner([]byte("test-secret"), "studyhub-auth", 15*time.Minute, 168*time.Hour)
	bl := NewBlacklist(cache.New(1000, 1<<20, nil, "test"))
	sessions := newFakeSessions()
	return NewManager(signer, bl, sessions, 5*time.Minute), sessions
}

func TestManager_GeneratePair(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	pair, err := m.GeneratePair(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GeneratePair: %v", err)
	}
	access, err := m.Metadata(pair.AccessToken)
	if err != nil {
		t.Fatalf("Metadata access: %v", err)
	}
	refresh, err := m.Metadata(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Metadata refresh: %v", err)
	}
	if access.Type != security.TokenTypeAccess {
		t.Errorf("access type = %q", access.Type)
	}
	if refresh.Type != security.TokenTypeRefresh {
		t.Errorf("refresh type = %q", refresh.Type)
	}
	if access.UserID != refresh.UserID || access.SessionID != refresh.SessionID {
		t.Error("pair does not share userId/sessionId")
	}
	if access.UserID != "u1" || access.SessionID != "s1" {
		t.Errorf("claims: userID=%q sessionID=%q", access.UserID, access.SessionID)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	claims, err := m.ValidateAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("fresh access token failed validation: %v", err)
	}
	if claims.UserID != "u1" || claims.SessionID != "s1" {
		t.Errorf("claims: %+v", claims)
	}
	if _, err := m.ValidateRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("fresh refresh token failed validation: %v", err)
	}
}

func TestManager_TypeMismatchRejected(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	if _, err := m.ValidateAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token validated as access: %v", err)
	}
	if _, err := m.ValidateRefresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token validated as refresh: %v", err)
	}
}

func TestManager_BlacklistIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	m.BlacklistToken(ctx, pair.AccessToken)
	if !m.IsBlacklisted(ctx, pair.AccessToken) {
		t.Fatal("token not blacklisted")
	}
	// Second call is a no-op, not an error.
	m.BlacklistToken(ctx, pair.AccessToken)
	if !m.IsBlacklisted(ctx, pair.AccessToken) {
		t.Fatal("token lost blacklisting after second call")
	}
	if _, err := m.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("blacklisted token validated: %v", err)
	}
}

func TestManager_RefreshRotatesOneShot(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	newPair, err := m.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if newPair.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	// The old refresh token is dead forever.
	if _, err := m.ValidateRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("rotated-away token still validates: %v", err)
	}
	if _, err := m.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("second refresh with old token succeeded: %v", err)
	}
	// The new pair works.
	if _, err := m.ValidateAccess(ctx, newPair.AccessToken); err != nil {
		t.Errorf("new access token invalid: %v", err)
	}
}

func TestManager_ConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	const n = 8
	var wg sync.WaitGroup
	wins := make(chan *TokenPair, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := m.Refresh(ctx, pair.RefreshToken); err == nil {
				wins <- p
			}
		}()
	}
	wg.Wait()
	close(wins)
	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("concurrent refreshes: %d winners, want exactly 1", count)
	}
}

func TestManager_SessionInactiveInvalidatesTokens(t *testing.T) {
	ctx := context.Background()
	m, sessions := newTestManager(t)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	if _, err := m.ValidateAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("precondition: %v", err)
	}
	if !m.RevokeSession(ctx, "s1") {
		t.Fatal("RevokeSession returned false")
	}
	if sessions.IsActive(ctx, "s1") {
		t.Fatal("session still active after revoke")
	}
	// Tokens were never individually blacklisted, yet both fail now.
	if _, err := m.ValidateAccess(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token survived session revoke: %v", err)
	}
	if _, err := m.ValidateRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token survived session revoke: %v", err)
	}
}

func TestManager_ShouldRefresh(t *testing.T) {
	ctx := context.Background()
	signer := security.NewTokenSigner([]byte("test-secret"), "studyhub-auth", 15*time.Minute, 168*time.Hour)
	bl := NewBlacklist(cache.New(1000, 1<<20, nil, "test"))
	m := NewManager(signer, bl, newFakeSessions(), 5*time.Minute)

	pair, _ := m.GeneratePair(ctx, "u1", "s1")
	if m.ShouldRefresh(pair.AccessToken) {
		t.Error("fresh token should not need refresh")
	}
	// Move the manager clock to 11 minutes after mint: 4 minutes remain,
	// under the 5 minute low-water mark.
	m.nowF = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	if !m.ShouldRefresh(pair.AccessToken) {
		t.Error("token within low-water mark should advise refresh")
	}
	if m.ShouldRefresh("garbage") {
		t.Error("invalid token should read false")
	}
}

func TestManager_Metadata_NoTrust(t *testing.T) {
	m, _ := newTestManager(t)
	// Metadata decodes tokens signed by anyone; it must never be used to authorize.
	foreign := security.NewTokenSigner([]byte("attacker"), "elsewhere", time.Minute, time.Hour)
	tok, _, _ := foreign.SignAccess("u-evil", "s-evil")
	claims, err := m.Metadata(tok)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if claims.UserID != "u-evil" {
		t.Errorf("Metadata claims = %+v", claims)
	}
	if _, err := m.ValidateAccess(context.Background(), tok); !errors.Is(err, ErrInvalidToken) {
		t.Error("foreign token passed full validation")
	}
}

func TestBlacklist_TTLBoundedByTokenLifetime(t *testing.T) {
	ctx := context.Background()
	c := cache.New(1000, 1<<20, nil, "test")
	bl := NewBlacklist(c)

	base := time.Now().UTC()
	bl.nowF = func() time.Time { return base }
	bl.Add(ctx, "tok", base.Add(time.Hour))
	if !bl.Contains(ctx, "tok") {
		t.Fatal("entry missing")
	}
	// Expired token still gets a residual entry for skew replay.
	bl.Add(ctx, "old", base.Add(-time.Hour))
	if !bl.Contains(ctx, "old") {
		t.Fatal("residual entry missing")
	}
}
