package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/identity"
	"studyhub/backend/internal/magiclink"
	"studyhub/backend/internal/security"
	sessiondomain "studyhub/backend/internal/session/domain"
	sessionsvc "studyhub/backend/internal/session/service"
	"studyhub/backend/internal/token"
	userdomain "studyhub/backend/internal/user/domain"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*userdomain.User
}

func newMemUsers() *memUsers { return &memUsers{byID: make(map[string]*userdomain.User)} }

func (m *memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memUsers) Create(_ context.Context, u *userdomain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
	return nil
}

func (m *memUsers) Update(_ context.Context, u *userdomain.User) error {
	return m.Create(context.Background(), u)
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*sessiondomain.Session
}

func newMemSessions() *memSessions {
	return &memSessions{byID: make(map[string]*sessiondomain.Session)}
}

func (m *memSessions) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) ListActiveByUser(_ context.Context, userID string) ([]*sessiondomain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range m.byID {
		if s.UserID == userID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSessions) Create(_ context.Context, s *sessiondomain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSessions) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memSessions) DeactivateAllByUser(_ context.Context, userID, exceptID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.byID {
		if s.UserID == userID && s.IsActive && s.ID != exceptID {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memSessions) UpdateLastActivity(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		s.LastActivity = at
	}
	return nil
}

type memRemote struct {
	mu   sync.Mutex
	data map[string]string
	exp  map[string]time.Time
}

func newMemRemote() *memRemote {
	return &memRemote{data: make(map[string]string), exp: make(map[string]time.Time)}
}

func (m *memRemote) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	if exp, has := m.exp[key]; has && !exp.After(time.Now()) {
		delete(m.data, key)
		return "", false, nil
	}
	return v, true, nil
}

func (m *memRemote) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	if ttl > 0 {
		m.exp[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *memRemote) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memRemote) DelPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *memRemote) Ping(_ context.Context) error { return nil }

func (m *memRemote) magicToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, "magiclink:") {
			return strings.TrimPrefix(k, "magiclink:")
		}
	}
	t.Fatal("no magic-link token stored")
	return ""
}

type captureSender struct {
	mu   sync.Mutex
	sent int
}

func (c *captureSender) Send(to, subject, html string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

type testHarness struct {
	srv      *httptest.Server
	users    *memUsers
	remote   *memRemote
	sender   *captureSender
	tokens   *token.Manager
	sessions *sessionsvc.Service
}

func newHarness(t *testing.T, accessTTL time.Duration) *testHarness {
	t.Helper()
	users := newMemUsers()
	remote := newMemRemote()
	sender := &captureSender{}

	signer := security.NewTokenSigner([]byte("test-secret"), "studyhub-auth", accessTTL, 168*time.Hour)
	c := cache.New(1000, 1<<20, remote, "test")
	blacklist := token.NewBlacklist(c)
	sessions := sessionsvc.NewService(newMemSessions(), 5, 168*time.Hour)
	tokens := token.NewManager(signer, blacklist, sessions, 5*time.Minute)
	hasher := security.NewHasher(4)

	store := magiclink.NewStore(remote, 10*time.Minute)
	magic := magiclink.NewService(users, nil, sessions, tokens, store, sender, hasher, "https://studyhub.example")
	idsvc := identity.NewService(users, nil, sessions, tokens, hasher)

	s := New(Options{
		Addr:      "127.0.0.1:0",
		Tokens:    tokens,
		Sessions:  sessions,
		Users:     users,
		UserCache: cache.NewUserCache(c),
		MagicLink: magic,
		Identity:  idsvc,
		Cache:     c,
		RedirectOrigins: []string{
			"https://app.studyhub.example",
		},
	})
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testHarness{srv: srv, users: users, remote: remote, sender: sender, tokens: tokens, sessions: sessions}
}

func (h *testHarness) seedUser(t *testing.T, email, password string) *userdomain.User {
	t.Helper()
	hash, err := security.NewHasher(4).Hash([]byte(password))
	if err != nil {
		t.Fatal(err)
	}
	usr := &userdomain.User{
		ID:           "user-" + email,
		Email:        email,
		FullName:     "Test User",
		PasswordHash: hash,
		AuthProvider: userdomain.AuthProviderLocal,
		IsActive:     true,
		IsVerified:   true,
	}
	if err := h.users.Create(context.Background(), usr); err != nil {
		t.Fatal(err)
	}
	return usr
}

func (h *testHarness) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(h.srv.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (h *testHarness) login(t *testing.T, email, password string) loginResponse {
	t.Helper()
	resp := h.postJSON(t, "/auth/login", map[string]string{"email": email, "password": password})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestLoginSetsCookiesAndReturnsPair(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")

	resp := h.postJSON(t, "/auth/login", map[string]string{"email": "jan@uva.nl", "password": "hunter22hunter22"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	cookies := map[string]string{}
	for _, c := range resp.Cookies() {
		cookies[c.Name] = c.Value
	}
	if cookies[cookieAccessToken] == "" || cookies[cookieRefreshToken] == "" {
		t.Errorf("cookies = %v, want access and refresh tokens", cookies)
	}
	if v, ok := cookies[cookieLegacyToken]; ok && v != "" {
		t.Error("legacy token cookie should be cleared, not set")
	}
	body := decodeJSON[loginResponse](t, resp)
	if body.AccessToken == "" || body.SessionID == "" || body.User.Email != "jan@uva.nl" {
		t.Errorf("body = %+v", body)
	}
}

func TestLoginFailureReturns401(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	resp := h.postJSON(t, "/auth/login", map[string]string{"email": "jan@uva.nl", "password": "nope"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMeRequiresAuth(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	resp, err := http.Get(h.srv.URL + "/auth/me")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestMeWithBearerToken(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	usr := h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	login := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	me := decodeJSON[userResponse](t, resp)
	if me.ID != usr.ID {
		t.Errorf("me.ID = %q, want %q", me.ID, usr.ID)
	}
}

func TestMeWithLegacyCookie(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	login := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: cookieLegacyToken, Value: login.AccessToken})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("legacy cookie should authenticate, status = %d", resp.StatusCode)
	}
}

func TestSessionHeaderMismatchRejected(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	login := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	req.Header.Set(headerSessionID, "some-other-session")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Code != "SessionInvalid" {
		t.Errorf("code = %q, want SessionInvalid", body.Code)
	}
}

func TestRefreshSuggestedHeaderNearExpiry(t *testing.T) {
	// Access TTL below the refresh threshold, so every token is near expiry.
	h := newHarness(t, 4*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	login := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get(headerRefreshSuggested) != "true" {
		t.Error("refresh suggestion header should be set near expiry")
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	login := h.login(t, "jan@uva.nl", "hunter22hunter22")

	resp := h.postJSON(t, "/auth/refresh", map[string]string{"refreshToken": login.RefreshToken})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}
	out := decodeJSON[map[string]any](t, resp)
	if out["accessToken"] == login.AccessToken {
		t.Error("access token should rotate")
	}

	// The old refresh token is blacklisted by the rotation.
	resp2 := h.postJSON(t, "/auth/refresh", map[string]string{"refreshToken": login.RefreshToken})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", resp2.StatusCode)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	login := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	req2, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/me", nil)
	req2.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token should be dead after logout, status = %d", resp2.StatusCode)
	}
}

func TestLogoutWithGarbageTokenStillSucceeds(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout must be fail-open, status = %d", resp.StatusCode)
	}
}

func TestListAndRevokeSessions(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	first := h.login(t, "jan@uva.nl", "hunter22hunter22")
	second := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/sessions", nil)
	req.Header.Set("Authorization", "Bearer "+second.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	list := decodeJSON[[]sessionResponse](t, resp)
	if len(list) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list))
	}
	currents := 0
	for _, sess := range list {
		if sess.Current {
			currents++
			if sess.ID != second.SessionID {
				t.Errorf("current = %q, want %q", sess.ID, second.SessionID)
			}
		}
	}
	if currents != 1 {
		t.Errorf("currents = %d, want 1", currents)
	}

	del, _ := http.NewRequest(http.MethodDelete, h.srv.URL+"/auth/sessions/"+first.SessionID, nil)
	del.Header.Set("Authorization", "Bearer "+second.AccessToken)
	dresp, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatal(err)
	}
	dresp.Body.Close()
	if dresp.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status = %d", dresp.StatusCode)
	}

	// The revoked session's access token no longer validates.
	probe, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/auth/me", nil)
	probe.Header.Set("Authorization", "Bearer "+first.AccessToken)
	presp, err := http.DefaultClient.Do(probe)
	if err != nil {
		t.Fatal(err)
	}
	presp.Body.Close()
	if presp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked session token status = %d, want 401", presp.StatusCode)
	}
}

func TestRevokeForeignSessionNotFound(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	h.seedUser(t, "eva@uva.nl", "hunter22hunter22")
	jan := h.login(t, "jan@uva.nl", "hunter22hunter22")
	eva := h.login(t, "eva@uva.nl", "hunter22hunter22")

	del, _ := http.NewRequest(http.MethodDelete, h.srv.URL+"/auth/sessions/"+eva.SessionID, nil)
	del.Header.Set("Authorization", "Bearer "+jan.AccessToken)
	resp, err := http.DefaultClient.Do(del)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if !h.sessions.Validate(context.Background(), eva.SessionID) {
		t.Error("foreign session must remain active")
	}
}

func TestLogoutAllKeepsCurrentSession(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	h.seedUser(t, "jan@uva.nl", "hunter22hunter22")
	h.login(t, "jan@uva.nl", "hunter22hunter22")
	h.login(t, "jan@uva.nl", "hunter22hunter22")
	current := h.login(t, "jan@uva.nl", "hunter22hunter22")

	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/auth/logout-all", nil)
	req.Header.Set("Authorization", "Bearer "+current.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	out := decodeJSON[map[string]int](t, resp)
	if out["revoked"] != 2 {
		t.Errorf("revoked = %d, want 2", out["revoked"])
	}
	if !h.sessions.Validate(context.Background(), current.SessionID) {
		t.Error("current session must survive logout-all")
	}
}

func TestMagicLinkRequestAndRedirectVerify(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	resp := h.postJSON(t, "/auth/magic-link", map[string]string{
		"email":       "jan@uva.nl",
		"callbackUrl": "https://app.studyhub.example/library",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("request status = %d", resp.StatusCode)
	}
	if h.sender.sent != 1 {
		t.Fatalf("sent = %d emails, want 1", h.sender.sent)
	}
	tok := h.remote.magicToken(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	verifyURL := h.srv.URL + "/auth/magic-link/verify?token=" + tok +
		"&email=jan%40uva.nl&callbackUrl=https%3A%2F%2Fapp.studyhub.example%2Flibrary"
	vresp, err := client.Get(verifyURL)
	if err != nil {
		t.Fatal(err)
	}
	defer vresp.Body.Close()
	if vresp.StatusCode != http.StatusFound {
		t.Fatalf("verify status = %d, want 302", vresp.StatusCode)
	}
	if loc := vresp.Header.Get("Location"); loc != "https://app.studyhub.example/library" {
		t.Errorf("redirect = %q", loc)
	}
	var access string
	for _, c := range vresp.Cookies() {
		if c.Name == cookieAccessToken {
			access = c.Value
		}
	}
	if access == "" {
		t.Fatal("verify should set the access token cookie")
	}
	if _, err := h.tokens.ValidateAccess(context.Background(), access); err != nil {
		t.Errorf("cookie token should validate: %v", err)
	}
}

func TestMagicLinkVerifyFailureRedirectsWithError(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(h.srv.URL + "/auth/magic-link/verify?token=bogus&email=jan%40uva.nl&callbackUrl=https%3A%2F%2Fapp.studyhub.example%2F")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	loc := resp.Header.Get("Location")
	if !strings.Contains(loc, "error=invalid_link") {
		t.Errorf("redirect = %q, want error marker", loc)
	}
}

func TestMagicLinkVerifyIgnoresForeignCallback(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	resp := h.postJSON(t, "/auth/magic-link", map[string]string{"email": "jan@uva.nl"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("request status = %d", resp.StatusCode)
	}
	tok := h.remote.magicToken(t)

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	vresp, err := client.Get(h.srv.URL + "/auth/magic-link/verify?token=" + tok +
		"&email=jan%40uva.nl&callbackUrl=https%3A%2F%2Fevil.example%2Fphish")
	if err != nil {
		t.Fatal(err)
	}
	defer vresp.Body.Close()
	if vresp.StatusCode != http.StatusFound {
		t.Fatalf("verify status = %d, want 302", vresp.StatusCode)
	}
	if loc := vresp.Header.Get("Location"); loc != "/" {
		t.Errorf("redirect = %q, want /", loc)
	}
}

func TestMagicLinkVerifyFailureForeignCallbackGets401(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	resp, err := http.Get(h.srv.URL + "/auth/magic-link/verify?token=bogus&email=jan%40uva.nl&callbackUrl=%2F%2Fevil.example")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestTrustedCallback(t *testing.T) {
	s := &Server{redirectOrigins: []string{"https://app.studyhub.example"}}
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/library", "/library"},
		{"//evil.example", ""},
		{"https://app.studyhub.example/library?x=1", "https://app.studyhub.example/library?x=1"},
		{"http://app.studyhub.example/library", ""},
		{"https://evil.example/phish", ""},
		{"javascript:alert(1)", ""},
		{"not a url\x7f://", ""},
	}
	for _, tc := range cases {
		if got := s.trustedCallback(tc.in); got != tc.want {
			t.Errorf("trustedCallback(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMagicLinkRequestRejectsNonEducational(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	resp := h.postJSON(t, "/auth/magic-link", map[string]string{"email": "user@random-mail.com"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if body.Code != "NotEducational" {
		t.Errorf("code = %q", body.Code)
	}
}

func TestRouterEmitsServerSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	h := newHarness(t, 15*time.Minute)
	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	// The span ends as the handler unwinds, which can trail the response.
	deadline := time.Now().Add(2 * time.Second)
	for len(recorder.Ended()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	spans := recorder.Ended()
	if len(spans) == 0 {
		t.Fatal("no server spans recorded")
	}
	if kind := spans[0].SpanKind(); kind != oteltrace.SpanKindServer {
		t.Errorf("span kind = %v, want server", kind)
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, 15*time.Minute)
	resp, err := http.Get(h.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	out := decodeJSON[map[string]any](t, resp)
	if out["status"] != "ok" {
		t.Errorf("status = %v", out["status"])
	}
}

