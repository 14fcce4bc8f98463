package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"studyhub/backend/internal/events"
	"studyhub/backend/internal/identity"
	"studyhub/backend/internal/magiclink"
	sessiondomain "studyhub/backend/internal/session/domain"
	sessionsvc "studyhub/backend/internal/session/service"
	userdomain "studyhub/backend/internal/user/domain"
)

type userResponse struct {
	ID                   string `json:"id"`
	Email                string `json:"email"`
	FullName             string `json:"fullName"`
	ProfilePic           string `json:"profilePic,omitempty"`
	IsVerified           bool   `json:"isVerified"`
	VerificationStatus   string `json:"verificationStatus"`
	InstitutionName      string `json:"institutionName,omitempty"`
	HasTemporaryPassword bool   `json:"hasTemporaryPassword"`
}

func toUserResponse(u *userdomain.User) userResponse {
	return userResponse{
		ID:                   u.ID,
		Email:                u.Email,
		FullName:             u.FullName,
		ProfilePic:           u.ProfilePic,
		IsVerified:           u.IsVerified,
		VerificationStatus:   string(u.VerificationStatus),
		InstitutionName:      u.Institution.Name,
		HasTemporaryPassword: u.HasTemporaryPassword,
	}
}

type loginResponse struct {
	User         userResponse `json:"user"`
	SessionID    string       `json:"sessionId"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

type sessionResponse struct {
	ID           string    `json:"id"`
	DeviceType   string    `json:"deviceType"`
	LoginMethod  string    `json:"loginMethod"`
	IPAddress    string    `json:"ipAddress"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
	Current      bool      `json:"current"`
}

func (s *Server) requestContext(r *http.Request) sessionsvc.RequestContext {
	return sessionsvc.RequestContext{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func (s *Server) emit(eventType events.Type, userID, sessionID, email string, r *http.Request) {
	events.EmitAsync(s.producer, &events.Event{
		Type:       eventType,
		UserID:     userID,
		SessionID:  sessionID,
		Email:      email,
		IPAddress:  clientIP(r),
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Server) audit(r *http.Request, userID, action, metadata string) {
	if s.auditor != nil {
		s.auditor.LogEvent(r.Context(), userID, action, "session", metadata)
	}
}

// POST /auth/magic-link
func (s *Server) handleMagicLinkRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		CallbackURL string `json:"callbackUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed JSON body")
		return
	}
	err := s.magic.Request(r.Context(), req.Email, req.CallbackURL)
	switch {
	case err == nil:
		s.emit(events.TypeMagicLinkRequested, "", "", req.Email, r)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	case errors.Is(err, magiclink.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "InvalidEmail", "email address is malformed")
	case errors.Is(err, magiclink.ErrNotEducational):
		writeError(w, http.StatusForbidden, "NotEducational", "a student or institutional email address is required")
	case errors.Is(err, magiclink.ErrDeliveryFailed):
		writeError(w, http.StatusBadGateway, "DeliveryFailed", "could not send the sign-in email")
	default:
		writeError(w, http.StatusInternalServerError, "Internal", "could not process the request")
	}
}

// GET /auth/magic-link/verify is the link target in the email: it redeems and
// redirects the browser to the callback URL with cookies set.
func (s *Server) handleMagicLinkVerifyRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tok, addr := q.Get("token"), q.Get("email")
	callback := s.trustedCallback(q.Get("callbackUrl"))

	res, err := s.magic.Redeem(r.Context(), tok, addr, s.requestContext(r))
	if err != nil {
		if callback != "" {
			http.Redirect(w, r, appendQuery(callback, "error", "invalid_link"), http.StatusFound)
			return
		}
		writeError(w, http.StatusUnauthorized, "InvalidLink", "magic link is invalid or expired")
		return
	}
	s.finishMagicLogin(w, r, res)
	if callback == "" {
		callback = "/"
	}
	http.Redirect(w, r, callback, http.StatusFound)
}

// POST /auth/magic-link/verify is the API variant for clients that handle the
// token themselves; it returns the pair as JSON.
func (s *Server) handleMagicLinkVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed JSON body")
		return
	}
	res, err := s.magic.Redeem(r.Context(), req.Token, req.Email, s.requestContext(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "InvalidLink", "magic link is invalid or expired")
		return
	}
	s.finishMagicLogin(w, r, res)
	writeJSON(w, http.StatusOK, loginResponse{
		User:         toUserResponse(res.User),
		SessionID:    res.SessionID,
		AccessToken:  res.Pair.AccessToken,
		RefreshToken: res.Pair.RefreshToken,
		ExpiresAt:    res.Pair.AccessExpiresAt,
	})
}

func (s *Server) finishMagicLogin(w http.ResponseWriter, r *http.Request, res *magiclink.LoginResult) {
	s.setAuthCookies(w, res.Pair)
	s.audit(r, res.User.ID, "magic_link_redeemed", "method=magic-link")
	s.emit(events.TypeMagicLinkRedeemed, res.User.ID, res.SessionID, res.User.Email, r)
}

// POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed JSON body")
		return
	}
	res, err := s.identity.Login(r.Context(), req.Email, req.Password, s.requestContext(r))
	if err != nil {
		s.audit(r, "", "login_failure", "method=password")
		s.emit(events.TypeLoginFailed, "", "", req.Email, r)
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "invalid email or password")
		return
	}
	s.finishCredentialLogin(w, r, res, "password")
}

// POST /auth/oauth
func (s *Server) handleOAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider   string `json:"provider"`
		ProviderID string `json:"providerId"`
		Email      string `json:"email"`
		FullName   string `json:"fullName"`
		ProfilePic string `json:"profilePic"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed JSON body")
		return
	}
	res, err := s.identity.OAuthLogin(r.Context(), identity.OAuthProfile{
		Provider:   userdomain.AuthProvider(req.Provider),
		ProviderID: req.ProviderID,
		Email:      req.Email,
		FullName:   req.FullName,
		ProfilePic: req.ProfilePic,
	}, s.requestContext(r))
	switch {
	case err == nil:
		s.finishCredentialLogin(w, r, res, "oauth")
	case errors.Is(err, identity.ErrProviderMismatch):
		writeError(w, http.StatusConflict, "ProviderMismatch", "account is linked to a different provider")
	default:
		s.audit(r, "", "login_failure", "method=oauth")
		s.emit(events.TypeLoginFailed, "", "", req.Email, r)
		writeError(w, http.StatusUnauthorized, "InvalidCredentials", "could not sign in with this provider")
	}
}

func (s *Server) finishCredentialLogin(w http.ResponseWriter, r *http.Request, res *identity.LoginResult, method string) {
	s.setAuthCookies(w, res.Pair)
	s.audit(r, res.User.ID, "login_success", "method="+method)
	s.emit(events.TypeLoginSucceeded, res.User.ID, res.SessionID, res.User.Email, r)
	writeJSON(w, http.StatusOK, loginResponse{
		User:         toUserResponse(res.User),
		SessionID:    res.SessionID,
		AccessToken:  res.Pair.AccessToken,
		RefreshToken: res.Pair.RefreshToken,
		ExpiresAt:    res.Pair.AccessExpiresAt,
	})
}

// POST /auth/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	// Body is optional; cookie clients send none.
	_ = json.NewDecoder(r.Body).Decode(&req)

	raw := refreshTokenFrom(r, req.RefreshToken)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "missing refresh token")
		return
	}
	pair, err := s.tokens.Refresh(r.Context(), raw)
	if err != nil {
		s.clearAuthCookies(w)
		writeError(w, http.StatusUnauthorized, "InvalidToken", "refresh token is invalid or expired")
		return
	}
	s.setAuthCookies(w, pair)
	if claims, err := s.tokens.Metadata(pair.AccessToken); err == nil {
		s.emit(events.TypeTokenRefreshed, claims.UserID, claims.SessionID, "", r)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
		"expiresAt":    pair.AccessExpiresAt,
	})
}

// POST /auth/logout invalidates whatever credentials the request carries.
// Always succeeds: a logout with a broken token still clears the cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	access := bearerOrCookieToken(r)
	refresh := refreshTokenFrom(r, req.RefreshToken)

	userID, sessionID := "", ""
	if access != "" {
		if claims, err := s.tokens.Metadata(access); err == nil {
			userID, sessionID = claims.UserID, claims.SessionID
		}
		s.tokens.BlacklistToken(r.Context(), access)
	}
	if refresh != "" {
		if sessionID == "" {
			if claims, err := s.tokens.Metadata(refresh); err == nil {
				userID, sessionID = claims.UserID, claims.SessionID
			}
		}
		s.tokens.BlacklistToken(r.Context(), refresh)
	}
	if sessionID != "" {
		s.tokens.RevokeSession(r.Context(), sessionID)
	}
	s.clearAuthCookies(w)
	s.audit(r, userID, "logout", "")
	s.emit(events.TypeLogout, userID, sessionID, "", r)
	w.WriteHeader(http.StatusNoContent)
}

// GET /auth/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	usr := s.resolveUser(r, id.UserID)
	if usr == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "account no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(usr))
}

func (s *Server) resolveUser(r *http.Request, userID string) *userdomain.User {
	if s.userCache != nil {
		if usr := s.userCache.GetCachedUser(r.Context(), userID); usr != nil {
			return usr
		}
	}
	usr, err := s.users.GetByID(r.Context(), userID)
	if err != nil || usr == nil || !usr.IsActive {
		return nil
	}
	if s.userCache != nil {
		s.userCache.CacheUser(r.Context(), usr)
	}
	return usr
}

// GET /auth/sessions
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	list, err := s.sessions.ListActive(r.Context(), id.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal", "could not list sessions")
		return
	}
	out := make([]sessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, toSessionResponse(sess, id.SessionID))
	}
	writeJSON(w, http.StatusOK, out)
}

func toSessionResponse(sess *sessiondomain.Session, currentID string) sessionResponse {
	return sessionResponse{
		ID:           sess.ID,
		DeviceType:   string(sess.DeviceType),
		LoginMethod:  string(sess.LoginMethod),
		IPAddress:    sess.IPAddress,
		LastActivity: sess.LastActivity,
		CreatedAt:    sess.CreatedAt,
		Current:      sess.ID == currentID,
	}
}

// DELETE /auth/sessions/{id} revokes one of the caller's own sessions.
func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	target := chi.URLParam(r, "id")

	list, err := s.sessions.ListActive(r.Context(), id.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal", "could not revoke session")
		return
	}
	owned := false
	for _, sess := range list {
		if sess.ID == target {
			owned = true
			break
		}
	}
	if !owned {
		writeError(w, http.StatusNotFound, "NotFound", "no such session")
		return
	}
	s.sessions.Deactivate(r.Context(), target)
	s.audit(r, id.UserID, "session_revoked", "session="+target)
	s.emit(events.TypeLogout, id.UserID, target, "", r)
	w.WriteHeader(http.StatusNoContent)
}

// POST /auth/logout-all deactivates every session except the current one.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	n := s.sessions.DeactivateAll(r.Context(), id.UserID, id.SessionID)
	s.audit(r, id.UserID, "logout_all", "")
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.cache != nil {
		stats := s.cache.GetStats()
		resp["redisConnected"] = stats.RedisConnected
	}
	writeJSON(w, http.StatusOK, resp)
}

// trustedCallback returns the callback URL if it is safe to redirect to: a
// relative path, or an absolute URL on one of the configured redirect origins.
// Anything else collapses to "" so the handler falls back to its default.
func (s *Server) trustedCallback(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme == "" && u.Host == "" {
		// Reject protocol-relative URLs like //evil.example.
		if strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(u.Path, "//") {
			return raw
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	for _, origin := range s.redirectOrigins {
		o, err := url.Parse(origin)
		if err != nil {
			continue
		}
		if strings.EqualFold(u.Scheme, o.Scheme) && strings.EqualFold(u.Host, o.Host) {
			return raw
		}
	}
	return ""
}

func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
