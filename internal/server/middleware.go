package server

import (
	"net"
	"net/http"
	"strings"

	"studyhub/backend/internal/token"
)

// Cookie names. "token" is the pre-split cookie older clients still send;
// it is read as an access token and cleared on the next cookie write.
const (
	cookieAccessToken  = "accessToken"
	cookieRefreshToken = "refreshToken"
	cookieLegacyToken  = "token"
)

// headerSessionID lets clients pin a request to a session; when present it
// must match the token's session and be live.
const headerSessionID = "X-Session-Id"

// headerRefreshSuggested is set on authenticated responses when the access
// token is close enough to expiry that the client should refresh proactively.
const headerRefreshSuggested = "X-Token-Refresh-Suggested"

// requireAuth validates the access token and stores the caller identity in
// the request context. Order of precedence: Authorization Bearer header,
// accessToken cookie, legacy token cookie.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerOrCookieToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing access token")
			return
		}
		claims, err := s.tokens.ValidateAccess(r.Context(), raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired access token")
			return
		}
		if sid := r.Header.Get(headerSessionID); sid != "" {
			if sid != claims.SessionID || !s.sessions.Validate(r.Context(), sid) {
				writeError(w, http.StatusUnauthorized, "SessionInvalid", "session is no longer active")
				return
			}
		}
		if s.tokens.ShouldRefresh(raw) {
			w.Header().Set(headerRefreshSuggested, "true")
		}
		ctx := WithIdentity(r.Context(), Identity{
			UserID:      claims.UserID,
			SessionID:   claims.SessionID,
			AccessToken: raw,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerOrCookieToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if c, err := r.Cookie(cookieAccessToken); err == nil && c.Value != "" {
		return c.Value
	}
	if c, err := r.Cookie(cookieLegacyToken); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// refreshTokenFrom pulls the refresh token from the cookie first, then the
// JSON body field the handler has already decoded.
func refreshTokenFrom(r *http.Request, bodyToken string) string {
	if c, err := r.Cookie(cookieRefreshToken); err == nil && c.Value != "" {
		return c.Value
	}
	return bodyToken
}

// clientIP prefers the first X-Forwarded-For hop, set by the edge proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i > 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) setAuthCookies(w http.ResponseWriter, pair *token.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieAccessToken,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     cookieRefreshToken,
		Value:    pair.RefreshToken,
		Path:     "/auth",
		Expires:  pair.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	// Retire the pre-split cookie so old clients converge on the new pair.
	http.SetCookie(w, &http.Cookie{
		Name:     cookieLegacyToken,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, ck := range []struct{ name, path string }{
		{cookieAccessToken, "/"},
		{cookieRefreshToken, "/auth"},
		{cookieLegacyToken, "/"},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
