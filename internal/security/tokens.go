package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, mis-typed, or otherwise invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenType discriminates the two tokens of a pair.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims holds the JWT claims shared by access and refresh tokens.
// Access and refresh tokens are signed with the same secret; Type keeps them
// from ever being interchangeable.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Type      TokenType `json:"type"`
}

// TokenSigner issues and validates HS256-signed access and refresh tokens
// sharing one HMAC secret.
type TokenSigner struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	nowF       func() time.Time
}

// NewTokenSigner returns a TokenSigner that signs with the given shared secret.
// issuer is set on claims and validated on parse.
func NewTokenSigner(secret []byte, issuer string, accessTTL, refreshTTL time.Duration) *TokenSigner {
	return &TokenSigner{
		secret:     secret,
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		nowF:       func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenSigner) AccessTTL() time.Duration { return s.accessTTL }

// SignAccess issues a short-lived access token for the given user and session.
// Returns the token string and its expiration time.
func (s *TokenSigner) SignAccess(userID, sessionID string) (string, time.Time, error) {
	return s.sign(userID, sessionID, TokenTypeAccess, s.accessTTL)
}

// SignRefresh issues a long-lived refresh token for the given user and session.
func (s *TokenSigner) SignRefresh(userID, sessionID string) (string, time.Time, error) {
	return s.sign(userID, sessionID, TokenTypeRefresh, s.refreshTTL)
}

func (s *TokenSigner) sign(userID, sessionID string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	now := s.nowF()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    userID,
		SessionID: sessionID,
		Type:      typ,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse verifies the token's signature, expiry, and issuer, and returns its claims.
// Every failure surfaces as ErrInvalidToken; callers must not branch on the cause.
func (s *TokenSigner) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != s.issuer {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseUnverified decodes the token's claims without verifying the signature.
// The result is only good for deciding which validation path to run next;
// never trust it for an authorization decision.
func (s *TokenSigner) ParseUnverified(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
