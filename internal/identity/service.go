// Package identity implements credentialed logins: password and OAuth.
// Passwordless login lives in the magiclink package.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/eduverify"
	"studyhub/backend/internal/security"
	sessiondomain "studyhub/backend/internal/session/domain"
	sessionsvc "studyhub/backend/internal/session/service"
	"studyhub/backend/internal/token"
	userdomain "studyhub/backend/internal/user/domain"
	userrepo "studyhub/backend/internal/user/repository"
)

var (
	// ErrInvalidCredentials covers unknown email, wrong password, and
	// deactivated accounts alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrProviderMismatch means the account is bound to a different OAuth
	// provider than the one asserting the login.
	ErrProviderMismatch = errors.New("account is linked to a different provider")
)

// LoginResult is what any successful login yields.
type LoginResult struct {
	User      *userdomain.User
	SessionID string
	Pair      *token.TokenPair
}

// OAuthProfile is the identity asserted by an upstream OAuth provider after
// the callback exchange.
type OAuthProfile struct {
	Provider   userdomain.AuthProvider
	ProviderID string
	Email      string
	FullName   string
	ProfilePic string
}

// Service authenticates users and opens sessions for them.
type Service struct {
	users     userrepo.Repository
	userCache *cache.UserCache
	sessions  *sessionsvc.Service
	tokens    *token.Manager
	hasher    *security.Hasher
	nowF      func() time.Time
}

func NewService(users userrepo.Repository, userCache *cache.UserCache, sessions *sessionsvc.Service, tokens *token.Manager, hasher *security.Hasher) *Service {
	return &Service{
		users:     users,
		userCache: userCache,
		sessions:  sessions,
		tokens:    tokens,
		hasher:    hasher,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates with email and password.
func (s *Service) Login(ctx context.Context, address, password string, reqCtx sessionsvc.RequestContext) (*LoginResult, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	usr, err := s.users.GetByEmail(ctx, address)
	if err != nil {
		return nil, err
	}
	if usr == nil || !usr.IsActive || usr.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(usr.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.finishLogin(ctx, usr, reqCtx, sessiondomain.LoginMethodPassword)
}

// OAuthLogin signs in (or provisions) a user from a verified provider profile.
// OAuth proves mailbox ownership to the provider, not student status, so new
// accounts start unverified; the classifier verdict is recorded on the
// institution fields for the verification flow to pick up later.
func (s *Service) OAuthLogin(ctx context.Context, profile OAuthProfile, reqCtx sessionsvc.RequestContext) (*LoginResult, error) {
	address := strings.ToLower(strings.TrimSpace(profile.Email))
	if address == "" {
		return nil, ErrInvalidCredentials
	}

	usr, err := s.users.GetByEmail(ctx, address)
	if err != nil {
		return nil, err
	}
	switch {
	case usr == nil:
		usr, err = s.provisionOAuthUser(ctx, address, profile)
		if err != nil {
			return nil, err
		}
	case !usr.IsActive:
		return nil, ErrInvalidCredentials
	case usr.AuthProvider == profile.Provider && usr.ProviderID == profile.ProviderID:
		// Returning user; nothing to adopt.
	case usr.AuthProvider == userdomain.AuthProviderLocal || usr.ProviderID == "":
		// A password-only account logging in via OAuth for the first time
		// adopts the provider binding.
		usr.AuthProvider = profile.Provider
		usr.ProviderID = profile.ProviderID
		if usr.ProfilePic == "" {
			usr.ProfilePic = profile.ProfilePic
		}
		if err := s.users.Update(ctx, usr); err != nil {
			return nil, err
		}
		s.clearCached(ctx, usr.ID)
	default:
		return nil, ErrProviderMismatch
	}

	return s.finishLogin(ctx, usr, reqCtx, sessiondomain.LoginMethodOAuth)
}

func (s *Service) finishLogin(ctx context.Context, usr *userdomain.User, reqCtx sessionsvc.RequestContext, method sessiondomain.LoginMethod) (*LoginResult, error) {
	now := s.nowF()
	usr.LastLogin = &now
	usr.LoginCount++
	if err := s.users.Update(ctx, usr); err != nil {
		return nil, err
	}
	s.clearCached(ctx, usr.ID)

	sessionID, err := s.sessions.Create(ctx, usr.ID, reqCtx, method)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.GeneratePair(ctx, usr.ID, sessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: usr, SessionID: sessionID, Pair: pair}, nil
}

func (s *Service) provisionOAuthUser(ctx context.Context, address string, profile OAuthProfile) (*userdomain.User, error) {
	cls := eduverify.Classify(address)
	now := s.nowF()
	usr := &userdomain.User{
		ID:                 uuid.NewString(),
		Email:              address,
		FullName:           profile.FullName,
		AuthProvider:       profile.Provider,
		ProviderID:         profile.ProviderID,
		ProfilePic:         profile.ProfilePic,
		IsActive:           true,
		IsVerified:         false,
		VerificationStatus: userdomain.VerificationStatusUnverified,
		VerificationMethod: userdomain.VerificationMethodOAuthPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if !cls.IsEducational {
		usr.VerificationStatus = userdomain.VerificationStatusNonStudent
	} else if cls.InstitutionName != "" {
		usr.Institution = userdomain.InstitutionInfo{
			Name:   cls.InstitutionName,
			Domain: cls.Domain,
			Type:   cls.InstitutionType,
		}
	}
	if err := s.users.Create(ctx, usr); err != nil {
		return nil, err
	}
	return usr, nil
}

func (s *Service) clearCached(ctx context.Context, id string) {
	if s.userCache != nil {
		s.userCache.ClearUserCache(ctx, id)
	}
}
