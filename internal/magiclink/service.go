// Package magiclink implements passwordless email login: a one-time token is
// mailed to an educational address and redeemed within its lifetime for a
// session and token pair.
package magiclink

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhub/backend/internal/cache"
	"studyhub/backend/internal/eduverify"
	"studyhub/backend/internal/email"
	"studyhub/backend/internal/security"
	sessiondomain "studyhub/backend/internal/session/domain"
	sessionsvc "studyhub/backend/internal/session/service"
	"studyhub/backend/internal/token"
	userdomain "studyhub/backend/internal/user/domain"
	userrepo "studyhub/backend/internal/user/repository"
)

var (
	// ErrInvalidEmail means the address is not syntactically an email.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrNotEducational means the address parses but is not recognized as a
	// student or institutional address.
	ErrNotEducational = errors.New("email is not an educational address")
	// ErrInvalidOrExpired covers every redemption failure: unknown token,
	// expired token, consumed token, mismatched email, missing account.
	ErrInvalidOrExpired = errors.New("magic link is invalid or expired")
	// ErrDeliveryFailed is returned when the mail could not be handed off.
	// Generic so callers cannot probe mailbox existence.
	ErrDeliveryFailed = errors.New("could not send magic link email")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// LoginResult is what a successful redemption yields.
type LoginResult struct {
	User      *userdomain.User
	SessionID string
	Pair      *token.TokenPair
}

// Service orchestrates the request and redeem halves of the flow.
type Service struct {
	users     userrepo.Repository
	userCache *cache.UserCache
	sessions  *sessionsvc.Service
	tokens    *token.Manager
	store     *Store
	sender    email.Sender
	hasher    *security.Hasher
	baseURL   string
	nowF      func() time.Time
}

// NewService wires the flow. userCache and sender may be nil in tests.
func NewService(users userrepo.Repository, userCache *cache.UserCache, sessions *sessionsvc.Service, tokens *token.Manager, store *Store, sender email.Sender, hasher *security.Hasher, baseURL string) *Service {
	return &Service{
		users:     users,
		userCache: userCache,
		sessions:  sessions,
		tokens:    tokens,
		store:     store,
		sender:    sender,
		hasher:    hasher,
		baseURL:   strings.TrimRight(baseURL, "/"),
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Request validates the address, provisions the account when needed, stores a
// one-time token, and mails the link. callbackURL is where the client wants to
// land after verification; empty means the service base URL.
func (s *Service) Request(ctx context.Context, address, callbackURL string) error {
	address = strings.ToLower(strings.TrimSpace(address))
	if !emailRegex.MatchString(address) {
		return ErrInvalidEmail
	}
	cls := eduverify.Classify(address)
	if !cls.IsEducational {
		return ErrNotEducational
	}

	usr, err := s.users.GetByEmail(ctx, address)
	if err != nil {
		return err
	}
	if usr == nil {
		usr, err = s.provisionUser(ctx, address, cls)
		if err != nil {
			return err
		}
	} else if upgradeVerification(usr, cls) {
		if err := s.users.Update(ctx, usr); err != nil {
			return err
		}
		s.clearCached(ctx, usr.ID)
	}

	tok, err := security.RandomOpaqueToken()
	if err != nil {
		return err
	}
	link := Link{UserID: usr.ID, Email: address, CreatedAt: s.nowF()}
	if err := s.store.Put(ctx, tok, link); err != nil {
		return err
	}

	if err := s.sender.Send(address, "Your StudyHub sign-in link", s.linkEmailBody(tok, address, callbackURL)); err != nil {
		return ErrDeliveryFailed
	}
	return nil
}

// Redeem exchanges a token for a logged-in session. The token is consumed on
// the first successful match; a mismatched email leaves it intact so the real
// owner can still redeem it.
func (s *Service) Redeem(ctx context.Context, tok, address string, reqCtx sessionsvc.RequestContext) (*LoginResult, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	link, found, err := s.store.Get(ctx, tok)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidOrExpired
	}
	if link.Email != address {
		return nil, ErrInvalidOrExpired
	}
	if err := s.store.Consume(ctx, tok); err != nil {
		return nil, err
	}

	usr, err := s.users.GetByID(ctx, link.UserID)
	if err != nil {
		return nil, err
	}
	if usr == nil || !usr.IsActive {
		return nil, ErrInvalidOrExpired
	}

	now := s.nowF()
	upgradeVerification(usr, eduverify.Classify(usr.Email))
	usr.HasTemporaryPassword = false
	usr.LastLogin = &now
	usr.LoginCount++
	if err := s.users.Update(ctx, usr); err != nil {
		return nil, err
	}
	s.clearCached(ctx, usr.ID)

	sessionID, err := s.sessions.Create(ctx, usr.ID, reqCtx, sessiondomain.LoginMethodMagicLink)
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.GeneratePair(ctx, usr.ID, sessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: usr, SessionID: sessionID, Pair: pair}, nil
}

// provisionUser creates an account for a first-time magic-link login. The
// password is a random placeholder; the temporary flag tells the profile flow
// to prompt for a real one.
func (s *Service) provisionUser(ctx context.Context, address string, cls eduverify.Classification) (*userdomain.User, error) {
	placeholder, err := security.RandomPassword()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash([]byte(placeholder))
	if err != nil {
		return nil, err
	}
	v := eduverify.VerificationFromClassification(cls)
	now := s.nowF()
	usr := &userdomain.User{
		ID:                   uuid.NewString(),
		Email:                address,
		FullName:             nameFromEmail(address),
		PasswordHash:         hash,
		AuthProvider:         userdomain.AuthProviderLocal,
		IsActive:             true,
		IsVerified:           true,
		VerificationStatus:   v.Status,
		VerificationMethod:   userdomain.VerificationMethodMagicLink,
		HasTemporaryPassword: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if cls.InstitutionName != "" {
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

// upgradeVerification stamps magic-link verification on the user when their
// current status is weaker. Reports whether anything changed.
func upgradeVerification(usr *userdomain.User, cls eduverify.Classification) bool {
	if usr.IsVerified &&
		usr.VerificationStatus != userdomain.VerificationStatusUnverified &&
		usr.VerificationStatus != userdomain.VerificationStatusNonStudent {
		return false
	}
	v := eduverify.VerificationFromClassification(cls)
	usr.IsVerified = true
	usr.VerificationStatus = v.Status
	usr.VerificationMethod = userdomain.VerificationMethodMagicLink
	if cls.InstitutionName != "" && usr.Institution.Name == "" {
		usr.Institution = userdomain.InstitutionInfo{
			Name:   cls.InstitutionName,
			Domain: cls.Domain,
			Type:   cls.InstitutionType,
		}
	}
	return true
}

func (s *Service) clearCached(ctx context.Context, id string) {
	if s.userCache != nil {
		s.userCache.ClearUserCache(ctx, id)
	}
}

// VerifyURL is the link embedded in the email.
func (s *Service) VerifyURL(tok, address, callbackURL string) string {
	if callbackURL == "" {
		callbackURL = s.baseURL
	}
	q := url.Values{}
	q.Set("callbackUrl", callbackURL)
	q.Set("token", tok)
	q.Set("email", address)
	return s.baseURL + "/auth/magic-link/verify?" + q.Encode()
}

func (s *Service) linkEmailBody(tok, address, callbackURL string) string {
	link := s.VerifyURL(tok, address, callbackURL)
	var b strings.Builder
	b.WriteString("<html><body>")
	b.WriteString("<h2>Sign in to StudyHub</h2>")
	b.WriteString(`<p>Click the link below to sign in. It expires in 10 minutes and works once.</p>`)
	b.WriteString(`<p><a href="` + link + `">Sign in</a></p>`)
	b.WriteString("<p>If you did not request this, you can ignore this email.</p>")
	b.WriteString("</body></html>")
	return b.String()
}

func nameFromEmail(address string) string {
	local := address
	if at := strings.Index(address, "@"); at > 0 {
		local = address[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	return strings.TrimSpace(local)
}
