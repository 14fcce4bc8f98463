package domain

import (
	"errors"
	"time"
)

// User is the identity subset of the platform's user record. The wider
// platform owns more fields (uploads, ratings, friends); this subsystem only
// reads and mutates what login and verification need.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	AuthProvider AuthProvider
	ProviderID   string
	ProfilePic   string

	IsActive           bool
	IsVerified         bool
	VerificationStatus VerificationStatus
	VerificationMethod VerificationMethod
	Institution        InstitutionInfo

	// HasTemporaryPassword is set when the account was created purely via
	// magic link, so no real password exists yet.
	HasTemporaryPassword bool

	LastLogin  *time.Time
	LoginCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InstitutionInfo describes the educational institution inferred from the
// user's email, when one was recognized.
type InstitutionInfo struct {
	Name   string
	Domain string
	Type   string
}

type AuthProvider string

const (
	AuthProviderLocal    AuthProvider = "local"
	AuthProviderGoogle   AuthProvider = "google"
	AuthProviderGithub   AuthProvider = "github"
	AuthProviderFacebook AuthProvider = "facebook"
)

// VerificationStatus is the trust tier of the account, derived from how the
// email address was verified.
type VerificationStatus string

const (
	VerificationStatusUnverified    VerificationStatus = "unverified"
	VerificationStatusEmailVerified VerificationStatus = "email-verified"
	VerificationStatusEduVerified   VerificationStatus = "edu-verified"
	VerificationStatusManual        VerificationStatus = "manual-verified"
	VerificationStatusNonStudent    VerificationStatus = "non-student"
)

// VerificationMethod records which mechanism established the current status.
type VerificationMethod string

const (
	VerificationMethodNone         VerificationMethod = "none"
	VerificationMethodEmailLink    VerificationMethod = "email-link"
	VerificationMethodEduDomain    VerificationMethod = "edu-domain"
	VerificationMethodEduPattern   VerificationMethod = "edu-pattern"
	VerificationMethodAdminManual  VerificationMethod = "admin-manual"
	VerificationMethodOAuthPending VerificationMethod = "oauth-pending"
	VerificationMethodMagicLink    VerificationMethod = "magic-link"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.AuthProvider == "" {
		u.AuthProvider = AuthProviderLocal
	}
	if u.VerificationStatus == "" {
		u.VerificationStatus = VerificationStatusUnverified
	}
	if u.VerificationMethod == "" {
		u.VerificationMethod = VerificationMethodNone
	}
	return nil
}
