// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev student (dev@student.tudelft.nl) already exists.
package main

import (
	"context"
	"log"
	"time"

	"studyhub/backend/internal/config"
	"studyhub/backend/internal/db"
	"studyhub/backend/internal/eduverify"
	"studyhub/backend/internal/security"
	userdomain "studyhub/backend/internal/user/domain"
	userrepo "studyhub/backend/internal/user/repository"
)

const (
	devStudentEmail = "dev@student.tudelft.nl"
	devVisitorEmail = "visitor@example.com"
	devPassword     = "password123"
	devStudentID    = "dev-user-001"
	devVisitorID    = "dev-user-002"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	existing, err := users.GetByEmail(ctx, devStudentEmail)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Println("seed: dev users already present, nothing to do")
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	now := time.Now().UTC()

	cls := eduverify.Classify(devStudentEmail)
	v := eduverify.VerificationFromClassification(cls)
	student := &userdomain.User{
		ID:                 devStudentID,
		Email:              devStudentEmail,
		FullName:           "Dev Student",
		PasswordHash:       hash,
		AuthProvider:       userdomain.AuthProviderLocal,
		IsActive:           true,
		IsVerified:         v.IsVerified,
		VerificationStatus: v.Status,
		VerificationMethod: v.Method,
		Institution: userdomain.InstitutionInfo{
			Name:   cls.InstitutionName,
			Domain: cls.Domain,
			Type:   cls.InstitutionType,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := users.Create(ctx, student); err != nil {
		log.Fatalf("seed: create student: %v", err)
	}

	visitor := &userdomain.User{
		ID:                 devVisitorID,
		Email:              devVisitorEmail,
		FullName:           "Dev Visitor",
		PasswordHash:       hash,
		AuthProvider:       userdomain.AuthProviderLocal,
		IsActive:           true,
		VerificationStatus: userdomain.VerificationStatusNonStudent,
		VerificationMethod: userdomain.VerificationMethodNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := users.Create(ctx, visitor); err != nil {
		log.Fatalf("seed: create visitor: %v", err)
	}

	log.Printf("seed: created %s and %s (password %q)", devStudentEmail, devVisitorEmail, devPassword)
}
