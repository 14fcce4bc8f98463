package repository

import (
	"context"
	"time"

	"studyhub/backend/internal/session/domain"
)

// Repository defines persistence for sessions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListActiveByUser returns the user's active sessions ordered by
	// last_activity descending (most recently active first).
	ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Deactivate(ctx context.Context, id string) error
	// DeactivateAllByUser deactivates the user's active sessions, skipping
	// exceptID when non-empty. Returns the number deactivated.
	DeactivateAllByUser(ctx context.Context, userID, exceptID string) (int, error)
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error
}
