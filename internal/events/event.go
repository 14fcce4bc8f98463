// Package events publishes auth lifecycle events to Kafka so downstream
// consumers (analytics, abuse detection) can react without coupling to the
// auth service. Emission is best-effort; login never fails because Kafka did.
package events

import (
	"context"
	"time"
)

// Type names one auth lifecycle event.
type Type string

const (
	TypeMagicLinkRequested Type = "auth.magic_link.requested"
	TypeMagicLinkRedeemed  Type = "auth.magic_link.redeemed"
	TypeLoginSucceeded     Type = "auth.login.succeeded"
	TypeLoginFailed        Type = "auth.login.failed"
	TypeTokenRefreshed     Type = "auth.token.refreshed"
	TypeLogout             Type = "auth.logout"
	TypeSessionEvicted     Type = "auth.session.evicted"
)

// Event is the wire payload, serialized as JSON.
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	Email      string    `json:"email,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	Emit(ctx context.Context, event *Event) error
	Close() error
}
