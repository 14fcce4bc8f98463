package domain

import (
	"strings"
	"time"
)

// Session represents one logged-in device or browser. It outlives any single
// token pair; deactivation is terminal and a deactivated session is never
// reactivated.
type Session struct {
	ID           string
	UserID       string
	IPAddress    string
	UserAgent    string
	DeviceType   DeviceType // derived from UserAgent, informational
	LoginMethod  LoginMethod
	IsActive     bool
	LastActivity time.Time // updated on each validated use
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeUnknown DeviceType = "unknown"
)

type LoginMethod string

const (
	LoginMethodPassword  LoginMethod = "password"
	LoginMethodOAuth     LoginMethod = "oauth"
	LoginMethodMagicLink LoginMethod = "magic-link"
	LoginMethodMigration LoginMethod = "migration"
)

// DeriveDeviceType classifies a User-Agent string. Best-effort and purely
// informational; an empty or odd UA is "unknown".
func DeriveDeviceType(userAgent string) DeviceType {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return DeviceTypeUnknown
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTypeTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return DeviceTypeMobile
	case strings.Contains(ua, "mozilla") || strings.Contains(ua, "chrome") || strings.Contains(ua, "safari"):
		return DeviceTypeDesktop
	default:
		return DeviceTypeUnknown
	}
}
