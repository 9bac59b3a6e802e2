package device

import (
	"context"
	"strings"
	"time"
)

// Platform identifies the push transport a device token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// ParsePlatform normalizes a raw platform string. Unknown values are
// returned as-is so callers can surface them instead of masking input.
func ParsePlatform(raw string) Platform {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ios":
		return PlatformIOS
	case "android":
		return PlatformAndroid
	case "web":
		return PlatformWeb
	default:
		return Platform(raw)
	}
}

// Device is one registered (user, token) pair.
type Device struct {
	UserID       string    `json:"user_id"`
	Token        string    `json:"token"`
	Platform     Platform  `json:"platform"`
	DepartmentID *string   `json:"department_id,omitempty"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Registry is the persistence contract for registered devices.
//
// All Find methods return lists deduplicated by token: when several users
// share a token only one entry is returned, so a notification is never sent
// twice to the same device.
type Registry interface {
	// Upsert registers a device or refreshes an existing (userID, token)
	// registration, updating platform, department and last-active time.
	Upsert(ctx context.Context, userID, token string, platform Platform, departmentID *string) error

	// FindByUsers returns devices owned by any of the given users.
	FindByUsers(ctx context.Context, userIDs []string) ([]Device, error)

	// FindByDepartments returns devices assigned to any of the given departments.
	FindByDepartments(ctx context.Context, departmentIDs []string) ([]Device, error)

	// FindAll returns every registered device.
	FindAll(ctx context.Context) ([]Device, error)

	// DeleteByTokens removes all registrations carrying one of the given
	// tokens. A nil or empty token list is a no-op.
	DeleteByTokens(ctx context.Context, tokens []string) error

	// DeleteByDepartment removes every registration bound to a department.
	// Used when the owning department itself is deleted.
	DeleteByDepartment(ctx context.Context, departmentID string) error
}

// DedupeByToken keeps the first occurrence of every token, preserving order.
func DedupeByToken(devices []Device) []Device {
	seen := make(map[string]struct{}, len(devices))
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if _, ok := seen[d.Token]; ok {
			continue
		}
		seen[d.Token] = struct{}{}
		out = append(out, d)
	}
	return out
}
