package domain

import "time"

// Permission is the scope granted to an API key.
type Permission string

const (
	// PermissionReadOnly allows read operations only.
	PermissionReadOnly Permission = "READ_ONLY"

	// PermissionReadWrite allows reads and writes, excluding account management.
	PermissionReadWrite Permission = "READ_WRITE"

	// PermissionFullAccess allows every operation the owning user may perform.
	PermissionFullAccess Permission = "FULL_ACCESS"
)

// DefaultPermission is applied when a key is created without an explicit scope.
// The most restrictive tier is used so that omission never widens access.
const DefaultPermission = PermissionReadOnly

// ValidPermissions returns all valid permissions, most restrictive first.
func ValidPermissions() []Permission {
	return []Permission{PermissionReadOnly, PermissionReadWrite, PermissionFullAccess}
}

// IsValidPermission checks if a string is a valid permission.
func IsValidPermission(p string) bool {
	switch Permission(p) {
	case PermissionReadOnly, PermissionReadWrite, PermissionFullAccess:
		return true
	}
	return false
}

// ValidExpiryDays returns the lifetimes a key may be created with.
// A key created without a lifetime never expires.
func ValidExpiryDays() []int {
	return []int{30, 60, 90}
}

// IsValidExpiryDays checks if days is one of ValidExpiryDays.
func IsValidExpiryDays(days int) bool {
	for _, d := range ValidExpiryDays() {
		if d == days {
			return true
		}
	}
	return false
}

// KeyStatus is the derived display status of an API key.
type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "active"
	KeyStatusRevoked KeyStatus = "revoked"
	KeyStatusExpired KeyStatus = "expired"
)

// APIKey is a long-lived secondary credential owned by the server.
//
// Secret is only populated in the response to the creation call; every
// later read leaves it nil. Revocation is persisted (Active=false); expiry
// is derived from ExpiresAt at read time and never stored.
type APIKey struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt"`
	Permissions Permission `json:"permissions"`
	Secret      *string    `json:"key,omitempty" table:"-"`
}

// IsExpired reports whether the key has an expiry that lies before now.
func (k APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// HasSecret reports whether the one-time secret is present.
func (k APIKey) HasSecret() bool {
	return k.Secret != nil && *k.Secret != ""
}

// WithoutSecret returns a copy of the key with the secret dropped.
func (k APIKey) WithoutSecret() APIKey {
	k.Secret = nil
	return k
}

// Status derives the display status. Revocation takes precedence over expiry.
func (k APIKey) Status(now time.Time) KeyStatus {
	switch {
	case !k.Active:
		return KeyStatusRevoked
	case k.IsExpired(now):
		return KeyStatusExpired
	default:
		return KeyStatusActive
	}
}
