package domain

import "time"

// AuthProvider tags how a User authenticates. Credential issuance and
// validation live in front of this service; the tag is recorded so
// clients can distinguish local accounts from external ones.
type AuthProvider string

const (
	AuthLocal    AuthProvider = "local"
	AuthExternal AuthProvider = "external"
)

// User is the owner of zero or more Mailboxes. Authentication fields
// (password hash, refresh tokens) are intentionally absent: registration
// and credential rotation are handled upstream.
type User struct {
	ID              string       `json:"id" gorm:"primaryKey"`
	Email           string       `json:"email" gorm:"uniqueIndex;not null"`
	DisplayName     string       `json:"displayName"`
	AuthProvider    AuthProvider `json:"authProvider" gorm:"not null;default:local"`
	ExternalAccount string       `json:"externalAccount,omitempty"`
	Verified        bool         `json:"verified" gorm:"default:false"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}
