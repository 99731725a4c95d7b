package domain

import "time"

// Mailbox is a connected provider account belonging to a User. Token
// material is stored through Secret Box envelopes (opaque strings here;
// internal/secretbox defines the encrypt/decrypt pair that produces and
// consumes them).
type Mailbox struct {
	ID                  string      `json:"id" gorm:"primaryKey"`
	UserID              string      `json:"userId" gorm:"index:idx_mailbox_user,priority:1;not null"`
	Provider            ProviderTag `json:"provider" gorm:"not null;default:gmail"`
	ProviderAddress     string      `json:"providerAddress" gorm:"not null"`
	EncryptedAccessTok  string      `json:"-" gorm:"column:encrypted_access_token"`
	EncryptedRefreshTok string      `json:"-" gorm:"column:encrypted_refresh_token"`
	TokenExpiresAt      time.Time   `json:"tokenExpiresAt"`
	SyncStatus          SyncStatus  `json:"syncStatus" gorm:"index;not null;default:pending"`
	LastSyncAt          *time.Time  `json:"lastSyncAt"`
	LastSyncError       string      `json:"lastSyncError,omitempty"`
	HistoryCursor       string      `json:"historyCursor,omitempty"`
	TotalMessages       int         `json:"totalMessages" gorm:"default:0"`
	UnreadMessages      int         `json:"unreadMessages" gorm:"default:0"`
	Active              bool        `json:"active" gorm:"default:true"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt" gorm:"index"`
	DeletedAt           *time.Time  `json:"-" gorm:"index"`
}

// IsDeleted reports the soft-delete marker.
func (m *Mailbox) IsDeleted() bool { return m.DeletedAt != nil }
