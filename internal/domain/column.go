package domain

import "time"

// Column is a user-defined Kanban bucket, optionally bound to a provider
// label token.
type Column struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	UserID       string    `json:"userId" gorm:"uniqueIndex:idx_user_title,priority:1;index:idx_user_order,priority:1;not null"`
	Title        string    `json:"title" gorm:"uniqueIndex:idx_user_title,priority:2;not null"`
	OrderIndex   int       `json:"orderIndex" gorm:"index:idx_user_order,priority:2;not null"`
	LabelToken   string    `json:"labelToken,omitempty"`
	ColorTag     string    `json:"colorTag,omitempty"`
	IsDefault    bool      `json:"isDefault" gorm:"default:false"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
