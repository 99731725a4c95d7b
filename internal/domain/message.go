package domain

import "time"

// Message is the local shadow of one provider message. Labels are the
// source of truth for IsRead/IsStarred/Category — any writer that
// mutates Labels must call DeriveReadStarred/DeriveCategory again.
type Message struct {
	ID                string          `json:"id" gorm:"primaryKey"`
	MailboxID         string          `json:"mailboxId" gorm:"uniqueIndex:idx_mailbox_provider_msg,priority:1;index:idx_mailbox_received,priority:1;index:idx_mailbox_read,priority:1;index:idx_mailbox_category,priority:1;not null"`
	ProviderMessageID string          `json:"providerMessageId" gorm:"uniqueIndex:idx_mailbox_provider_msg,priority:2;not null"`
	ProviderThreadID  string          `json:"providerThreadId"`
	Subject           string          `json:"subject"`
	Snippet           string          `json:"snippet"`
	FromEmail         string          `json:"fromEmail" gorm:"index:idx_mailbox_from"`
	FromName          string          `json:"fromName"`
	ToEmails          StringSlice     `json:"toEmails" gorm:"type:text"`
	CcEmails          StringSlice     `json:"ccEmails" gorm:"type:text"`
	BccEmails         StringSlice     `json:"bccEmails" gorm:"type:text"`
	BodyHTML          string          `json:"bodyHtml,omitempty"`
	BodyText          string          `json:"bodyText,omitempty"`
	ReceivedAt        time.Time       `json:"receivedAt" gorm:"index:idx_mailbox_received,priority:2"`
	IsRead            bool            `json:"isRead" gorm:"index:idx_mailbox_read,priority:2"`
	IsStarred         bool            `json:"isStarred"`
	HasAttachments    bool            `json:"hasAttachments"`
	Labels            StringSlice     `json:"labels" gorm:"type:text"`
	Category          MessageCategory `json:"category" gorm:"index:idx_mailbox_category,priority:2"`
	TaskStatus        TaskStatus      `json:"taskStatus" gorm:"default:none"`
	TaskDeadline      *time.Time      `json:"taskDeadline,omitempty"`
	Pinned            bool            `json:"pinned" gorm:"default:false"`
	IsSnoozed         bool            `json:"isSnoozed" gorm:"index:idx_snooze,priority:1;default:false"`
	SnoozedUntil      *time.Time      `json:"snoozedUntil,omitempty" gorm:"index:idx_snooze,priority:2"`
	AISummary         string          `json:"aiSummary,omitempty"`
	AIActionItem      string          `json:"aiActionItem,omitempty"`
	UrgencyScore      *float64        `json:"urgencyScore,omitempty"`
	ColumnID          *string         `json:"columnId,omitempty" gorm:"index"`
	Embedding         Vector          `json:"-" gorm:"type:text"`
	EmbeddingGenAt    *time.Time      `json:"embeddingGeneratedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	DeletedAt         *time.Time      `json:"-" gorm:"index"`
}

func (m *Message) IsDeleted() bool { return m.DeletedAt != nil }

// ApplyLabels replaces the message's label set and recomputes every
// label-derived field. Used by ingest, incremental label modification,
// and the move coordinator — the single place label derivation happens
// so it can't be forgotten at a call site.
func (m *Message) ApplyLabels(labels StringSlice) {
	m.Labels = labels
	m.IsRead, m.IsStarred = DeriveReadStarred(labels)
	m.Category = DeriveCategory(labels)
}

// Attachment belongs to exactly one Message.
type Attachment struct {
	ID                string    `json:"id" gorm:"primaryKey"`
	MessageID         string    `json:"messageId" gorm:"index;not null"`
	ProviderAttachID  string    `json:"providerAttachmentId"`
	Filename          string    `json:"filename"`
	MimeType          string    `json:"mimeType"`
	Size              int64     `json:"size"`
	ContentID         string    `json:"contentId,omitempty"`
	Inline            bool      `json:"inline"`
	CreatedAt         time.Time `json:"createdAt"`
}
