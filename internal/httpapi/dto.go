package httpapi

import (
	"fmt"
	"net/url"

	"mailsync/internal/domain"

	"github.com/gin-gonic/gin"
)

// emailSummary is the list-view projection: everything a mailbox
// listing needs, bodies dropped.
type emailSummary struct {
	ID             string                 `json:"id"`
	MailboxID      string                 `json:"mailboxId"`
	Subject        string                 `json:"subject"`
	Snippet        string                 `json:"snippet"`
	FromEmail      string                 `json:"fromEmail"`
	FromName       string                 `json:"fromName,omitempty"`
	ReceivedAt     string                 `json:"receivedAt"`
	IsRead         bool                   `json:"isRead"`
	IsStarred      bool                   `json:"isStarred"`
	HasAttachments bool                   `json:"hasAttachments"`
	Labels         []string               `json:"labels"`
	Category       domain.MessageCategory `json:"category"`
	TaskStatus     domain.TaskStatus      `json:"taskStatus"`
	TaskDeadline   *string                `json:"taskDeadline,omitempty"`
	Pinned         bool                   `json:"pinned"`
	IsSnoozed      bool                   `json:"isSnoozed"`
	SnoozedUntil   *string                `json:"snoozedUntil,omitempty"`
	ColumnID       *string                `json:"columnId,omitempty"`
	AISummary      string                 `json:"aiSummary,omitempty"`
	UrgencyScore   *float64               `json:"urgencyScore,omitempty"`
}

// emailDetail is the single-message projection: recipients, bodies,
// attachments and AI fields on top of the summary.
type emailDetail struct {
	emailSummary
	ToEmails     []string            `json:"toEmails"`
	CcEmails     []string            `json:"ccEmails"`
	BccEmails    []string            `json:"bccEmails"`
	BodyHTML     string              `json:"bodyHtml,omitempty"`
	BodyText     string              `json:"bodyText,omitempty"`
	AIActionItem string              `json:"aiActionItem,omitempty"`
	Attachments  []attachmentSummary `json:"attachments"`
}

type attachmentSummary struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Inline   bool   `json:"inline"`
}

func toEmailSummary(m *domain.Message) emailSummary {
	s := emailSummary{
		ID:             m.ID,
		MailboxID:      m.MailboxID,
		Subject:        m.Subject,
		Snippet:        m.Snippet,
		FromEmail:      m.FromEmail,
		FromName:       m.FromName,
		ReceivedAt:     m.ReceivedAt.Format(timeLayout),
		IsRead:         m.IsRead,
		IsStarred:      m.IsStarred,
		HasAttachments: m.HasAttachments,
		Labels:         []string(m.Labels),
		Category:       m.Category,
		TaskStatus:     m.TaskStatus,
		Pinned:         m.Pinned,
		IsSnoozed:      m.IsSnoozed,
		ColumnID:       m.ColumnID,
		AISummary:      m.AISummary,
		UrgencyScore:   m.UrgencyScore,
	}
	if m.TaskDeadline != nil {
		str := m.TaskDeadline.Format(timeLayout)
		s.TaskDeadline = &str
	}
	if m.SnoozedUntil != nil {
		str := m.SnoozedUntil.Format(timeLayout)
		s.SnoozedUntil = &str
	}
	return s
}

func toEmailDetail(m *domain.Message, attachments []*domain.Attachment) emailDetail {
	d := emailDetail{
		emailSummary: toEmailSummary(m),
		ToEmails:     []string(m.ToEmails),
		CcEmails:     []string(m.CcEmails),
		BccEmails:    []string(m.BccEmails),
		BodyHTML:     m.BodyHTML,
		BodyText:     m.BodyText,
		AIActionItem: m.AIActionItem,
	}
	for _, a := range attachments {
		d.Attachments = append(d.Attachments, attachmentSummary{
			ID: a.ID, Filename: a.Filename, MimeType: a.MimeType, Size: a.Size, Inline: a.Inline,
		})
	}
	return d
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// pageMeta is the pagination envelope returned by listing endpoints:
// {itemsPerPage, totalItems, currentPage, totalPages}.
type pageMeta struct {
	ItemsPerPage int   `json:"itemsPerPage"`
	TotalItems   int64 `json:"totalItems"`
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
}

func buildPageMeta(page, limit int, total int64) pageMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return pageMeta{ItemsPerPage: limit, TotalItems: total, CurrentPage: page, TotalPages: totalPages}
}

// selfLink builds the self link for a paginated listing.
func selfLink(basePath string, query url.Values, page int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("page", fmt.Sprintf("%d", page))
	return basePath + "?" + q.Encode()
}

func columnView(c *domain.Column) gin.H {
	return gin.H{
		"id":         c.ID,
		"userId":     c.UserID,
		"title":      c.Title,
		"orderIndex": c.OrderIndex,
		"labelToken": c.LabelToken,
		"colorTag":   c.ColorTag,
		"isDefault":  c.IsDefault,
	}
}

func mailboxView(m *domain.Mailbox) gin.H {
	var lastSync *string
	if m.LastSyncAt != nil {
		s := m.LastSyncAt.Format(timeLayout)
		lastSync = &s
	}
	return gin.H{
		"id":              m.ID,
		"userId":          m.UserID,
		"provider":        m.Provider,
		"providerAddress": m.ProviderAddress,
		"syncStatus":      m.SyncStatus,
		"lastSyncAt":      lastSync,
		"lastSyncError":   m.LastSyncError,
		"totalMessages":   m.TotalMessages,
		"unreadMessages":  m.UnreadMessages,
		"active":          m.Active,
		"createdAt":       m.CreatedAt.Format(timeLayout),
	}
}
