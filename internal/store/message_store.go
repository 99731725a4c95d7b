package store

import (
	"errors"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageFilter narrows List per the /emails listing surface.
// Zero-value fields are treated as "unset" — string filters
// compare against "" and pointer filters against nil.
type MessageFilter struct {
	MailboxID     string
	Search        string
	IsRead        *bool
	IsStarred     *bool
	HasAttachment *bool
	Category      domain.MessageCategory
	TaskStatus    domain.TaskStatus
	FromEmail     string
	Label         string
	ExcludeLabel  string
	IsSnoozed     *bool
	SortBy        string // receivedAt|subject|fromEmail
	SortOrder     string // ASC|DESC
	Page          int
	Limit         int
}

// MessageStore persists Message aggregates scoped to a user's mailboxes.
type MessageStore interface {
	// FindByProviderID looks up a message by its (mailboxId,
	// providerMessageId) composite key, including soft-deleted rows
	// so the ingest path can decide whether to resurrect or skip.
	FindByProviderID(mailboxID, providerMessageID string) (*domain.Message, error)
	FindByID(id string) (*domain.Message, error)
	// FindByIDForUser loads a message only if it belongs to a mailbox
	// owned by userID, returning nil (not an error) otherwise so callers
	// can present ownership failures uniformly as NotFound.
	FindByIDForUser(userID, id string) (*domain.Message, error)
	Upsert(msg *domain.Message) (created bool, err error)
	Update(msg *domain.Message) error
	SoftDelete(id string) error
	SoftDeleteByProviderIDs(mailboxID string, providerMessageIDs []string) error
	List(userID string, filter MessageFilter) ([]*domain.Message, int64, error)
	// RecomputeCounters counts non-deleted rows for the mailbox and writes
	// totalMessages/unreadMessages. Counters are always recounted, never
	// incremented, so retries can't drift them.
	RecomputeCounters(mailboxID string) error
	// WithoutEmbedding returns up to limit non-deleted messages for
	// mailboxID with a null embedding, newest first.
	WithoutEmbedding(mailboxID string, limit int) ([]*domain.Message, error)
	SaveEmbedding(id string, vec domain.Vector, at time.Time) error
	// ExpireSnoozed flips every row with isSnoozed=true and
	// snoozedUntil<=at back to unsnoozed in one statement.
	ExpireSnoozed(at time.Time) (int64, error)
	// ListForSemanticSearch returns non-deleted, non-null-embedding rows
	// for the cosine-similarity scan, optionally scoped to a mailbox.
	ListForSemanticSearch(userID, mailboxID string) ([]*domain.Message, error)
	// ListForFuzzySearch returns every non-deleted candidate row for a
	// user (optionally scoped to a mailbox) for the search service to
	// score in-process.
	ListForFuzzySearch(userID, mailboxID string) ([]*domain.Message, error)
	// DistinctContactsLike returns up to limit distinct (fromName,
	// fromEmail) pairs for a user whose lowercase form contains prefix.
	DistinctContactsLike(userID, prefix string, limit int) ([]domain.Message, error)
	// SubjectTokenSource returns subjects of a user's non-deleted
	// messages, for keyword-frequency suggestion ranking.
	SubjectTokenSource(userID string) ([]string, error)
}

type messageStore struct {
	db *gorm.DB
}

// NewMessageStore builds a GORM-backed MessageStore.
func NewMessageStore(db *gorm.DB) MessageStore {
	return &messageStore{db: db}
}

func (s *messageStore) FindByProviderID(mailboxID, providerMessageID string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.Unscoped().
		Where("mailbox_id = ? AND provider_message_id = ?", mailboxID, providerMessageID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find message by provider id", err)
	}
	return &msg, nil
}

func (s *messageStore) FindByID(id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.Where("id = ? AND deleted_at IS NULL", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find message", err)
	}
	return &msg, nil
}

func (s *messageStore) FindByIDForUser(userID, id string) (*domain.Message, error) {
	var msg domain.Message
	err := s.db.
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id").
		Where("messages.id = ? AND messages.deleted_at IS NULL AND mailboxes.user_id = ? AND mailboxes.deleted_at IS NULL", id, userID).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find message for user", err)
	}
	return &msg, nil
}

// Upsert is the ingestion primitive: overwrite scalar
// fields and labels on re-observation, insert plus attachment batch on
// first observation. Callers are expected to have already set
// msg.Labels via ApplyLabels so derived fields are consistent.
func (s *messageStore) Upsert(msg *domain.Message) (bool, error) {
	existing, err := s.FindByProviderID(msg.MailboxID, msg.ProviderMessageID)
	if err != nil {
		return false, err
	}
	now := time.Now()
	if existing == nil {
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		msg.CreatedAt = now
		msg.UpdatedAt = now
		if err := s.db.Create(msg).Error; err != nil {
			return false, apperr.New(apperr.Conflict, "insert message", err)
		}
		return true, nil
	}

	msg.ID = existing.ID
	msg.CreatedAt = existing.CreatedAt
	msg.UpdatedAt = now
	msg.DeletedAt = nil // re-observation resurrects a soft-deleted row
	// Only provider-owned columns are overwritten. Local workflow state
	// (task/pin/snooze/column) and generated AI fields survive
	// re-observation untouched.
	if err := s.db.Model(&domain.Message{}).Unscoped().Where("id = ?", existing.ID).
		Select(providerOwnedColumns).Updates(msg).Error; err != nil {
		return false, apperr.New(apperr.Conflict, "update message", err)
	}
	return false, nil
}

// providerOwnedColumns are the Message columns sourced from the provider
// on every observation. Everything else on the row is local-only and
// must never be overwritten by the ingest path.
var providerOwnedColumns = []string{
	"provider_thread_id",
	"subject",
	"snippet",
	"from_email",
	"from_name",
	"to_emails",
	"cc_emails",
	"bcc_emails",
	"body_html",
	"body_text",
	"received_at",
	"is_read",
	"is_starred",
	"has_attachments",
	"labels",
	"category",
	"updated_at",
	"deleted_at",
}

func (s *messageStore) Update(msg *domain.Message) error {
	msg.UpdatedAt = time.Now()
	if err := s.db.Save(msg).Error; err != nil {
		return apperr.New(apperr.Conflict, "update message", err)
	}
	return nil
}

func (s *messageStore) SoftDelete(id string) error {
	if err := s.db.Model(&domain.Message{}).Where("id = ?", id).Update("deleted_at", time.Now()).Error; err != nil {
		return apperr.New(apperr.Conflict, "delete message", err)
	}
	return nil
}

// SoftDeleteByProviderIDs deletes in one statement by the provider's id
// list.
func (s *messageStore) SoftDeleteByProviderIDs(mailboxID string, providerMessageIDs []string) error {
	if len(providerMessageIDs) == 0 {
		return nil
	}
	if err := s.db.Model(&domain.Message{}).
		Where("mailbox_id = ? AND provider_message_id IN ? AND deleted_at IS NULL", mailboxID, providerMessageIDs).
		Update("deleted_at", time.Now()).Error; err != nil {
		return apperr.New(apperr.Conflict, "batch delete messages", err)
	}
	return nil
}

func (s *messageStore) scopedToUser(userID string) *gorm.DB {
	return s.db.Model(&domain.Message{}).
		Joins("JOIN mailboxes ON mailboxes.id = messages.mailbox_id").
		Where("messages.deleted_at IS NULL AND mailboxes.user_id = ? AND mailboxes.deleted_at IS NULL", userID)
}

func (s *messageStore) List(userID string, f MessageFilter) ([]*domain.Message, int64, error) {
	q := s.scopedToUser(userID)
	q = applyMessageFilter(q, f)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.New(apperr.Validation, "count messages", err)
	}

	sortBy := "received_at"
	switch f.SortBy {
	case "subject", "fromEmail":
		if f.SortBy == "fromEmail" {
			sortBy = "from_email"
		} else {
			sortBy = "subject"
		}
	}
	sortOrder := "DESC"
	if f.SortOrder == "ASC" {
		sortOrder = "ASC"
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var messages []*domain.Message
	err := q.Order(sortBy + " " + sortOrder + ", messages.id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, 0, apperr.New(apperr.Validation, "list messages", err)
	}
	return messages, total, nil
}

func applyMessageFilter(q *gorm.DB, f MessageFilter) *gorm.DB {
	if f.MailboxID != "" {
		q = q.Where("messages.mailbox_id = ?", f.MailboxID)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("messages.subject LIKE ? OR messages.snippet LIKE ? OR messages.from_name LIKE ? OR messages.from_email LIKE ?", like, like, like, like)
	}
	if f.IsRead != nil {
		q = q.Where("messages.is_read = ?", *f.IsRead)
	}
	if f.IsStarred != nil {
		q = q.Where("messages.is_starred = ?", *f.IsStarred)
	}
	if f.HasAttachment != nil {
		q = q.Where("messages.has_attachments = ?", *f.HasAttachment)
	}
	if f.Category != "" {
		q = q.Where("messages.category = ?", f.Category)
	}
	if f.TaskStatus != "" {
		q = q.Where("messages.task_status = ?", f.TaskStatus)
	}
	if f.FromEmail != "" {
		q = q.Where("messages.from_email = ?", f.FromEmail)
	}
	if f.Label != "" {
		q = q.Where("messages.labels LIKE ?", "%\""+f.Label+"\"%")
	}
	if f.ExcludeLabel != "" {
		q = q.Where("messages.labels NOT LIKE ?", "%\""+f.ExcludeLabel+"\"%")
	}
	if f.IsSnoozed != nil {
		q = q.Where("messages.is_snoozed = ?", *f.IsSnoozed)
	}
	return q
}

// RecomputeCounters recounts rather than increments, so a retried batch
// can't drift the counters.
func (s *messageStore) RecomputeCounters(mailboxID string) error {
	var total, unread int64
	if err := s.db.Model(&domain.Message{}).Where("mailbox_id = ? AND deleted_at IS NULL", mailboxID).Count(&total).Error; err != nil {
		return apperr.New(apperr.Validation, "count total messages", err)
	}
	if err := s.db.Model(&domain.Message{}).Where("mailbox_id = ? AND deleted_at IS NULL AND is_read = ?", mailboxID, false).Count(&unread).Error; err != nil {
		return apperr.New(apperr.Validation, "count unread messages", err)
	}
	if err := s.db.Model(&domain.Mailbox{}).Where("id = ?", mailboxID).
		Updates(map[string]interface{}{"total_messages": total, "unread_messages": unread, "updated_at": time.Now()}).Error; err != nil {
		return apperr.New(apperr.Conflict, "persist mailbox counters", err)
	}
	return nil
}

func (s *messageStore) WithoutEmbedding(mailboxID string, limit int) ([]*domain.Message, error) {
	var messages []*domain.Message
	err := s.db.Where("mailbox_id = ? AND deleted_at IS NULL AND (embedding IS NULL OR embedding = '')", mailboxID).
		Order("received_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, apperr.New(apperr.Validation, "list messages without embedding", err)
	}
	return messages, nil
}

func (s *messageStore) SaveEmbedding(id string, vec domain.Vector, at time.Time) error {
	if err := s.db.Model(&domain.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{"embedding": vec, "embedding_gen_at": at, "updated_at": time.Now()}).Error; err != nil {
		return apperr.New(apperr.Conflict, "save embedding", err)
	}
	return nil
}

func (s *messageStore) ExpireSnoozed(at time.Time) (int64, error) {
	res := s.db.Model(&domain.Message{}).
		Where("is_snoozed = ? AND snoozed_until <= ? AND deleted_at IS NULL", true, at).
		Updates(map[string]interface{}{"is_snoozed": false, "snoozed_until": nil, "updated_at": at})
	if res.Error != nil {
		return 0, apperr.New(apperr.Conflict, "expire snoozed messages", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *messageStore) ListForSemanticSearch(userID, mailboxID string) ([]*domain.Message, error) {
	q := s.scopedToUser(userID).Where("messages.embedding IS NOT NULL AND messages.embedding != ''")
	if mailboxID != "" {
		q = q.Where("messages.mailbox_id = ?", mailboxID)
	}
	var messages []*domain.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, apperr.New(apperr.Validation, "list messages for semantic search", err)
	}
	return messages, nil
}

func (s *messageStore) ListForFuzzySearch(userID, mailboxID string) ([]*domain.Message, error) {
	q := s.scopedToUser(userID)
	if mailboxID != "" {
		q = q.Where("messages.mailbox_id = ?", mailboxID)
	}
	var messages []*domain.Message
	if err := q.Find(&messages).Error; err != nil {
		return nil, apperr.New(apperr.Validation, "list messages for fuzzy search", err)
	}
	return messages, nil
}

func (s *messageStore) DistinctContactsLike(userID, prefix string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	like := "%" + prefix + "%"
	err := s.scopedToUser(userID).
		Where("LOWER(messages.from_name) LIKE ? OR LOWER(messages.from_email) LIKE ?", like, like).
		Select("DISTINCT messages.from_name, messages.from_email").
		Limit(limit * 4). // overfetch; caller dedupes by display value
		Find(&messages).Error
	if err != nil {
		return nil, apperr.New(apperr.Validation, "list contacts", err)
	}
	return messages, nil
}

func (s *messageStore) SubjectTokenSource(userID string) ([]string, error) {
	var subjects []string
	err := s.scopedToUser(userID).Pluck("messages.subject", &subjects).Error
	if err != nil {
		return nil, apperr.New(apperr.Validation, "list subjects", err)
	}
	return subjects, nil
}
