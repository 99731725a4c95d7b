package store

import (
	"errors"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MailboxStore persists Mailbox aggregates, always scoped to an owning
// user; reads are scoped by the owning userId.
type MailboxStore interface {
	Create(mailbox *domain.Mailbox) error
	FindByID(userID, id string) (*domain.Mailbox, error)
	// FindByIDUnscoped loads a Mailbox by ID alone, for internal
	// collaborators (Sync Engine, Enrichment Worker) that already hold
	// a userID-independent handle obtained from a prior scoped read.
	FindByIDUnscoped(id string) (*domain.Mailbox, error)
	ListByUser(userID string) ([]*domain.Mailbox, error)
	ListActive() ([]*domain.Mailbox, error)
	Update(mailbox *domain.Mailbox) error
	SoftDelete(userID, id string) error
}

type mailboxStore struct {
	db *gorm.DB
}

// NewMailboxStore builds a GORM-backed MailboxStore.
func NewMailboxStore(db *gorm.DB) MailboxStore {
	return &mailboxStore{db: db}
}

func (s *mailboxStore) Create(mailbox *domain.Mailbox) error {
	if mailbox.ID == "" {
		mailbox.ID = uuid.New().String()
	}
	now := time.Now()
	mailbox.CreatedAt = now
	mailbox.UpdatedAt = now
	if mailbox.SyncStatus == "" {
		mailbox.SyncStatus = domain.SyncPending
	}
	if err := s.db.Create(mailbox).Error; err != nil {
		return apperr.New(apperr.Conflict, "create mailbox", err)
	}
	return nil
}

func (s *mailboxStore) FindByID(userID, id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find mailbox", err)
	}
	return &mailbox, nil
}

func (s *mailboxStore) FindByIDUnscoped(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	err := s.db.Where("id = ? AND deleted_at IS NULL", id).First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find mailbox", err)
	}
	return &mailbox, nil
}

func (s *mailboxStore) ListByUser(userID string) ([]*domain.Mailbox, error) {
	var mailboxes []*domain.Mailbox
	err := s.db.Where("user_id = ? AND deleted_at IS NULL", userID).Order("created_at ASC").Find(&mailboxes).Error
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "list mailboxes", err)
	}
	return mailboxes, nil
}

// ListActive returns every non-deleted, active Mailbox across all users,
// the working set the Sync Engine's periodic timers iterate over.
func (s *mailboxStore) ListActive() ([]*domain.Mailbox, error) {
	var mailboxes []*domain.Mailbox
	err := s.db.Where("active = ? AND deleted_at IS NULL", true).Find(&mailboxes).Error
	if err != nil {
		return nil, apperr.New(apperr.NotFound, "list active mailboxes", err)
	}
	return mailboxes, nil
}

func (s *mailboxStore) Update(mailbox *domain.Mailbox) error {
	mailbox.UpdatedAt = time.Now()
	if err := s.db.Save(mailbox).Error; err != nil {
		return apperr.New(apperr.Conflict, "update mailbox", err)
	}
	return nil
}

func (s *mailboxStore) SoftDelete(userID, id string) error {
	now := time.Now()
	res := s.db.Model(&domain.Mailbox{}).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", id, userID).
		Updates(map[string]interface{}{"deleted_at": now, "active": false, "updated_at": now})
	if res.Error != nil {
		return apperr.New(apperr.Conflict, "delete mailbox", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "delete mailbox", nil)
	}
	return nil
}
