package store

import (
	"errors"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttachmentStore persists Attachment rows, owned one-way by a Message.
type AttachmentStore interface {
	// ReplaceForMessage deletes any existing attachments for messageID
	// and inserts the given batch in one transaction. Only called on
	// first observation of a message; re-observation never re-inserts
	// attachments.
	ReplaceForMessage(messageID string, attachments []*domain.Attachment) error
	ListForMessage(messageID string) ([]*domain.Attachment, error)
	CountForMessage(messageID string) (int64, error)
	FindByID(id string) (*domain.Attachment, error)
}

type attachmentStore struct {
	db *gorm.DB
}

// NewAttachmentStore builds a GORM-backed AttachmentStore.
func NewAttachmentStore(db *gorm.DB) AttachmentStore {
	return &attachmentStore{db: db}
}

func (s *attachmentStore) ReplaceForMessage(messageID string, attachments []*domain.Attachment) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&domain.Attachment{}).Error; err != nil {
			return apperr.New(apperr.Conflict, "clear attachments", err)
		}
		if len(attachments) == 0 {
			return nil
		}
		now := time.Now()
		for _, a := range attachments {
			if a.ID == "" {
				a.ID = uuid.New().String()
			}
			a.MessageID = messageID
			a.CreatedAt = now
		}
		if err := tx.Create(&attachments).Error; err != nil {
			return apperr.New(apperr.Conflict, "insert attachments", err)
		}
		return nil
	})
}

func (s *attachmentStore) ListForMessage(messageID string) ([]*domain.Attachment, error) {
	var attachments []*domain.Attachment
	if err := s.db.Where("message_id = ?", messageID).Find(&attachments).Error; err != nil {
		return nil, apperr.New(apperr.Validation, "list attachments", err)
	}
	return attachments, nil
}

func (s *attachmentStore) CountForMessage(messageID string) (int64, error) {
	var count int64
	if err := s.db.Model(&domain.Attachment{}).Where("message_id = ?", messageID).Count(&count).Error; err != nil {
		return 0, apperr.New(apperr.Validation, "count attachments", err)
	}
	return count, nil
}

func (s *attachmentStore) FindByID(id string) (*domain.Attachment, error) {
	var attachment domain.Attachment
	err := s.db.Where("id = ?", id).First(&attachment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find attachment", err)
	}
	return &attachment, nil
}
