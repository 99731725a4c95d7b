package store

import (
	"errors"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ColumnStore persists Column rows and the low-level primitives the
// column manager composes into its gap-preserving reorder algorithm.
// The store does not itself decide shift direction or amount —
// that policy lives in internal/columns.
type ColumnStore interface {
	Create(column *domain.Column) error
	Update(column *domain.Column) error
	Delete(userID, id string) error
	FindByID(userID, id string) (*domain.Column, error)
	FindByTitle(userID, title string) (*domain.Column, error)
	ListByUser(userID string) ([]*domain.Column, error)
	MaxOrderIndex(userID string) (int, error)
	// ShiftLeft decrements orderIndex by one for every column of userID
	// other than excludeID with orderIndex in the open-closed range
	// (lo, hi].
	ShiftLeft(userID, excludeID string, lo, hi int) error
	// ShiftRight increments orderIndex by one for every column of userID
	// other than excludeID with orderIndex in the closed-open range
	// [lo, hi).
	ShiftRight(userID, excludeID string, lo, hi int) error
	// Renumber re-densifies orderIndex to 0..N-1 following the existing
	// relative order, used after a delete.
	Renumber(userID string) error
	// RunInTransaction executes fn against a ColumnStore bound to a
	// single DB transaction, so a reorder's shift + move commit atomically.
	RunInTransaction(fn func(tx ColumnStore) error) error
}

type columnStore struct {
	db *gorm.DB
}

// NewColumnStore builds a GORM-backed ColumnStore.
func NewColumnStore(db *gorm.DB) ColumnStore {
	return &columnStore{db: db}
}

func (s *columnStore) RunInTransaction(fn func(tx ColumnStore) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&columnStore{db: tx})
	})
}

func (s *columnStore) Create(column *domain.Column) error {
	if column.ID == "" {
		column.ID = uuid.New().String()
	}
	now := time.Now()
	column.CreatedAt = now
	column.UpdatedAt = now
	if err := s.db.Create(column).Error; err != nil {
		return apperr.New(apperr.Conflict, "create column", err)
	}
	return nil
}

func (s *columnStore) Update(column *domain.Column) error {
	column.UpdatedAt = time.Now()
	if err := s.db.Save(column).Error; err != nil {
		return apperr.New(apperr.Conflict, "update column", err)
	}
	return nil
}

func (s *columnStore) Delete(userID, id string) error {
	res := s.db.Where("user_id = ? AND id = ?", userID, id).Delete(&domain.Column{})
	if res.Error != nil {
		return apperr.New(apperr.Conflict, "delete column", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "delete column", nil)
	}
	return nil
}

func (s *columnStore) FindByID(userID, id string) (*domain.Column, error) {
	var col domain.Column
	err := s.db.Where("user_id = ? AND id = ?", userID, id).First(&col).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find column", err)
	}
	return &col, nil
}

func (s *columnStore) FindByTitle(userID, title string) (*domain.Column, error) {
	var col domain.Column
	err := s.db.Where("user_id = ? AND title = ?", userID, title).First(&col).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find column by title", err)
	}
	return &col, nil
}

func (s *columnStore) ListByUser(userID string) ([]*domain.Column, error) {
	var columns []*domain.Column
	if err := s.db.Where("user_id = ?", userID).Order("order_index ASC").Find(&columns).Error; err != nil {
		return nil, apperr.New(apperr.Validation, "list columns", err)
	}
	return columns, nil
}

func (s *columnStore) MaxOrderIndex(userID string) (int, error) {
	var max *int
	err := s.db.Model(&domain.Column{}).Where("user_id = ?", userID).Select("MAX(order_index)").Scan(&max).Error
	if err != nil {
		return -1, apperr.New(apperr.Validation, "max column order", err)
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}

func (s *columnStore) ShiftLeft(userID, excludeID string, lo, hi int) error {
	err := s.db.Model(&domain.Column{}).
		Where("user_id = ? AND id != ? AND order_index > ? AND order_index <= ?", userID, excludeID, lo, hi).
		Updates(map[string]interface{}{"order_index": gorm.Expr("order_index - 1"), "updated_at": time.Now()}).Error
	if err != nil {
		return apperr.New(apperr.Conflict, "shift columns left", err)
	}
	return nil
}

func (s *columnStore) ShiftRight(userID, excludeID string, lo, hi int) error {
	err := s.db.Model(&domain.Column{}).
		Where("user_id = ? AND id != ? AND order_index >= ? AND order_index < ?", userID, excludeID, lo, hi).
		Updates(map[string]interface{}{"order_index": gorm.Expr("order_index + 1"), "updated_at": time.Now()}).Error
	if err != nil {
		return apperr.New(apperr.Conflict, "shift columns right", err)
	}
	return nil
}

// Renumber walks columns in current orderIndex order and rewrites
// indices to the dense prefix 0..N-1.
func (s *columnStore) Renumber(userID string) error {
	columns, err := s.ListByUser(userID)
	if err != nil {
		return err
	}
	now := time.Now()
	for i, col := range columns {
		if col.OrderIndex == i {
			continue
		}
		if err := s.db.Model(&domain.Column{}).Where("id = ?", col.ID).
			Updates(map[string]interface{}{"order_index": i, "updated_at": now}).Error; err != nil {
			return apperr.New(apperr.Conflict, "renumber columns", err)
		}
	}
	return nil
}
