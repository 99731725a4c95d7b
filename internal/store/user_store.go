package store

import (
	"errors"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserStore persists User aggregates.
type UserStore interface {
	Create(user *domain.User) error
	FindByID(id string) (*domain.User, error)
	FindByEmail(email string) (*domain.User, error)
	Update(user *domain.User) error
}

type userStore struct {
	db *gorm.DB
}

// NewUserStore builds a GORM-backed UserStore.
func NewUserStore(db *gorm.DB) UserStore {
	return &userStore{db: db}
}

func (s *userStore) Create(user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.db.Create(user).Error; err != nil {
		return apperr.New(apperr.Conflict, "create user", err)
	}
	return nil
}

func (s *userStore) FindByID(id string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find user by id", err)
	}
	return &user, nil
}

func (s *userStore) FindByEmail(email string) (*domain.User, error) {
	var user domain.User
	err := s.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.New(apperr.NotFound, "find user by email", err)
	}
	return &user, nil
}

func (s *userStore) Update(user *domain.User) error {
	user.UpdatedAt = time.Now()
	if err := s.db.Save(user).Error; err != nil {
		return apperr.New(apperr.Conflict, "update user", err)
	}
	return nil
}
