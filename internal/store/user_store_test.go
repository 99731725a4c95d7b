package store

import (
	"testing"

	"mailsync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserStoreCreateAndFind(t *testing.T) {
	db := newTestDB(t)
	users := NewUserStore(db)

	u := &domain.User{Email: "ada@example.com", DisplayName: "Ada"}
	require.NoError(t, users.Create(u))
	assert.NotEmpty(t, u.ID)

	byID, err := users.FindByID(u.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "ada@example.com", byID.Email)

	byEmail, err := users.FindByEmail("ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestUserStoreFindMissingReturnsNilNil(t *testing.T) {
	db := newTestDB(t)
	users := NewUserStore(db)

	got, err := users.FindByID("does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}
