package store

import (
	"testing"

	"mailsync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnStoreReorderGapPreserving(t *testing.T) {
	db := newTestDB(t)
	columns := NewColumnStore(db)

	titles := []string{"Inbox", "Important", "Starred", "To Do", "In Progress", "Done"}
	ids := make([]string, len(titles))
	for i, title := range titles {
		c := &domain.Column{UserID: "u1", Title: title, OrderIndex: i}
		require.NoError(t, columns.Create(c))
		ids[i] = c.ID
	}

	// Move "To Do" (index 3) forward to index 5: (3,5] shifts left by one.
	require.NoError(t, columns.RunInTransaction(func(tx ColumnStore) error {
		if err := tx.ShiftLeft("u1", ids[3], 3, 5); err != nil {
			return err
		}
		moved, err := tx.FindByID("u1", ids[3])
		if err != nil {
			return err
		}
		moved.OrderIndex = 5
		return tx.Update(moved)
	}))

	list, err := columns.ListByUser("u1")
	require.NoError(t, err)
	order := make(map[string]int, len(list))
	for _, c := range list {
		order[c.Title] = c.OrderIndex
	}
	assert.Equal(t, 0, order["Inbox"])
	assert.Equal(t, 1, order["Important"])
	assert.Equal(t, 2, order["Starred"])
	assert.Equal(t, 3, order["In Progress"]) // shifted left from 4
	assert.Equal(t, 4, order["Done"])        // shifted left from 5
	assert.Equal(t, 5, order["To Do"])       // moved
}

func TestColumnStoreDeleteThenRenumber(t *testing.T) {
	db := newTestDB(t)
	columns := NewColumnStore(db)

	var ids []string
	for i, title := range []string{"A", "B", "C"} {
		c := &domain.Column{UserID: "u1", Title: title, OrderIndex: i}
		require.NoError(t, columns.Create(c))
		ids = append(ids, c.ID)
	}

	require.NoError(t, columns.Delete("u1", ids[1])) // remove "B" at index 1
	require.NoError(t, columns.Renumber("u1"))

	list, err := columns.ListByUser("u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].Title)
	assert.Equal(t, 0, list[0].OrderIndex)
	assert.Equal(t, "C", list[1].Title)
	assert.Equal(t, 1, list[1].OrderIndex)
}
