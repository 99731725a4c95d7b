// Package columns implements the column manager: CRUD and
// gap-preserving ordering for Kanban columns, plus default-column
// seeding.
package columns

import (
	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/store"
)

// Manager is the Column Manager (C6).
type Manager struct {
	columns store.ColumnStore
}

// NewManager builds a Column Manager wired to the Store.
func NewManager(columns store.ColumnStore) *Manager {
	return &Manager{columns: columns}
}

// Create adds a column: reject duplicate titles, default
// orderIndex to max+1 (or 0) when omitted (orderIndex < 0 means "omitted").
func (m *Manager) Create(userID, title, labelToken, colorTag string, orderIndex int, isDefault bool) (*domain.Column, error) {
	existing, err := m.columns.FindByTitle(userID, title)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.Conflict, "column title already in use", nil)
	}
	if orderIndex < 0 {
		max, err := m.columns.MaxOrderIndex(userID)
		if err != nil {
			return nil, err
		}
		orderIndex = max + 1
	}
	col := &domain.Column{
		UserID:     userID,
		Title:      title,
		OrderIndex: orderIndex,
		LabelToken: labelToken,
		ColorTag:   colorTag,
		IsDefault:  isDefault,
	}
	if err := m.columns.Create(col); err != nil {
		return nil, err
	}
	return col, nil
}

// ListForUser returns every column for userID ordered by orderIndex.
func (m *Manager) ListForUser(userID string) ([]*domain.Column, error) {
	return m.columns.ListByUser(userID)
}

// Update applies a partial update. newTitle/newLabelToken/newColorTag
// are applied when non-nil; newOrderIndex (if non-nil) triggers the
// gap-preserving reorder below.
func (m *Manager) Update(userID, id string, newTitle, newLabelToken, newColorTag *string, newOrderIndex *int) (*domain.Column, error) {
	var result *domain.Column
	err := m.columns.RunInTransaction(func(tx store.ColumnStore) error {
		col, err := tx.FindByID(userID, id)
		if err != nil {
			return err
		}
		if col == nil {
			return apperr.New(apperr.NotFound, "column not found", nil)
		}
		if newTitle != nil && *newTitle != col.Title {
			existing, err := tx.FindByTitle(userID, *newTitle)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != col.ID {
				return apperr.New(apperr.Conflict, "column title already in use", nil)
			}
			col.Title = *newTitle
		}
		if newLabelToken != nil {
			col.LabelToken = *newLabelToken
		}
		if newColorTag != nil {
			col.ColorTag = *newColorTag
		}
		if newOrderIndex != nil && *newOrderIndex != col.OrderIndex {
			if err := reorder(tx, userID, col, *newOrderIndex); err != nil {
				return err
			}
		}
		if err := tx.Update(col); err != nil {
			return err
		}
		result = col
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// reorder is the gap-preserving move: moving forward shifts
// the open range (old, new] left by one; moving backward shifts
// [new, old) right by one.
func reorder(tx store.ColumnStore, userID string, col *domain.Column, newIndex int) error {
	old := col.OrderIndex
	if newIndex > old {
		if err := tx.ShiftLeft(userID, col.ID, old, newIndex); err != nil {
			return err
		}
	} else {
		if err := tx.ShiftRight(userID, col.ID, newIndex, old); err != nil {
			return err
		}
	}
	col.OrderIndex = newIndex
	return nil
}

// Delete removes a column: forbidden for default columns, remaining
// indices re-densified afterward.
func (m *Manager) Delete(userID, id string) error {
	return m.columns.RunInTransaction(func(tx store.ColumnStore) error {
		col, err := tx.FindByID(userID, id)
		if err != nil {
			return err
		}
		if col == nil {
			return apperr.New(apperr.NotFound, "column not found", nil)
		}
		if col.IsDefault {
			return apperr.New(apperr.Conflict, "cannot delete a default column", nil)
		}
		if err := tx.Delete(userID, id); err != nil {
			return err
		}
		return tx.Renumber(userID)
	})
}

// defaultColumns is the seed set: six columns at indices 0..5, the
// first three bound to Gmail system labels and marked default.
var defaultColumns = []struct {
	title      string
	labelToken string
	isDefault  bool
}{
	{"Inbox", domain.LabelInbox, true},
	{"Important", "IMPORTANT", true},
	{"Starred", domain.LabelStarred, true},
	{"To Do", "", false},
	{"In Progress", "", false},
	{"Done", "", false},
}

// Initialize seeds the default board. Idempotent — running it twice for
// the same user leaves six columns with unchanged contents.
func (m *Manager) Initialize(userID string) ([]*domain.Column, error) {
	existing, err := m.columns.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	haveTitle := make(map[string]bool, len(existing))
	for _, c := range existing {
		haveTitle[c.Title] = true
	}
	for i, d := range defaultColumns {
		if haveTitle[d.title] {
			continue
		}
		col := &domain.Column{
			UserID:     userID,
			Title:      d.title,
			OrderIndex: i,
			LabelToken: d.labelToken,
			IsDefault:  d.isDefault,
		}
		if err := m.columns.Create(col); err != nil {
			return nil, err
		}
	}
	return m.columns.ListByUser(userID)
}
