package movecoordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"mailsync/internal/domain"
	"mailsync/internal/provider"
	"mailsync/internal/secretbox"
	"mailsync/internal/store"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Mailbox{}, &domain.Message{}, &domain.Attachment{}, &domain.Column{}))
	return db
}

type fakeProvider struct {
	modifyErr       error
	modifyCalled    bool
	lastAdd, lastRm []string
}

func (f *fakeProvider) ListMessages(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
	return provider.ListResult{}, nil
}
func (f *fakeProvider) GetMessage(ctx context.Context, creds provider.Credentials, id string) (provider.ParsedMessage, error) {
	return provider.ParsedMessage{}, nil
}
func (f *fakeProvider) GetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
	return nil, nil
}
func (f *fakeProvider) GetHistoryChanges(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
	return provider.HistoryChanges{}, nil
}
func (f *fakeProvider) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	f.modifyCalled = true
	f.lastAdd, f.lastRm = add, remove
	return f.modifyErr
}
func (f *fakeProvider) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	return provider.Profile{}, nil
}
func (f *fakeProvider) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	return "", nil
}
func (f *fakeProvider) RefreshTokens(ctx context.Context, refreshToken string) (provider.RefreshedTokens, error) {
	return provider.RefreshedTokens{}, nil
}
func (f *fakeProvider) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	return nil, nil
}
func (f *fakeProvider) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	return nil, nil
}

func setup(t *testing.T) (store.MessageStore, store.ColumnStore, store.MailboxStore, *secretbox.Box, *domain.Mailbox, *domain.Message) {
	t.Helper()
	db := newTestDB(t)
	msgStore := store.NewMessageStore(db)
	colStore := store.NewColumnStore(db)
	mbStore := store.NewMailboxStore(db)
	box, err := secretbox.New("0123456789abcdef0123456789abcdef", "mailbox-tokens")
	require.NoError(t, err)

	access, _ := box.Seal("access")
	refresh, _ := box.Seal("refresh")
	mb := &domain.Mailbox{UserID: "user-1", Provider: domain.ProviderGmail, EncryptedAccessTok: access, EncryptedRefreshTok: refresh, TokenExpiresAt: time.Now().Add(time.Hour), Active: true}
	require.NoError(t, mbStore.Create(mb))

	msg := &domain.Message{MailboxID: mb.ID, ProviderMessageID: "M1", ReceivedAt: time.Now()}
	msg.ApplyLabels(domain.StringSlice{"INBOX", "UNREAD"})
	_, err = msgStore.Upsert(msg)
	require.NoError(t, err)

	return msgStore, colStore, mbStore, box, mb, msg
}

// Archiving while moving must drop INBOX both at the provider and
// locally.
func TestMoveMessageToColumn_ArchiveFromInbox(t *testing.T) {
	msgStore, colStore, mbStore, box, mb, msg := setup(t)
	col := &domain.Column{UserID: mb.UserID, Title: "Done"}
	require.NoError(t, colStore.Create(col))

	fp := &fakeProvider{}
	coord := NewCoordinator(msgStore, colStore, mbStore, fp, box, nil)

	updated, err := coord.MoveMessageToColumn(context.Background(), mb.UserID, msg.ID, col.ID, true)
	require.NoError(t, err)
	require.False(t, updated.Labels.Contains("INBOX"))
	require.True(t, fp.modifyCalled)
	require.Equal(t, []string{"INBOX"}, fp.lastRm)

	_, total, err := msgStore.List(mb.UserID, store.MessageFilter{Label: "INBOX", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
}

func TestMoveMessageToColumn_ProviderFailureLeavesLocalUnchanged(t *testing.T) {
	msgStore, colStore, mbStore, box, mb, msg := setup(t)
	col := &domain.Column{UserID: mb.UserID, Title: "Done", LabelToken: "LABEL_DONE"}
	require.NoError(t, colStore.Create(col))

	fp := &fakeProvider{modifyErr: errors.New("rate limited")}
	coord := NewCoordinator(msgStore, colStore, mbStore, fp, box, nil)

	_, err := coord.MoveMessageToColumn(context.Background(), mb.UserID, msg.ID, col.ID, true)
	require.Error(t, err)

	stillThere, err := msgStore.FindByProviderID(mb.ID, "M1")
	require.NoError(t, err)
	require.True(t, stillThere.Labels.Contains("INBOX"))
	require.Nil(t, stillThere.ColumnID)
}

// A no-delta move (no labelToken, no archive) is a local-only update
// and must never reach the provider.
func TestMoveMessageToColumn_NoDeltaSkipsProviderCall(t *testing.T) {
	msgStore, colStore, mbStore, box, mb, msg := setup(t)
	col := &domain.Column{UserID: mb.UserID, Title: "To Do"}
	require.NoError(t, colStore.Create(col))

	fp := &fakeProvider{}
	coord := NewCoordinator(msgStore, colStore, mbStore, fp, box, nil)

	updated, err := coord.MoveMessageToColumn(context.Background(), mb.UserID, msg.ID, col.ID, false)
	require.NoError(t, err)
	require.False(t, fp.modifyCalled)
	require.Equal(t, col.ID, *updated.ColumnID)
}
