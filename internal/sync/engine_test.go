package sync

import (
	"context"
	"testing"
	"time"

	"mailsync/internal/apperr"
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

func testBox(t *testing.T) *secretbox.Box {
	t.Helper()
	box, err := secretbox.New("0123456789abcdef0123456789abcdef", "mailbox-tokens")
	require.NoError(t, err)
	return box
}

func seedMailbox(t *testing.T, mbStore store.MailboxStore, box *secretbox.Box) *domain.Mailbox {
	t.Helper()
	access, err := box.Seal("access-token")
	require.NoError(t, err)
	refresh, err := box.Seal("refresh-token")
	require.NoError(t, err)
	mb := &domain.Mailbox{
		UserID:              "user-1",
		Provider:            domain.ProviderGmail,
		ProviderAddress:     "me@example.com",
		EncryptedAccessTok:  access,
		EncryptedRefreshTok: refresh,
		TokenExpiresAt:      time.Now().Add(time.Hour),
		Active:              true,
	}
	require.NoError(t, mbStore.Create(mb))
	return mb
}

// fakeProvider implements provider.MailProvider with scripted responses
// for testing the Sync Engine without a live Gmail transport.
type fakeProvider struct {
	profile        provider.Profile
	listResult     provider.ListResult
	messagesByID   map[string]provider.ParsedMessage
	historyChanges provider.HistoryChanges
	historyErr     error
}

func (f *fakeProvider) ListMessages(ctx context.Context, creds provider.Credentials, opts provider.ListOptions) (provider.ListResult, error) {
	return f.listResult, nil
}
func (f *fakeProvider) GetMessage(ctx context.Context, creds provider.Credentials, id string) (provider.ParsedMessage, error) {
	return f.messagesByID[id], nil
}
func (f *fakeProvider) GetMessages(ctx context.Context, creds provider.Credentials, ids []string) ([]provider.ParsedMessage, error) {
	out := make([]provider.ParsedMessage, 0, len(ids))
	for _, id := range ids {
		if m, ok := f.messagesByID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeProvider) GetHistoryChanges(ctx context.Context, creds provider.Credentials, sinceCursor string) (provider.HistoryChanges, error) {
	if f.historyErr != nil {
		return provider.HistoryChanges{}, f.historyErr
	}
	return f.historyChanges, nil
}
func (f *fakeProvider) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	return nil
}
func (f *fakeProvider) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	return f.profile, nil
}
func (f *fakeProvider) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	return "sent-id", nil
}
func (f *fakeProvider) RefreshTokens(ctx context.Context, refreshToken string) (provider.RefreshedTokens, error) {
	return provider.RefreshedTokens{AccessToken: "new-access", ExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (f *fakeProvider) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	return nil, nil
}
func (f *fakeProvider) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	return nil, nil
}

// A first full sync must derive category and read/starred state
// from the provider labels and recount the mailbox counters.
func TestFullSync_IngestWithCategoryDerivation(t *testing.T) {
	db := newTestDB(t)
	mbStore := store.NewMailboxStore(db)
	msgStore := store.NewMessageStore(db)
	attStore := store.NewAttachmentStore(db)
	box := testBox(t)
	mb := seedMailbox(t, mbStore, box)

	fp := &fakeProvider{
		profile:    provider.Profile{Address: "me@example.com", HistoryCursor: "H1"},
		listResult: provider.ListResult{Messages: []provider.MessageRef{{ID: "M1", ThreadID: "T1"}}},
		messagesByID: map[string]provider.ParsedMessage{
			"M1": {
				ProviderMessageID: "M1",
				ProviderThreadID:  "T1",
				Subject:           "50% off",
				ReceivedAt:        time.Now(),
				Labels:            []string{"INBOX", "UNREAD", "CATEGORY_PROMOTIONS"},
			},
		},
	}

	engine := NewEngine(mbStore, msgStore, attStore, fp, box, DefaultConfig())
	require.NoError(t, engine.FullSync(context.Background(), mb.ID, 50))

	msg, err := msgStore.FindByProviderID(mb.ID, "M1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, domain.CategoryPromotions, msg.Category)
	require.False(t, msg.IsRead)
	require.False(t, msg.IsStarred)
	require.False(t, msg.HasAttachments)

	updated, err := mbStore.FindByIDUnscoped(mb.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SyncSynced, updated.SyncStatus)
	require.Equal(t, "H1", updated.HistoryCursor)
	require.Equal(t, 1, updated.UnreadMessages)
}

// An incremental label change must rewrite the label set in place,
// preserving order, and re-derive the read/starred flags.
func TestIncrementalSync_LabelChange(t *testing.T) {
	db := newTestDB(t)
	mbStore := store.NewMailboxStore(db)
	msgStore := store.NewMessageStore(db)
	attStore := store.NewAttachmentStore(db)
	box := testBox(t)
	mb := seedMailbox(t, mbStore, box)
	mb.HistoryCursor = "H1"
	require.NoError(t, mbStore.Update(mb))

	msg := &domain.Message{MailboxID: mb.ID, ProviderMessageID: "M1", ReceivedAt: time.Now()}
	msg.ApplyLabels(domain.StringSlice{"INBOX", "UNREAD", "CATEGORY_PROMOTIONS"})
	_, err := msgStore.Upsert(msg)
	require.NoError(t, err)

	fp := &fakeProvider{
		historyChanges: provider.HistoryChanges{
			Cursor: "H2",
			LabelsModified: []provider.LabelDelta{
				{MessageID: "M1", LabelsAdded: []string{"STARRED"}, LabelsRemoved: []string{"UNREAD"}},
			},
		},
	}
	engine := NewEngine(mbStore, msgStore, attStore, fp, box, DefaultConfig())
	require.NoError(t, engine.IncrementalSync(context.Background(), mb.ID))

	got, err := msgStore.FindByProviderID(mb.ID, "M1")
	require.NoError(t, err)
	require.Equal(t, domain.StringSlice{"INBOX", "CATEGORY_PROMOTIONS", "STARRED"}, got.Labels)
	require.True(t, got.IsRead)
	require.True(t, got.IsStarred)

	updated, err := mbStore.FindByIDUnscoped(mb.ID)
	require.NoError(t, err)
	require.Equal(t, "H2", updated.HistoryCursor)
	require.Equal(t, 0, updated.UnreadMessages)
}

// A rejected history cursor must fall back to a fresh full sync.
func TestIncrementalSync_StaleCursorRecovery(t *testing.T) {
	db := newTestDB(t)
	mbStore := store.NewMailboxStore(db)
	msgStore := store.NewMessageStore(db)
	attStore := store.NewAttachmentStore(db)
	box := testBox(t)
	mb := seedMailbox(t, mbStore, box)
	mb.HistoryCursor = "H42"
	require.NoError(t, mbStore.Update(mb))

	fp := &fakeProvider{
		historyErr: apperr.New(apperr.ProviderStaleCursor, "history cursor too old", nil),
		profile:    provider.Profile{HistoryCursor: "HFRESH"},
		listResult: provider.ListResult{},
	}
	engine := NewEngine(mbStore, msgStore, attStore, fp, box, DefaultConfig())
	require.NoError(t, engine.IncrementalSync(context.Background(), mb.ID))

	updated, err := mbStore.FindByIDUnscoped(mb.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SyncSynced, updated.SyncStatus)
	require.Equal(t, "HFRESH", updated.HistoryCursor)
}

func TestIngest_DuplicateUpsertSingleRow(t *testing.T) {
	db := newTestDB(t)
	mbStore := store.NewMailboxStore(db)
	msgStore := store.NewMessageStore(db)
	attStore := store.NewAttachmentStore(db)
	box := testBox(t)
	mb := seedMailbox(t, mbStore, box)

	fp := &fakeProvider{
		profile:    provider.Profile{HistoryCursor: "H1"},
		listResult: provider.ListResult{Messages: []provider.MessageRef{{ID: "M1"}}},
		messagesByID: map[string]provider.ParsedMessage{
			"M1": {ProviderMessageID: "M1", ReceivedAt: time.Now(), Labels: []string{"INBOX"}},
		},
	}
	engine := NewEngine(mbStore, msgStore, attStore, fp, box, DefaultConfig())
	require.NoError(t, engine.FullSync(context.Background(), mb.ID, 50))
	require.NoError(t, engine.FullSync(context.Background(), mb.ID, 50))

	_, total, err := msgStore.List(mb.UserID, store.MessageFilter{MailboxID: mb.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestRetryQueue_BackoffAndExhaustion(t *testing.T) {
	db := newTestDB(t)
	mbStore := store.NewMailboxStore(db)
	msgStore := store.NewMessageStore(db)
	attStore := store.NewAttachmentStore(db)
	box := testBox(t)
	mb := seedMailbox(t, mbStore, box)

	fp := &fakeProvider{historyErr: apperr.New(apperr.ProviderTransient, "network blip", nil)}
	mb.HistoryCursor = "H1"
	require.NoError(t, mbStore.Update(mb))

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	engine := NewEngine(mbStore, msgStore, attStore, fp, box, cfg)

	for i := 0; i < 2; i++ {
		require.NoError(t, engine.IncrementalSync(context.Background(), mb.ID))
	}
	updated, err := mbStore.FindByIDUnscoped(mb.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SyncError, updated.SyncStatus)

	// Third failure exceeds MaxRetries and drops the entry with a suffix.
	require.NoError(t, engine.IncrementalSync(context.Background(), mb.ID))
	updated, err = mbStore.FindByIDUnscoped(mb.ID)
	require.NoError(t, err)
	require.Contains(t, updated.LastSyncError, "max retries exceeded")
}
