package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mailsync/internal/columns"
	"mailsync/internal/domain"
	"mailsync/internal/movecoordinator"
	"mailsync/internal/provider"
	"mailsync/internal/search"
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
	modifyAdd, modifyRm []string
	modifyCalls         int
	sentID              string
	attachmentData      []byte
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
	return provider.HistoryChanges{Cursor: sinceCursor}, nil
}
func (f *fakeProvider) ModifyMessageLabels(ctx context.Context, creds provider.Credentials, id string, add, remove []string) error {
	f.modifyCalls++
	f.modifyAdd, f.modifyRm = add, remove
	return nil
}
func (f *fakeProvider) GetProfile(ctx context.Context, creds provider.Credentials) (provider.Profile, error) {
	return provider.Profile{Address: "me@example.com", HistoryCursor: "1"}, nil
}
func (f *fakeProvider) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	return f.sentID, nil
}
func (f *fakeProvider) RefreshTokens(ctx context.Context, refreshToken string) (provider.RefreshedTokens, error) {
	return provider.RefreshedTokens{AccessToken: "fresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (f *fakeProvider) ListLabels(ctx context.Context, creds provider.Credentials) ([]provider.Label, error) {
	return []provider.Label{
		{ID: "INBOX", Name: "INBOX", Type: "system"},
		{ID: "Label_7", Name: "Receipts", Type: "user"},
		{ID: "CHAT", Name: "CHAT", Type: "system"},
	}, nil
}
func (f *fakeProvider) GetAttachment(ctx context.Context, creds provider.Credentials, messageID, attachmentID string) ([]byte, error) {
	return f.attachmentData, nil
}

type fakeAI struct{}

func (fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, 768), nil
}
func (fakeAI) Summarize(ctx context.Context, text string) (string, error) {
	return "a short summary", nil
}

type harness struct {
	server    *Server
	router    http.Handler
	db        *gorm.DB
	provider  *fakeProvider
	messages  store.MessageStore
	mailboxes store.MailboxStore
	columns   store.ColumnStore
	box       *secretbox.Box
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newTestDB(t)
	users := store.NewUserStore(db)
	mailboxes := store.NewMailboxStore(db)
	messages := store.NewMessageStore(db)
	attachments := store.NewAttachmentStore(db)
	columnStore := store.NewColumnStore(db)

	box, err := secretbox.New("0123456789abcdef0123456789abcdef", "mailbox-tokens")
	require.NoError(t, err)
	fp := &fakeProvider{sentID: "sent-1", attachmentData: []byte("PDFDATA")}

	srv := NewServer(Deps{
		Users:       users,
		Mailboxes:   mailboxes,
		Messages:    messages,
		Attachments: attachments,
		Columns:     columnStore,
		Provider:    fp,
		Box:         box,
		AI:          fakeAI{},
		Mover:       movecoordinator.NewCoordinator(messages, columnStore, mailboxes, fp, box, nil),
		ColumnMgr:   columns.NewManager(columnStore),
		Fuzzy:       search.NewService(messages),
		Semantic:    search.NewSemanticService(messages, fakeAI{}),
		Suggest:     search.NewSuggestionService(messages),
	})
	return &harness{
		server:    srv,
		router:    srv.Router(),
		db:        db,
		provider:  fp,
		messages:  messages,
		mailboxes: mailboxes,
		columns:   columnStore,
		box:       box,
	}
}

func (h *harness) seedMailbox(t *testing.T, userID string) *domain.Mailbox {
	t.Helper()
	access, err := h.box.Seal("access")
	require.NoError(t, err)
	refresh, err := h.box.Seal("refresh")
	require.NoError(t, err)
	mb := &domain.Mailbox{
		UserID:              userID,
		Provider:            domain.ProviderGmail,
		ProviderAddress:     userID + "@example.com",
		EncryptedAccessTok:  access,
		EncryptedRefreshTok: refresh,
		TokenExpiresAt:      time.Now().Add(time.Hour),
		SyncStatus:          domain.SyncSynced,
		Active:              true,
	}
	require.NoError(t, h.mailboxes.Create(mb))
	return mb
}

func (h *harness) seedMessage(t *testing.T, mb *domain.Mailbox, providerID, subject string, labels []string) *domain.Message {
	t.Helper()
	msg := &domain.Message{
		MailboxID:         mb.ID,
		ProviderMessageID: providerID,
		Subject:           subject,
		FromEmail:         "sender@example.com",
		FromName:          "Some Sender",
		ReceivedAt:        time.Now(),
	}
	msg.ApplyLabels(domain.StringSlice(labels))
	_, err := h.messages.Upsert(msg)
	require.NoError(t, err)
	return msg
}

func (h *harness) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+userID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMissingBearerTokenIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/v1/emails", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListEmails_PaginationMetaAndFilter(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	h.seedMessage(t, mb, "m1", "Invoice", []string{"INBOX", "UNREAD"})
	h.seedMessage(t, mb, "m2", "Newsletter", []string{"INBOX"})

	rec := h.do(t, http.MethodGet, "/v1/emails?isRead=false&page=1&limit=10", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	meta := body["meta"].(map[string]interface{})
	require.Equal(t, float64(1), meta["totalItems"])
	require.Equal(t, float64(1), meta["currentPage"])
	require.Contains(t, body["links"].(map[string]interface{})["self"], "page=1")
}

func TestListEmails_ExcludesOtherUsers(t *testing.T) {
	h := newHarness(t)
	mine := h.seedMailbox(t, "user-1")
	theirs := h.seedMailbox(t, "user-2")
	h.seedMessage(t, mine, "m1", "Mine", []string{"INBOX"})
	h.seedMessage(t, theirs, "m2", "Theirs", []string{"INBOX"})

	rec := h.do(t, http.MethodGet, "/v1/emails", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].([]interface{})
	require.Len(t, data, 1)
	require.Equal(t, "Mine", data[0].(map[string]interface{})["subject"])
}

func TestGetEmail_OtherUsersMessageIsNotFound(t *testing.T) {
	h := newHarness(t)
	theirs := h.seedMailbox(t, "user-2")
	msg := h.seedMessage(t, theirs, "m1", "Secret", []string{"INBOX"})

	rec := h.do(t, http.MethodGet, "/v1/emails/"+msg.ID, "user-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchEmail_MarkReadGoesThroughProvider(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	msg := h.seedMessage(t, mb, "m1", "Hello", []string{"INBOX", "UNREAD"})
	h.seedMessage(t, mb, "m2", "Also unread", []string{"INBOX", "UNREAD"})
	require.NoError(t, h.messages.RecomputeCounters(mb.ID))

	rec := h.do(t, http.MethodPatch, "/v1/emails/"+msg.ID, "user-1", map[string]interface{}{"isRead": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, h.provider.modifyCalls)
	require.Equal(t, []string{"UNREAD"}, h.provider.modifyRm)

	got, err := h.messages.FindByID(msg.ID)
	require.NoError(t, err)
	require.True(t, got.IsRead)
	require.False(t, got.Labels.Contains("UNREAD"))

	refreshed, err := h.mailboxes.FindByIDUnscoped(mb.ID)
	require.NoError(t, err)
	require.Equal(t, 1, refreshed.UnreadMessages)
}

func TestPatchEmail_ExplicitNullSnoozeUnsnoozes(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	msg := h.seedMessage(t, mb, "m1", "Hello", []string{"INBOX"})
	until := time.Now().Add(time.Hour)
	msg.IsSnoozed = true
	msg.SnoozedUntil = &until
	require.NoError(t, h.messages.Update(msg))

	rec := h.do(t, http.MethodPatch, "/v1/emails/"+msg.ID, "user-1", map[string]interface{}{"snoozedUntil": nil})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := h.messages.FindByID(msg.ID)
	require.NoError(t, err)
	require.False(t, got.IsSnoozed)
	require.Nil(t, got.SnoozedUntil)
}

func TestPatchEmail_OmittedSnoozeFieldLeavesSnoozeAlone(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	msg := h.seedMessage(t, mb, "m1", "Hello", []string{"INBOX"})
	until := time.Now().Add(time.Hour)
	msg.IsSnoozed = true
	msg.SnoozedUntil = &until
	require.NoError(t, h.messages.Update(msg))

	rec := h.do(t, http.MethodPatch, "/v1/emails/"+msg.ID, "user-1", map[string]interface{}{"taskStatus": "todo"})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := h.messages.FindByID(msg.ID)
	require.NoError(t, err)
	require.True(t, got.IsSnoozed)
	require.NotNil(t, got.SnoozedUntil)
	require.Equal(t, domain.TaskTodo, got.TaskStatus)
}

func TestMoveToColumn_ArchivesFromInbox(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	msg := h.seedMessage(t, mb, "m1", "Hello", []string{"INBOX", "UNREAD"})
	col := &domain.Column{UserID: "user-1", Title: "Done"}
	require.NoError(t, h.columns.Create(col))

	rec := h.do(t, http.MethodPost, "/v1/emails/"+msg.ID+"/move-to-column", "user-1",
		map[string]interface{}{"columnId": col.ID, "archiveFromInbox": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"INBOX"}, h.provider.modifyRm)

	got, err := h.messages.FindByID(msg.ID)
	require.NoError(t, err)
	require.False(t, got.Labels.Contains("INBOX"))
	require.Equal(t, col.ID, *got.ColumnID)
}

func TestSendEmail_ReturnsMessageID(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")

	rec := h.do(t, http.MethodPost, "/v1/emails/send", "user-1", map[string]interface{}{
		"mailboxId": mb.ID,
		"to":        []string{"rcpt@example.com"},
		"subject":   "Hi",
		"body":      "Hello there",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "sent-1", decodeBody(t, rec)["messageId"])
}

func TestSummarizeEmail_SavesAndReturnsSummary(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	msg := h.seedMessage(t, mb, "m1", "Quarterly report", []string{"INBOX"})

	rec := h.do(t, http.MethodPost, "/v1/emails/"+msg.ID+"/summarize", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, msg.ID, body["emailId"])
	require.Equal(t, "a short summary", body["summary"])
	require.Equal(t, true, body["saved"])

	got, err := h.messages.FindByID(msg.ID)
	require.NoError(t, err)
	require.Equal(t, "a short summary", got.AISummary)
}

func TestSearchSuggestions_Shape(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	h.seedMessage(t, mb, "m1", "marketing plans for marketing week", []string{"INBOX"})

	rec := h.do(t, http.MethodGet, "/v1/emails/search/suggestions?q=mark", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Contains(t, body, "contacts")
	require.Contains(t, body, "keywords")
	require.Contains(t, body, "recentSearches")
	keywords := body["keywords"].([]interface{})
	require.Contains(t, keywords, "marketing")
}

func TestMailboxLabels_ClassifiedAndInternalHidden(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")

	rec := h.do(t, http.MethodGet, "/v1/mailboxes/"+mb.ID+"/labels", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	sys := body["system"].([]interface{})
	user := body["user"].([]interface{})
	require.Len(t, sys, 1)
	require.Len(t, user, 1)
	require.Equal(t, "INBOX", sys[0].(map[string]interface{})["id"])
	require.Equal(t, "Label_7", user[0].(map[string]interface{})["id"])
}

func TestDownloadAttachment_Headers(t *testing.T) {
	h := newHarness(t)
	mb := h.seedMailbox(t, "user-1")
	msg := h.seedMessage(t, mb, "m1", "With attachment", []string{"INBOX"})
	att := &domain.Attachment{MessageID: msg.ID, ProviderAttachID: "att-1", Filename: "rapport final.pdf", MimeType: "application/pdf", Size: 7}
	require.NoError(t, store.NewAttachmentStore(h.db).ReplaceForMessage(msg.ID, []*domain.Attachment{att}))

	rec := h.do(t, http.MethodGet, "/v1/attachments/"+att.ID, "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "attachment; filename*=UTF-8''rapport%20final.pdf", rec.Header().Get("Content-Disposition"))
	require.Equal(t, "private, max-age=3600", rec.Header().Get("Cache-Control"))
	require.Equal(t, "7", rec.Header().Get("Content-Length"))
	require.Equal(t, []byte("PDFDATA"), rec.Body.Bytes())
}

func TestKanbanInitialize_IdempotentOverHTTP(t *testing.T) {
	h := newHarness(t)

	first := h.do(t, http.MethodPost, "/v1/kanban/columns/initialize", "user-1", nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Len(t, decodeBody(t, first)["data"].([]interface{}), 6)

	second := h.do(t, http.MethodPost, "/v1/kanban/columns/initialize", "user-1", nil)
	require.Equal(t, http.StatusOK, second.Code)
	require.Len(t, decodeBody(t, second)["data"].([]interface{}), 6)
}

func TestDeleteDefaultColumnIsConflict(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/v1/kanban/columns/initialize", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	cols, err := h.columns.ListByUser("user-1")
	require.NoError(t, err)
	var inbox *domain.Column
	for _, c := range cols {
		if c.Title == "Inbox" {
			inbox = c
		}
	}
	require.NotNil(t, inbox)

	del := h.do(t, http.MethodDelete, "/v1/kanban/columns/"+inbox.ID, "user-1", nil)
	require.Equal(t, http.StatusConflict, del.Code)
}
