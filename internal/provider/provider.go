// Package provider defines the mail-provider contract consumed by the
// sync engine and move coordinator. The only implementation is
// internal/provider/gmail.
package provider

import (
	"context"
	"time"
)

// MessageRef is a lightweight (id, threadId) pair returned by listing
// calls, before the message body is hydrated.
type MessageRef struct {
	ID       string
	ThreadID string
}

// ListOptions narrows a listMessages call.
type ListOptions struct {
	MaxResults int64
	PageToken  string
	Query      string
	LabelIDs   []string
}

// ListResult is one page of message references.
type ListResult struct {
	Messages      []MessageRef
	NextPageToken string
}

// ParsedAttachment is one attachment discovered while parsing a message.
type ParsedAttachment struct {
	ProviderAttachID string
	Filename         string
	MimeType         string
	Size             int64
	ContentID        string
	Inline           bool
}

// ParsedMessage is the provider-neutral shape the sync engine ingests.
type ParsedMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	Subject           string
	Snippet           string
	FromEmail         string
	FromName          string
	ToEmails          []string
	CcEmails          []string
	BccEmails         []string
	BodyHTML          string
	BodyText          string
	ReceivedAt        time.Time
	IsRead            bool
	IsStarred         bool
	Labels            []string
	Attachments       []ParsedAttachment
}

// LabelDelta describes the labels a single message gained or lost
// between two history cursors.
type LabelDelta struct {
	MessageID     string
	LabelsAdded   []string
	LabelsRemoved []string
}

// HistoryChanges is one complete history diff since a cursor.
type HistoryChanges struct {
	Cursor          string
	MessagesAdded   []string
	MessagesDeleted []string
	LabelsModified  []LabelDelta
}

// Profile is the provider account summary used to seed historyCursor on
// full sync.
type Profile struct {
	Address       string
	MessagesTotal int64
	ThreadsTotal  int64
	HistoryCursor string
}

// Label is a provider label as surfaced to clients.
type Label struct {
	ID   string
	Name string
	Type string // "system" | "user"
}

// Draft is an outbound message request.
type Draft struct {
	To        []string
	Cc        []string
	Bcc       []string
	Subject   string
	Body      string
	BodyHTML  string
	InReplyTo string
	ThreadID  string
}

// Credentials is the decrypted token material a provider call needs.
// Mailbox is never passed directly so the adapter never sees encrypted
// envelopes or Store internals — the Sync Engine decrypts once and
// passes the result down.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// RefreshedTokens is the result of a refreshTokens call.
type RefreshedTokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// MailProvider is the full provider contract, parameterized over Credentials
// instead of a domain.Mailbox so the package has no dependency on the
// Store's schema.
type MailProvider interface {
	ListMessages(ctx context.Context, creds Credentials, opts ListOptions) (ListResult, error)
	GetMessage(ctx context.Context, creds Credentials, id string) (ParsedMessage, error)
	GetMessages(ctx context.Context, creds Credentials, ids []string) ([]ParsedMessage, error)
	GetHistoryChanges(ctx context.Context, creds Credentials, sinceCursor string) (HistoryChanges, error)
	ModifyMessageLabels(ctx context.Context, creds Credentials, id string, add, remove []string) error
	GetProfile(ctx context.Context, creds Credentials) (Profile, error)
	SendEmail(ctx context.Context, creds Credentials, draft Draft) (string, error)
	RefreshTokens(ctx context.Context, refreshToken string) (RefreshedTokens, error)
	ListLabels(ctx context.Context, creds Credentials) ([]Label, error)
	GetAttachment(ctx context.Context, creds Credentials, messageID, attachmentID string) ([]byte, error)
}
