// Package movecoordinator applies a "move message to column" intent to
// both the provider and the store, committing to the provider first so
// a failure never produces local drift.
package movecoordinator

import (
	"context"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/provider"
	"mailsync/internal/secretbox"
	"mailsync/internal/store"
)

// TokenRefresher performs the near-expiry token check before an
// on-demand caller talks to the provider. Implemented by *sync.Engine;
// declared here to avoid an import cycle between internal/sync and
// internal/movecoordinator.
type TokenRefresher interface {
	RefreshIfNearExpiryOnDemand(ctx context.Context, mailboxID string) error
}

// Coordinator moves messages between Kanban columns.
type Coordinator struct {
	messages  store.MessageStore
	columns   store.ColumnStore
	mailboxes store.MailboxStore
	provider  provider.MailProvider
	box       *secretbox.Box
	refresher TokenRefresher
}

// NewCoordinator builds a Coordinator wired to the store and mail
// provider. refresher may be nil in tests that pre-seed a non-expiring
// token.
func NewCoordinator(messages store.MessageStore, columns store.ColumnStore, mailboxes store.MailboxStore, p provider.MailProvider, box *secretbox.Box, refresher TokenRefresher) *Coordinator {
	return &Coordinator{messages: messages, columns: columns, mailboxes: mailboxes, provider: p, box: box, refresher: refresher}
}

// MoveMessageToColumn moves a message into a column, mirroring the
// column's label token (if any) and the optional inbox-archive to the
// provider before touching local state.
func (c *Coordinator) MoveMessageToColumn(ctx context.Context, userID, messageID, targetColumnID string, archiveFromInbox bool) (*domain.Message, error) {
	msg, err := c.messages.FindByIDForUser(userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.New(apperr.NotFound, "message not found", nil)
	}
	column, err := c.columns.FindByID(userID, targetColumnID)
	if err != nil {
		return nil, err
	}
	if column == nil {
		return nil, apperr.New(apperr.NotFound, "column not found", nil)
	}

	var add, remove domain.StringSlice
	if column.LabelToken != "" {
		add = domain.StringSlice{column.LabelToken}
	}
	if archiveFromInbox {
		remove = domain.StringSlice{domain.LabelInbox}
	}

	if len(add) > 0 || len(remove) > 0 {
		mb, err := c.mailboxes.FindByIDUnscoped(msg.MailboxID)
		if err != nil {
			return nil, err
		}
		if mb == nil {
			return nil, apperr.New(apperr.NotFound, "mailbox not found", nil)
		}
		if c.refresher != nil {
			if err := c.refresher.RefreshIfNearExpiryOnDemand(ctx, mb.ID); err != nil {
				return nil, err
			}
			refreshed, err := c.mailboxes.FindByIDUnscoped(mb.ID)
			if err != nil {
				return nil, err
			}
			if refreshed != nil {
				mb = refreshed
			}
		}
		creds, err := c.decryptCreds(mb)
		if err != nil {
			return nil, err
		}
		// Fail the whole operation on provider error — no local state is
		// touched before this call succeeds.
		if err := c.provider.ModifyMessageLabels(ctx, creds, msg.ProviderMessageID, add, remove); err != nil {
			return nil, apperr.New(apperr.ProviderFatal, "modify message labels", err)
		}
	}

	next := msg.Labels.Without(remove).Plus(add)
	msg.ApplyLabels(next)
	columnID := column.ID
	msg.ColumnID = &columnID
	if err := c.messages.Update(msg); err != nil {
		return nil, err
	}
	if err := c.messages.RecomputeCounters(msg.MailboxID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *Coordinator) decryptCreds(mb *domain.Mailbox) (provider.Credentials, error) {
	access, err := c.box.Open(mb.EncryptedAccessTok)
	if err != nil {
		return provider.Credentials{}, apperr.New(apperr.IntegrityFailure, "decrypt access token", err)
	}
	refresh, err := c.box.Open(mb.EncryptedRefreshTok)
	if err != nil {
		return provider.Credentials{}, apperr.New(apperr.IntegrityFailure, "decrypt refresh token", err)
	}
	return provider.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}
