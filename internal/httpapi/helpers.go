package httpapi

import (
	"context"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/provider"
)

// oauthExchanger is satisfied structurally by *gmail.Adapter
// (internal/provider/gmail.Adapter.ExchangeCode); declared here instead
// of on provider.MailProvider because code exchange is only needed at
// the connect handshake, not by the sync engine or move coordinator.
type oauthExchanger interface {
	ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (provider.Credentials, time.Time, error)
}

// decryptCreds opens a mailbox's sealed token envelopes.
func (s *Server) decryptCreds(mb *domain.Mailbox) (provider.Credentials, error) {
	access, err := s.box.Open(mb.EncryptedAccessTok)
	if err != nil {
		return provider.Credentials{}, apperr.New(apperr.IntegrityFailure, "decrypt access token", err)
	}
	refresh, err := s.box.Open(mb.EncryptedRefreshTok)
	if err != nil {
		return provider.Credentials{}, apperr.New(apperr.IntegrityFailure, "decrypt refresh token", err)
	}
	return provider.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

// credsForOnDemandCall runs the near-expiry token refresh before
// decrypting a mailbox's tokens, shared by send/list-labels/
// attachment-download handlers.
func (s *Server) credsForOnDemandCall(ctx context.Context, mb *domain.Mailbox) (provider.Credentials, error) {
	if s.engine != nil {
		if err := s.engine.RefreshIfNearExpiryOnDemand(ctx, mb.ID); err != nil {
			return provider.Credentials{}, err
		}
		refreshed, err := s.mailboxes.FindByIDUnscoped(mb.ID)
		if err != nil {
			return provider.Credentials{}, err
		}
		if refreshed != nil {
			mb = refreshed
		}
	}
	return s.decryptCreds(mb)
}

// ownedMailbox loads a mailbox scoped to the caller's userID, returning
// a uniform NotFound for both "missing" and "not owned".
func (s *Server) ownedMailbox(uid, id string) (*domain.Mailbox, error) {
	mb, err := s.mailboxes.FindByID(uid, id)
	if err != nil {
		return nil, err
	}
	if mb == nil {
		return nil, apperr.New(apperr.NotFound, "mailbox not found", nil)
	}
	return mb, nil
}
