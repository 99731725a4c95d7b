package httpapi

import (
	"context"
	"net/http"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) registerMailboxRoutes(v1 *gin.RouterGroup) {
	mb := v1.Group("/mailboxes")
	mb.GET("", s.listMailboxes)
	mb.POST("/connect", s.connectMailbox)
	mb.GET("/:id", s.getMailbox)
	mb.POST("/:id/sync", s.syncMailbox)
	mb.GET("/:id/stats", s.mailboxStats)
	mb.GET("/:id/labels", s.mailboxLabels)
	mb.DELETE("/:id", s.deleteMailbox)
}

func (s *Server) listMailboxes(c *gin.Context) {
	uid := userID(c)
	mailboxes, err := s.mailboxes.ListByUser(uid)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(mailboxes))
	for _, m := range mailboxes {
		out = append(out, mailboxView(m))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) getMailbox(c *gin.Context) {
	uid := userID(c)
	mb, err := s.ownedMailbox(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mailboxView(mb))
}

type connectRequest struct {
	Code         string `json:"code" binding:"required"`
	CodeVerifier string `json:"codeVerifier"`
}

// connectMailbox implements POST /mailboxes/connect: exchange the
// external OAuth code, seal the resulting tokens through the Secret Box,
// create the Mailbox row, and kick off its first full sync.
func (s *Server) connectMailbox(c *gin.Context) {
	uid := userID(c)
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.New(apperr.Validation, "invalid connect request", err))
		return
	}

	exchanger, ok := s.provider.(oauthExchanger)
	if !ok {
		fail(c, apperr.New(apperr.ProviderFatal, "provider does not support code exchange", nil))
		return
	}
	creds, expiry, err := exchanger.ExchangeCode(c.Request.Context(), req.Code, req.CodeVerifier, s.googleRedirectURI)
	if err != nil {
		fail(c, err)
		return
	}
	profile, err := s.provider.GetProfile(c.Request.Context(), creds)
	if err != nil {
		fail(c, err)
		return
	}

	existing, err := s.mailboxes.ListByUser(uid)
	if err != nil {
		fail(c, err)
		return
	}
	for _, m := range existing {
		if m.ProviderAddress == profile.Address {
			fail(c, apperr.New(apperr.Conflict, "mailbox already connected", nil))
			return
		}
	}

	encAccess, err := s.box.Seal(creds.AccessToken)
	if err != nil {
		fail(c, apperr.New(apperr.IntegrityFailure, "seal access token", err))
		return
	}
	encRefresh, err := s.box.Seal(creds.RefreshToken)
	if err != nil {
		fail(c, apperr.New(apperr.IntegrityFailure, "seal refresh token", err))
		return
	}

	mailbox := &domain.Mailbox{
		ID:                  uuid.New().String(),
		UserID:              uid,
		Provider:            domain.ProviderGmail,
		ProviderAddress:     profile.Address,
		EncryptedAccessTok:  encAccess,
		EncryptedRefreshTok: encRefresh,
		TokenExpiresAt:      expiry,
		SyncStatus:          domain.SyncPending,
		Active:              true,
	}
	if err := s.mailboxes.Create(mailbox); err != nil {
		fail(c, err)
		return
	}

	if s.engine != nil {
		go func(mailboxID string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := s.engine.FullSync(ctx, mailboxID, 0); err != nil {
				// logged by the engine itself; sync is fire-and-forget.
				_ = err
			}
		}(mailbox.ID)
	}

	c.JSON(http.StatusCreated, mailboxView(mailbox))
}

// syncMailbox implements POST /mailboxes/{id}/sync: 202-accepted,
// fire-and-forget on-demand sync.
func (s *Server) syncMailbox(c *gin.Context) {
	uid := userID(c)
	mb, err := s.ownedMailbox(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	forceFull := c.Query("forceFull") == "true"
	if s.engine != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			_ = s.engine.SyncOnDemand(ctx, mb.ID, forceFull)
		}()
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// mailboxStats implements GET /mailboxes/{id}/stats: per-label
// {total, unread} counts for the system labels the response names.
func (s *Server) mailboxStats(c *gin.Context) {
	uid := userID(c)
	mb, err := s.ownedMailbox(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	labelFor := map[string]string{
		"inbox":   domain.LabelInbox,
		"starred": domain.LabelStarred,
		"drafts":  "DRAFT",
		"sent":    "SENT",
		"spam":    "SPAM",
		"trash":   "TRASH",
	}
	stats := gin.H{}
	for key, label := range labelFor {
		unreadFalse := false
		_, total, err := s.messages.List(uid, store.MessageFilter{MailboxID: mb.ID, Label: label, Limit: 1})
		if err != nil {
			fail(c, err)
			return
		}
		_, unread, err := s.messages.List(uid, store.MessageFilter{MailboxID: mb.ID, Label: label, IsRead: &unreadFalse, Limit: 1})
		if err != nil {
			fail(c, err)
			return
		}
		stats[key] = gin.H{"total": total, "unread": unread}
	}
	c.JSON(http.StatusOK, stats)
}

// systemLabels is the set of provider system labels exposed to clients;
// everything else system-typed stays internal.
var systemLabels = map[string]bool{
	"INBOX": true, "SENT": true, "DRAFT": true, "TRASH": true, "SPAM": true,
	"STARRED": true, "IMPORTANT": true, "CATEGORY_PERSONAL": true,
	"CATEGORY_SOCIAL": true, "CATEGORY_PROMOTIONS": true,
	"CATEGORY_UPDATES": true, "CATEGORY_FORUMS": true,
}

// mailboxLabels implements GET /mailboxes/{id}/labels: classified
// into system vs user labels. Internal provider labels (type neither
// "system" nor a user label) are hidden.
func (s *Server) mailboxLabels(c *gin.Context) {
	uid := userID(c)
	mb, err := s.ownedMailbox(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	creds, err := s.credsForOnDemandCall(c.Request.Context(), mb)
	if err != nil {
		fail(c, err)
		return
	}
	labels, err := s.provider.ListLabels(c.Request.Context(), creds)
	if err != nil {
		fail(c, err)
		return
	}
	var sys, user []gin.H
	for _, l := range labels {
		view := gin.H{"id": l.ID, "name": l.Name}
		if systemLabels[l.ID] {
			sys = append(sys, view)
		} else if l.Type == "user" {
			user = append(user, view)
		}
	}
	c.JSON(http.StatusOK, gin.H{"system": sys, "user": user})
}

func (s *Server) deleteMailbox(c *gin.Context) {
	uid := userID(c)
	if err := s.mailboxes.SoftDelete(uid, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
