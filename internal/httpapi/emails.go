package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mailsync/internal/apperr"
	"mailsync/internal/domain"
	"mailsync/internal/enrichment"
	"mailsync/internal/provider"
	"mailsync/internal/store"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerEmailRoutes(v1 *gin.RouterGroup) {
	e := v1.Group("/emails")
	e.GET("", s.listEmails)
	e.GET("/search/fuzzy", s.searchFuzzy)
	e.GET("/search/semantic", s.searchSemantic)
	e.GET("/search/suggestions", s.searchSuggestions)
	e.POST("/send", s.sendEmail)
	e.POST("/generate-embeddings", s.generateEmbeddingsBatch)
	e.GET("/:id", s.getEmail)
	e.PATCH("/:id", s.updateEmail)
	e.DELETE("/:id", s.deleteEmail)
	e.POST("/:id/summarize", s.summarizeEmail)
	e.POST("/:id/move-to-column", s.moveEmailToColumn)
	e.POST("/:id/generate-embedding", s.generateEmbeddingOne)
}

func queryBool(c *gin.Context, key string) *bool {
	v := c.Query(key)
	if v == "" {
		return nil
	}
	b := v == "true"
	return &b
}

// listEmails implements GET /emails: full MessageFilter query-param
// binding, paginated with self-links.
func (s *Server) listEmails(c *gin.Context) {
	uid := userID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := store.MessageFilter{
		MailboxID:     c.Query("mailboxId"),
		Search:        c.Query("search"),
		IsRead:        queryBool(c, "isRead"),
		IsStarred:     queryBool(c, "isStarred"),
		HasAttachment: queryBool(c, "hasAttachments"),
		Category:      domain.MessageCategory(c.Query("category")),
		TaskStatus:    domain.TaskStatus(c.Query("taskStatus")),
		FromEmail:     c.Query("fromEmail"),
		Label:         c.Query("label"),
		ExcludeLabel:  c.Query("excludeLabel"),
		IsSnoozed:     queryBool(c, "isSnoozed"),
		SortBy:        c.Query("sortBy"),
		SortOrder:     c.Query("sortOrder"),
		Page:          page,
		Limit:         limit,
	}

	messages, total, err := s.messages.List(uid, filter)
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]emailSummary, 0, len(messages))
	for _, m := range messages {
		out = append(out, toEmailSummary(m))
	}
	meta := buildPageMeta(filter.Page, filter.Limit, total)
	c.JSON(http.StatusOK, gin.H{
		"data": out,
		"meta": meta,
		"links": gin.H{"self": selfLink("/v1/emails", c.Request.URL.Query(), meta.CurrentPage)},
	})
}

// getEmail implements GET /emails/{id}: detail view with attachments,
// scoped to the caller's own mailboxes. Someone else's message is
// indistinguishable from a missing one.
func (s *Server) getEmail(c *gin.Context) {
	uid := userID(c)
	msg, err := s.ownedMessage(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	attachments, err := s.attachments.ListForMessage(msg.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toEmailDetail(msg, attachments))
}

func (s *Server) ownedMessage(uid, id string) (*domain.Message, error) {
	msg, err := s.messages.FindByIDForUser(uid, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperr.New(apperr.NotFound, "message not found", nil)
	}
	return msg, nil
}

// updateEmail implements PATCH /emails/{id}. isRead/isStarred are
// label-derived: changes are pushed to the provider first,
// then locally re-derived via ApplyLabels so the two can never drift.
// taskStatus/taskDeadline/pinned/columnId are local-only fields.
// snoozedUntil uses a raw JSON pass to distinguish "omitted" (no change)
// from "explicitly null" (unsnooze), since *string can't.
func (s *Server) updateEmail(c *gin.Context) {
	uid := userID(c)
	msg, err := s.ownedMessage(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	raw := map[string]json.RawMessage{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		fail(c, apperr.New(apperr.Validation, "invalid update body", err))
		return
	}

	readChanged := false
	if rawRead, ok := raw["isRead"]; ok {
		var isRead bool
		if err := json.Unmarshal(rawRead, &isRead); err != nil {
			fail(c, apperr.New(apperr.Validation, "isRead must be a bool", err))
			return
		}
		if err := s.applyLabelToggle(c, msg, domain.LabelUnread, !isRead); err != nil {
			fail(c, err)
			return
		}
		readChanged = true
	}
	if rawStar, ok := raw["isStarred"]; ok {
		var isStarred bool
		if err := json.Unmarshal(rawStar, &isStarred); err != nil {
			fail(c, apperr.New(apperr.Validation, "isStarred must be a bool", err))
			return
		}
		if err := s.applyLabelToggle(c, msg, domain.LabelStarred, isStarred); err != nil {
			fail(c, err)
			return
		}
	}

	if rawPinned, ok := raw["pinned"]; ok {
		var pinned bool
		if err := json.Unmarshal(rawPinned, &pinned); err == nil {
			msg.Pinned = pinned
		}
	}
	if rawStatus, ok := raw["taskStatus"]; ok {
		var status string
		if err := json.Unmarshal(rawStatus, &status); err == nil {
			msg.TaskStatus = domain.TaskStatus(status)
		}
	}
	if rawDeadline, ok := raw["taskDeadline"]; ok {
		if string(rawDeadline) == "null" {
			msg.TaskDeadline = nil
		} else {
			var str string
			if err := json.Unmarshal(rawDeadline, &str); err == nil {
				if t, err := time.Parse(timeLayout, str); err == nil {
					msg.TaskDeadline = &t
				}
			}
		}
	}
	if rawSnooze, ok := raw["snoozedUntil"]; ok {
		if string(rawSnooze) == "null" {
			msg.SnoozedUntil = nil
			msg.IsSnoozed = false
		} else {
			var str string
			if err := json.Unmarshal(rawSnooze, &str); err == nil {
				if t, err := time.Parse(timeLayout, str); err == nil {
					msg.SnoozedUntil = &t
					msg.IsSnoozed = t.After(time.Now())
				}
			}
		}
	}

	if err := s.messages.Update(msg); err != nil {
		fail(c, err)
		return
	}
	if readChanged {
		if err := s.messages.RecomputeCounters(msg.MailboxID); err != nil {
			fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, toEmailSummary(msg))
}

// applyLabelToggle commits a single label add/remove to the provider
// before mutating local state, the same provider-then-store ordering the
// Move Coordinator uses so a provider failure never leaves local state
// out of sync.
func (s *Server) applyLabelToggle(c *gin.Context, msg *domain.Message, label string, present bool) error {
	mb, err := s.mailboxes.FindByIDUnscoped(msg.MailboxID)
	if err != nil {
		return err
	}
	if mb == nil {
		return apperr.New(apperr.NotFound, "mailbox not found", nil)
	}
	creds, err := s.credsForOnDemandCall(c.Request.Context(), mb)
	if err != nil {
		return err
	}
	var add, remove []string
	if present {
		add = []string{label}
	} else {
		remove = []string{label}
	}
	if err := s.provider.ModifyMessageLabels(c.Request.Context(), creds, msg.ProviderMessageID, add, remove); err != nil {
		return err
	}
	msg.ApplyLabels(msg.Labels.Without(domain.StringSlice(remove)).Plus(domain.StringSlice(add)))
	return nil
}

func (s *Server) deleteEmail(c *gin.Context) {
	uid := userID(c)
	msg, err := s.ownedMessage(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if err := s.messages.SoftDelete(msg.ID); err != nil {
		fail(c, err)
		return
	}
	if err := s.messages.RecomputeCounters(msg.MailboxID); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type sendRequest struct {
	MailboxID string   `json:"mailboxId" binding:"required"`
	To        []string `json:"to" binding:"required"`
	Cc        []string `json:"cc"`
	Bcc       []string `json:"bcc"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	BodyHTML  string   `json:"bodyHtml"`
	InReplyTo string   `json:"inReplyTo"`
	ThreadID  string   `json:"threadId"`
}

// sendEmail implements POST /emails/send.
func (s *Server) sendEmail(c *gin.Context) {
	uid := userID(c)
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.New(apperr.Validation, "invalid send request", err))
		return
	}
	mb, err := s.ownedMailbox(uid, req.MailboxID)
	if err != nil {
		fail(c, err)
		return
	}
	creds, err := s.credsForOnDemandCall(c.Request.Context(), mb)
	if err != nil {
		fail(c, err)
		return
	}
	draft := provider.Draft{
		To: req.To, Cc: req.Cc, Bcc: req.Bcc,
		Subject: req.Subject, Body: req.Body, BodyHTML: req.BodyHTML,
		InReplyTo: req.InReplyTo, ThreadID: req.ThreadID,
	}
	messageID, err := s.provider.SendEmail(c.Request.Context(), creds, draft)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"messageId": messageID})
}

// summarizeEmail implements POST /emails/{id}/summarize: on-demand AI
// summary, with failures surfaced to the caller rather than retried.
func (s *Server) summarizeEmail(c *gin.Context) {
	uid := userID(c)
	msg, err := s.ownedMessage(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if s.ai == nil {
		fail(c, apperr.New(apperr.AiFailure, "no ai provider configured", nil))
		return
	}
	summary, err := s.ai.Summarize(c.Request.Context(), enrichment.Projection(msg))
	if err != nil {
		fail(c, apperr.New(apperr.AiFailure, "summarize failed", err))
		return
	}
	msg.AISummary = summary
	if err := s.messages.Update(msg); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emailId": msg.ID, "summary": summary, "saved": true})
}

type moveRequest struct {
	ColumnID         string `json:"columnId" binding:"required"`
	ArchiveFromInbox bool   `json:"archiveFromInbox"`
}

// moveEmailToColumn implements POST /emails/{id}/move-to-column,
// delegating to the Move Coordinator.
func (s *Server) moveEmailToColumn(c *gin.Context) {
	uid := userID(c)
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperr.New(apperr.Validation, "invalid move request", err))
		return
	}
	msg, err := s.mover.MoveMessageToColumn(c.Request.Context(), uid, c.Param("id"), req.ColumnID, req.ArchiveFromInbox)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toEmailSummary(msg))
}

// generateEmbeddingOne implements POST /emails/{id}/generate-embedding
// on demand for a single message, reusing the enrichment worker's
// projection so cosine-similarity search stays consistent
// regardless of which path produced a message's embedding.
func (s *Server) generateEmbeddingOne(c *gin.Context) {
	uid := userID(c)
	msg, err := s.ownedMessage(uid, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if s.ai == nil {
		fail(c, apperr.New(apperr.AiFailure, "no ai provider configured", nil))
		return
	}
	if err := enrichment.EmbedAndSave(c.Request.Context(), s.messages, s.ai, msg); err != nil {
		fail(c, apperr.New(apperr.AiFailure, "embedding failed", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// generateEmbeddingsBatch implements POST /emails/generate-embeddings
// for every mailbox the caller owns, rather than waiting for the
// periodic worker tick.
func (s *Server) generateEmbeddingsBatch(c *gin.Context) {
	uid := userID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(50)))
	if limit <= 0 {
		limit = 50
	}
	if s.ai == nil {
		fail(c, apperr.New(apperr.AiFailure, "no ai provider configured", nil))
		return
	}
	mailboxes, err := s.mailboxes.ListByUser(uid)
	if err != nil {
		fail(c, err)
		return
	}
	embedded := 0
	for _, mb := range mailboxes {
		messages, err := s.messages.WithoutEmbedding(mb.ID, limit)
		if err != nil {
			fail(c, err)
			return
		}
		for _, msg := range messages {
			if err := enrichment.EmbedAndSave(c.Request.Context(), s.messages, s.ai, msg); err == nil {
				embedded++
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{"embedded": embedded})
}
