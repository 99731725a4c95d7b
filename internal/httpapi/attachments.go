package httpapi

import (
	"net/http"
	"net/url"
	"strconv"

	"mailsync/internal/apperr"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerAttachmentRoutes(v1 *gin.RouterGroup) {
	v1.GET("/attachments/:id", s.downloadAttachment)
}

// downloadAttachment implements GET /attachments/{id}: binary
// download, ownership verified through attachment -> message -> mailbox
// -> user before the provider is ever called.
func (s *Server) downloadAttachment(c *gin.Context) {
	uid := userID(c)
	att, err := s.attachments.FindByID(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if att == nil {
		fail(c, apperr.New(apperr.NotFound, "attachment not found", nil))
		return
	}
	msg, err := s.ownedMessage(uid, att.MessageID)
	if err != nil {
		fail(c, err)
		return
	}
	mb, err := s.ownedMailbox(uid, msg.MailboxID)
	if err != nil {
		fail(c, err)
		return
	}
	creds, err := s.credsForOnDemandCall(c.Request.Context(), mb)
	if err != nil {
		fail(c, err)
		return
	}
	data, err := s.provider.GetAttachment(c.Request.Context(), creds, msg.ProviderMessageID, att.ProviderAttachID)
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(att.Filename))
	c.Header("Content-Length", strconv.FormatInt(int64(len(data)), 10))
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, att.MimeType, data)
}
