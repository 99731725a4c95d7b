package gmail

import (
	"encoding/base64"
	"mime"
	"regexp"
	"strings"
	"time"

	"mailsync/internal/provider"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// parseMessage converts a raw Gmail message into the provider-neutral
// ParsedMessage shape.
func parseMessage(msg *gmailv1.Message) provider.ParsedMessage {
	headers := msg.Payload.Headers
	fromName, fromEmail := parseSenderHeader(getHeader(headers, "From"))
	bodyHTML, bodyText := getEmailBodies(msg.Payload)
	labels := append([]string(nil), msg.LabelIds...)

	return provider.ParsedMessage{
		ProviderMessageID: msg.Id,
		ProviderThreadID:  msg.ThreadId,
		Subject:           getHeader(headers, "Subject"),
		Snippet:           msg.Snippet,
		FromEmail:         fromEmail,
		FromName:          fromName,
		ToEmails:          splitAddressList(getHeader(headers, "To")),
		CcEmails:          splitAddressList(getHeader(headers, "Cc")),
		BccEmails:         splitAddressList(getHeader(headers, "Bcc")),
		BodyHTML:          bodyHTML,
		BodyText:          bodyText,
		ReceivedAt:        time.UnixMilli(msg.InternalDate),
		IsRead:            !hasLabel(labels, "UNREAD"),
		IsStarred:         hasLabel(labels, "STARRED"),
		Labels:            labels,
		Attachments:       getAttachments(msg.Payload),
	}
}

func getHeader(headers []*gmailv1.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			dec := new(mime.WordDecoder)
			if decoded, err := dec.DecodeHeader(h.Value); err == nil {
				return decoded
			}
			return h.Value
		}
	}
	return ""
}

var senderPattern = regexp.MustCompile(`^\s*"?([^"<]*?)"?\s*<([^>]+)>\s*$`)

// parseSenderHeader parses `"Name" <addr>` or `Name <addr>` into (name,
// email); unparseable input keeps the raw value as the email.
func parseSenderHeader(raw string) (name, email string) {
	raw = strings.TrimSpace(raw)
	if m := senderPattern.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return "", raw
}

func splitAddressList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		_, email := parseSenderHeader(p)
		if email = strings.TrimSpace(email); email != "" {
			out = append(out, email)
		}
	}
	return out
}

func getEmailBodies(payload *gmailv1.MessagePart) (html, text string) {
	if payload.Body != nil && payload.Body.Data != "" {
		data, err := decodeBase64URL(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return string(data), ""
			}
			return "", string(data)
		}
	}
	var walk func(parts []*gmailv1.MessagePart)
	walk = func(parts []*gmailv1.MessagePart) {
		for _, part := range parts {
			switch part.MimeType {
			case "text/html":
				if part.Body != nil && part.Body.Data != "" {
					if data, err := decodeBase64URL(part.Body.Data); err == nil {
						html = string(data)
					}
				}
			case "text/plain":
				if part.Body != nil && part.Body.Data != "" {
					if data, err := decodeBase64URL(part.Body.Data); err == nil {
						text = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)
	return html, text
}

func getAttachments(payload *gmailv1.MessagePart) []provider.ParsedAttachment {
	var attachments []provider.ParsedAttachment
	var walk func(parts []*gmailv1.MessagePart)
	walk = func(parts []*gmailv1.MessagePart) {
		for _, part := range parts {
			if part.Body == nil || part.Body.AttachmentId == "" {
				if len(part.Parts) > 0 {
					walk(part.Parts)
				}
				continue
			}
			contentID := strings.Trim(getHeader(part.Headers, "Content-ID"), "<>")
			inline := contentID != ""
			filename := part.Filename
			if filename == "" && inline {
				filename = "inline"
			}
			if filename != "" {
				attachments = append(attachments, provider.ParsedAttachment{
					ProviderAttachID: part.Body.AttachmentId,
					Filename:         filename,
					MimeType:         part.MimeType,
					Size:             part.Body.Size,
					ContentID:        contentID,
					Inline:           inline,
				})
			}
			if len(part.Parts) > 0 {
				walk(part.Parts)
			}
		}
	}
	walk(payload.Parts)
	return attachments
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}

func decodeBase64URL(s string) ([]byte, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return base64.RawURLEncoding.DecodeString(s)
	}
	return data, nil
}
