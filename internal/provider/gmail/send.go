package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"mailsync/internal/apperr"
	"mailsync/internal/provider"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// maxSendBytes caps an outbound MIME message at 25 MiB.
const maxSendBytes = 25 * 1024 * 1024

// SendEmail composes an RFC 2047/2822-style MIME message (multipart/
// alternative when an HTML body is present) and sends it via
// Users.Messages.Send, threading via In-Reply-To/References when a
// reply context is supplied. Inline-image data-URI rewriting is a
// UI-composer concern and is not handled here.
func (a *Adapter) SendEmail(ctx context.Context, creds provider.Credentials, draft provider.Draft) (string, error) {
	srv, err := a.service(ctx, creds)
	if err != nil {
		return "", err
	}

	raw := composeMIME(draft)
	if len(raw) > maxSendBytes {
		return "", apperr.New(apperr.Validation, "send email", fmt.Errorf("message exceeds %d bytes", maxSendBytes))
	}

	msg := &gmailv1.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if draft.ThreadID != "" {
		msg.ThreadId = draft.ThreadID
	}
	sent, err := srv.Users.Messages.Send(user, msg).Context(ctx).Do()
	if err != nil {
		return "", classifyError("send email", err)
	}
	return sent.Id, nil
}

func composeMIME(draft provider.Draft) []byte {
	const boundary = "mailsync_alt_boundary"
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(draft.To, ", ")))
	if len(draft.Cc) > 0 {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(draft.Cc, ", ")))
	}
	if len(draft.Bcc) > 0 {
		buf.WriteString(fmt.Sprintf("Bcc: %s\r\n", strings.Join(draft.Bcc, ", ")))
	}
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", encodeHeader(draft.Subject)))
	if draft.InReplyTo != "" {
		buf.WriteString(fmt.Sprintf("In-Reply-To: %s\r\n", draft.InReplyTo))
		buf.WriteString(fmt.Sprintf("References: %s\r\n", draft.InReplyTo))
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	if draft.BodyHTML != "" {
		buf.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary))
		writeBase64Part(&buf, boundary, "text/plain; charset=\"UTF-8\"", draft.Body)
		writeBase64Part(&buf, boundary, "text/html; charset=\"UTF-8\"", draft.BodyHTML)
		buf.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		writeBase64Body(&buf, draft.Body)
	}

	return buf.Bytes()
}

func writeBase64Part(buf *bytes.Buffer, boundary, contentType, body string) {
	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString(fmt.Sprintf("Content-Type: %s\r\n", contentType))
	buf.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	writeBase64Body(buf, body)
}

func writeBase64Body(buf *bytes.Buffer, body string) {
	encoded := base64.StdEncoding.EncodeToString([]byte(body))
	for i := 0; i < len(encoded); i += 76 {
		end := i + 76
		if end > len(encoded) {
			end = len(encoded)
		}
		buf.WriteString(encoded[i:end] + "\r\n")
	}
}

// encodeHeader applies RFC 2047 B-encoding when the input is non-ASCII.
func encodeHeader(s string) string {
	for _, r := range s {
		if r > 127 {
			return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(s)) + "?="
		}
	}
	return s
}
