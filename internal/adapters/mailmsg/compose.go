package mailmsg

import (
	"bytes"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikey/llm-email-responder/internal/core"
)

type header struct{ name, value string }

// ReplySubject prefixes subject with "Re: " unless it already has it.
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// BuildReply renders reply as a multipart/alternative answer to original,
// threaded through In-Reply-To and References.
func BuildReply(from string, original core.Email, reply string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	to := mail.Address{Name: original.FromName, Address: original.From}
	headers := []header{
		{"From", from},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", ReplySubject(original.Subject))},
		{"Date", now.Format(time.RFC1123Z)},
		{"Message-ID", messageID(from)},
	}
	if parent := original.Header("Message-Id"); parent != "" {
		refs := strings.TrimSpace(original.Header("References") + " " + parent)
		headers = append(headers,
			header{"In-Reply-To", parent},
			header{"References", refs})
	}
	headers = append(headers,
		header{"MIME-Version", "1.0"},
		header{"Content-Type", "multipart/alternative; boundary=" + mw.Boundary()},
	)

	var out bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&out, "%s: %s\r\n", h.name, h.value)
	}
	out.WriteString("\r\n")

	if err := writePart(mw, "text/plain; charset=utf-8", reply); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=utf-8", toHTML(reply)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish reply body: %w", err)
	}
	out.Write(buf.Bytes())
	return out.Bytes(), nil
}

func writePart(mw *multipart.Writer, contentType, body string) error {
	w, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(strings.ReplaceAll(body, "\n", "\r\n"))); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return qp.Close()
}

func toHTML(text string) string {
	paragraphs := strings.Split(strings.TrimSpace(text), "\n\n")
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, p := range paragraphs {
		sb.WriteString("<p>")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		sb.WriteString("</p>")
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func messageID(from string) string {
	domain := "localhost"
	if addr, err := mail.ParseAddress(from); err == nil {
		if at := strings.LastIndex(addr.Address, "@"); at >= 0 {
			domain = addr.Address[at+1:]
		}
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
