// Package mailmsg converts between RFC 5322 messages and core.Email.
package mailmsg

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"github.com/mikey/llm-email-responder/internal/core"
)

// maxDepth bounds multipart nesting.
const maxDepth = 8

var (
	headerDecoder = &mime.WordDecoder{}
	htmlTags      = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Parse reads a raw message. The returned Email has no ID; callers assign
// the provider's identifier.
func Parse(raw []byte) (core.Email, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return core.Email{}, fmt.Errorf("failed to parse message: %w", err)
	}

	email := core.Email{
		Subject: DecodeHeader(msg.Header.Get("Subject")),
		Headers: make(map[string][]string, len(msg.Header)),
	}
	for key, values := range msg.Header {
		email.Headers[key] = values
	}

	if from, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		email.From = from.Address
		email.FromName = from.Name
	} else {
		email.From = strings.TrimSpace(msg.Header.Get("From"))
	}
	if to, err := msg.Header.AddressList("To"); err == nil {
		for _, a := range to {
			email.To = append(email.To, a.Address)
		}
	}
	if date, err := msg.Header.Date(); err == nil {
		email.ReceivedAt = date
	}

	body, err := ExtractText(textproto.MIMEHeader(msg.Header), msg.Body)
	if err != nil {
		return core.Email{}, err
	}
	email.Body = body
	return email, nil
}

// DecodeHeader decodes RFC 2047 encoded words, returning the input unchanged
// when it is not encoded.
func DecodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// ExtractText returns the readable text of a message body. text/plain parts
// are preferred; HTML is stripped of markup only when no plain part exists.
func ExtractText(header textproto.MIMEHeader, body io.Reader) (string, error) {
	plain, html, err := walk(header, body, 0)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(plain) != "" {
		return strings.TrimSpace(plain), nil
	}
	return strings.TrimSpace(stripHTML(html)), nil
}

func walk(header textproto.MIMEHeader, body io.Reader, depth int) (plain, html string, err error) {
	mediaType, params, perr := mime.ParseMediaType(header.Get("Content-Type"))
	if perr != nil || mediaType == "" {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxDepth {
			return "", "", nil
		}
		var plainParts, htmlParts []string
		mr := multipart.NewReader(body, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				// Keep whatever was readable before the damage.
				break
			}
			if isAttachment(part.Header) {
				continue
			}
			p, h, err := walk(part.Header, part, depth+1)
			if err != nil {
				return "", "", err
			}
			if p != "" {
				plainParts = append(plainParts, p)
			}
			if h != "" {
				htmlParts = append(htmlParts, h)
			}
			// multipart/alternative carries one rendition per part.
			if mediaType == "multipart/alternative" && len(plainParts) > 0 {
				break
			}
		}
		return strings.Join(plainParts, "\n"), strings.Join(htmlParts, "\n"), nil
	}

	if mediaType != "text/plain" && mediaType != "text/html" {
		return "", "", nil
	}
	data, err := io.ReadAll(decodeTransfer(header.Get("Content-Transfer-Encoding"), body))
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s part: %w", mediaType, err)
	}
	text := strings.ToValidUTF8(strings.ReplaceAll(string(data), "\r\n", "\n"), "")
	if mediaType == "text/html" {
		return "", text, nil
	}
	return text, "", nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	default:
		return r
	}
}

func isAttachment(h textproto.MIMEHeader) bool {
	disp, _, err := mime.ParseMediaType(h.Get("Content-Disposition"))
	return err == nil && disp == "attachment"
}

func stripHTML(html string) string {
	if html == "" {
		return ""
	}
	text := strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n\n").Replace(html)
	text = htmlTags.ReplaceAllString(text, "")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'").Replace(text)
	return blankRuns.ReplaceAllString(text, "\n\n")
}
