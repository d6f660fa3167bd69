// Package email builds plain-text RFC 5322 messages.
package email

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
)

// Message is a single-recipient plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// Validate checks that both addresses parse.
func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.From); err != nil {
		return fmt.Errorf("invalid sender %q: %w", m.From, err)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	return nil
}

// Bytes renders headers and body with CRLF line endings.
func (m Message) Bytes() []byte {
	headers := map[string]string{
		"From":         m.From,
		"To":           m.To,
		"Subject":      m.Subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/plain; charset=UTF-8",
	}
	if !m.Date.IsZero() {
		headers["Date"] = m.Date.Format(time.RFC1123Z)
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, headers[k])
	}
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

// IdentityCreated is the message sent to a new identity's email address.
func IdentityCreated(from, to, identityID string, now time.Time) Message {
	return Message{
		From:    from,
		To:      to,
		Subject: "Identity Created",
		Date:    now,
		Body: fmt.Sprintf(`Hello,

Your university identity has been successfully created.

Your ID: %s

If you did not request this identity, please contact administration.

University Identity Management System
`, identityID),
	}
}
