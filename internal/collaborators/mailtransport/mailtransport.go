// Package mailtransport declares the Outbound Mail Transport
// external-collaborator interface (spec §6) and a net/smtp adapter. No
// third-party mail SDK appears anywhere in the retrieved pack, so the
// standard library is the correct, unforced choice here (see DESIGN.md).
package mailtransport

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"golang.org/x/time/rate"
)

// Personalization addresses one recipient set of a message.
type Personalization struct {
	To         []string
	CC         []string
	BCC        []string
	DKIMDomain string
}

// Content is one body part (e.g. "text/plain" or "text/html").
type Content struct {
	Type  string
	Value string
}

// From identifies the sender.
type From struct {
	Email string
	Name  string
}

// Message is the normative shape from spec §6.
type Message struct {
	Personalizations []Personalization
	From             From
	Subject          string
	Content          []Content
	Headers          map[string]string
}

// Transport is the capability interface spec §6 names.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPTransport sends via a single upstream relay using net/smtp and
// PLAIN auth, mirroring the minimal shape typical production systems of
// this size reach for before adopting a dedicated transactional-mail API.
type SMTPTransport struct {
	addr    string
	auth    smtp.Auth
	from    string
	limiter *rate.Limiter
}

// smtpSendRate and smtpSendBurst cap outbound send volume against a single
// relay, the way control_plane/scheduler/limiter.go's TokenBucketLimiter
// caps outbound calls per key — here there is only ever one key, the relay
// itself, so a single shared *rate.Limiter stands in for that map.
const (
	smtpSendRate  = 20 // messages/sec
	smtpSendBurst = 40
)

// NewSMTPTransport builds a Transport against addr (host:port). auth may be
// nil for a relay that does not require authentication.
func NewSMTPTransport(addr, username, password, host string) *SMTPTransport {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPTransport{addr: addr, auth: auth, limiter: rate.NewLimiter(smtpSendRate, smtpSendBurst)}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mailtransport: rate limit wait: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", formatFrom(msg.From))

	var allRecipients []string
	for _, p := range msg.Personalizations {
		if len(p.To) > 0 {
			fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(p.To, ", "))
		}
		if len(p.CC) > 0 {
			fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(p.CC, ", "))
		}
		allRecipients = append(allRecipients, p.To...)
		allRecipients = append(allRecipients, p.CC...)
		allRecipients = append(allRecipients, p.BCC...)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	for k, v := range msg.Headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}
	buf.WriteString("MIME-Version: 1.0\r\n")

	body := pickBody(msg.Content)
	fmt.Fprintf(&buf, "Content-Type: %s; charset=UTF-8\r\n\r\n", body.Type)
	buf.WriteString(body.Value)

	if len(allRecipients) == 0 {
		return fmt.Errorf("mailtransport: message has no recipients")
	}

	return smtp.SendMail(t.addr, t.auth, msg.From.Email, allRecipients, buf.Bytes())
}

func formatFrom(f From) string {
	if f.Name == "" {
		return f.Email
	}
	return fmt.Sprintf("%s <%s>", f.Name, f.Email)
}

func pickBody(content []Content) Content {
	for _, c := range content {
		if c.Type == "text/html" {
			return c
		}
	}
	if len(content) > 0 {
		return content[0]
	}
	return Content{Type: "text/plain", Value: ""}
}
