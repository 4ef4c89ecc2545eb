package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/itskum47/mailforge/internal/collaborators/mailtransport"
	"github.com/itskum47/mailforge/internal/task"
)

// SendEmailHandler implements spec §4.5's send_email: render and transmit
// via the Outbound Mail Transport collaborator, assigning a fresh
// Message-ID header so retries don't reuse one already seen by a relay.
type SendEmailHandler struct {
	Transport mailtransport.Transport
	Log       *zap.Logger
}

func (h *SendEmailHandler) Handle(ctx context.Context, t *task.Task, progress ProgressFunc) error {
	var p task.SendEmailPayload
	if err := task.DecodeAndValidate(t.Payload, &p); err != nil {
		return err
	}
	progress(10)

	headers := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		headers[k] = v
	}
	headers["Message-ID"] = fmt.Sprintf("<%s@mailforge>", uuid.NewString())

	msg := mailtransport.Message{
		Personalizations: []mailtransport.Personalization{{To: p.To, CC: p.CC, BCC: p.BCC}},
		From:             mailtransport.From{Email: p.From},
		Subject:          p.Subject,
		Headers:          headers,
	}
	if p.TextContent != "" {
		msg.Content = append(msg.Content, mailtransport.Content{Type: "text/plain", Value: p.TextContent})
	}
	if p.HTMLContent != "" {
		msg.Content = append(msg.Content, mailtransport.Content{Type: "text/html", Value: p.HTMLContent})
	}
	progress(40)

	if err := h.Transport.Send(ctx, msg); err != nil {
		return task.NewTransientError(fmt.Errorf("sending message: %w", err))
	}
	progress(100)
	return nil
}
