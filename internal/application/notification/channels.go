package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-otp-auth/internal/infrastructure/smtp"
)

type mailSender interface {
	Send(ctx context.Context, msg smtp.Message) error
	Check(ctx context.Context) error
}

// EmailChannel hands messages to an SMTP server.
type EmailChannel struct {
	mailer mailSender
}

func NewEmailChannel(m mailSender) *EmailChannel {
	return &EmailChannel{mailer: m}
}

func (*EmailChannel) Method() string { return MethodEmail }

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	return c.mailer.Send(ctx, smtp.Message{
		To:       msg.To,
		Subject:  msg.Subject,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
	})
}

func (c *EmailChannel) Check(ctx context.Context) error { return c.mailer.Check(ctx) }

type publisher interface {
	Publish(ctx context.Context, subject, body string, attrs map[string]string) (string, error)
	Check(ctx context.Context) error
}

// queuedEmail is the payload published for a downstream mail worker.
type queuedEmail struct {
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	TextBody  string    `json:"text_body"`
	HTMLBody  string    `json:"html_body"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QueueChannel publishes rendered messages to a topic; a subscriber does the
// actual sending, so delivery is deferred.
type QueueChannel struct {
	pub publisher
	now func() time.Time
}

func NewQueueChannel(p publisher) *QueueChannel {
	return &QueueChannel{pub: p, now: time.Now}
}

func (*QueueChannel) Method() string { return MethodQueued }

func (c *QueueChannel) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(queuedEmail{
		To:        msg.To,
		Subject:   msg.Subject,
		TextBody:  msg.TextBody,
		HTMLBody:  msg.HTMLBody,
		ExpiresAt: c.now().Add(msg.Window).UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode queued email: %w", err)
	}
	id, err := c.pub.Publish(ctx, msg.Subject, string(body), map[string]string{"event": "otp.issued"})
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "otp email queued", "email", msg.To, "message_id", id)
	return nil
}

func (c *QueueChannel) Check(ctx context.Context) error { return c.pub.Check(ctx) }

// ConsoleChannel writes the code to the process log. It exists for local
// development and as the last resort when the primary channel is down.
type ConsoleChannel struct {
	method string
}

func NewConsoleChannel() *ConsoleChannel {
	return &ConsoleChannel{method: MethodConsole}
}

func (c *ConsoleChannel) Method() string { return c.method }

func (c *ConsoleChannel) Send(ctx context.Context, msg Message) error {
	slog.WarnContext(ctx, "otp delivered to console",
		"email", msg.To,
		"code", msg.Code,
		"valid_minutes", minutes(msg.Window),
		"subject", msg.Subject,
	)
	return nil
}
