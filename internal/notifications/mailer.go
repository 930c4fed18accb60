// Package notifications renders and delivers registration emails.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Attachment is a file sent along with a message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is one outbound email.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Mailer delivers messages and returns the provider's message id.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// ResendMailer sends through the Resend API, retrying transient failures.
type ResendMailer struct {
	client   *resend.Client
	from     string
	attempts uint
	delay    time.Duration
	logger   *zap.Logger
}

// NewResendMailer creates a mailer. from is a full "Name <address>" sender.
func NewResendMailer(apiKey, from string, logger *zap.Logger) *ResendMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResendMailer{
		client:   resend.NewClient(apiKey),
		from:     from,
		attempts: 3,
		delay:    500 * time.Millisecond,
		logger:   logger,
	}
}

// Send delivers msg.
func (m *ResendMailer) Send(ctx context.Context, msg Message) (string, error) {
	req := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{Filename: a.Filename, Content: a.Content})
	}
	id, err := retry.DoWithData(
		func() (string, error) {
			sent, err := m.client.Emails.SendWithContext(ctx, req)
			if err != nil {
				return "", err
			}
			return sent.Id, nil
		},
		retry.Context(ctx),
		retry.Attempts(m.attempts),
		retry.Delay(m.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("email send failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}
	return id, nil
}

// LogMailer only logs messages. It stands in when no API key is configured.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

// Send logs msg and reports success.
func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	m.logger.Info("email not sent (no provider configured)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("attachments", len(msg.Attachments)))
	return "", nil
}
