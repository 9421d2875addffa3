// Package mailer sends transactional email through SendGrid.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/farmlink-backend/pkg/config"
)

var (
	errAPIKeyRequired = errors.New("sendgrid api key is required")
	errFromRequired   = errors.New("sendgrid from address is required")
)

// Message is a single plain/html email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

type sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGrid delivers messages from the configured sender identity.
type SendGrid struct {
	client sender
	from   *mail.Email
}

// NewSendGrid builds a mailer from config.
func NewSendGrid(cfg config.SendgridConfig) (*SendGrid, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errFromRequired
	}
	return &SendGrid{
		client: sendgrid.NewSendClient(key),
		from:   mail.NewEmail(cfg.FromName, from),
	}, nil
}

// Send delivers msg. Any non-2xx response is an error.
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.ToEmail) == "" {
		return errors.New("recipient email is required")
	}
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	html := msg.HTML
	if html == "" {
		html = "<p>" + msg.Text + "</p>"
	}
	resp, err := s.client.SendWithContext(ctx, mail.NewSingleEmail(s.from, msg.Subject, to, msg.Text, html))
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}
