package service

import (
	"context"
	"fmt"
	"intellearn_backend/internal/config"
	"intellearn_backend/pkg/logger"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

type EmailMessage struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// ConsoleMailer writes messages to the log instead of delivering them.
type ConsoleMailer struct{}

func (ConsoleMailer) Send(ctx context.Context, msg EmailMessage) error {
	logger.Log.Info("email",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text))
	return nil
}

type SendGridMailer struct {
	client     *sendgrid.Client
	from       *sgmail.Email
	subjPrefix string
}

func NewSendGridMailer(apiKey, fromName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{
		client:     sendgrid.NewSendClient(apiKey),
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg EmailMessage) error {
	html := msg.HTML
	if html == "" {
		html = "<p>" + msg.Text + "</p>"
	}
	v3 := sgmail.NewSingleEmail(m.from, m.subjPrefix+msg.Subject, sgmail.NewEmail(msg.ToName, msg.ToEmail), msg.Text, html)

	resp, err := m.client.SendWithContext(ctx, v3)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func NewMailer(cfg *config.MailConfig) Mailer {
	if cfg.Provider == "sendgrid" && cfg.SendGridAPIKey != "" {
		return NewSendGridMailer(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail)
	}
	return ConsoleMailer{}
}
