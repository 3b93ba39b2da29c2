// Package notifications delivers withdrawal lifecycle emails.
package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/optionpay/payout-service/internal/pkg/util"
)

// EmailSenderConfig holds email delivery configuration.
type EmailSenderConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// EmailSender sends transactional email through SendGrid.
type EmailSender struct {
	logger *zap.Logger
	config EmailSenderConfig
	client *sendgrid.Client
}

// NewEmailSender creates a new SendGrid-backed sender.
func NewEmailSender(logger *zap.Logger, config EmailSenderConfig) (*EmailSender, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(config.FromEmail) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	return &EmailSender{
		logger: logger,
		config: config,
		client: sendgrid.NewSendClient(config.APIKey),
	}, nil
}

// Send delivers a single email.
func (e *EmailSender) Send(ctx context.Context, to, subject, htmlContent, textContent string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, textContent, htmlContent)

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("to", util.MaskRecipient(to)),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("to", util.MaskRecipient(to)),
			zap.String("subject", subject),
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", response.Body))
		return fmt.Errorf("email service error: status %d", response.StatusCode)
	}

	e.logger.Info("Email sent",
		zap.String("to", util.MaskRecipient(to)),
		zap.String("subject", subject),
		zap.Int("status_code", response.StatusCode))
	return nil
}

func renderEmail(heading, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#f5f5f7;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f5f5f7;padding:40px 20px;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:16px;overflow:hidden;">
<tr><td style="padding:40px 40px 0 40px;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:28px;font-weight:700;color:#1d1d1f;margin:0;">OptionPay</p>
</td></tr>
<tr><td style="padding:32px 40px;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:22px;font-weight:600;color:#1d1d1f;margin:0 0 16px 0;">%s</p>
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:15px;color:#1d1d1f;margin:0;line-height:1.5;">%s</p>
</td></tr>
<tr><td style="padding:0 40px 40px 40px;border-top:1px solid #f5f5f7;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:12px;color:#86868b;margin:20px 0 0 0;line-height:1.5;">OptionPay — withdrawals, settled.</p>
</td></tr>
</table>
</td></tr></table>
</body></html>`, html.EscapeString(heading), html.EscapeString(body))
}
