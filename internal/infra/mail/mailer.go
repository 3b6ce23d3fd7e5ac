package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/annamusic/anna-api/internal/core/port"
	"github.com/annamusic/anna-api/internal/infra/config"
	"github.com/annamusic/anna-api/internal/infra/logger"
)

// SMTPMailer delivers account mail over SMTP.
type SMTPMailer struct {
	client *gomail.Client
	from   string
	logger *zap.Logger
}

// NewSMTPMailer constructs an SMTP-backed mailer from config.
func NewSMTPMailer(cfg config.SMTPSettings, log *zap.Logger) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPMailer{client: client, from: cfg.From, logger: log}, nil
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Info("mail sent",
		zap.String("recipient", logger.MaskEmail(to)),
		zap.String("subject", subject),
	)
	return nil
}

// SendVerificationCode mails the one-time e-mail verification code.
func (m *SMTPMailer) SendVerificationCode(ctx context.Context, name, email, code string, expiresAt time.Time) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nYour verification code is %s.\n\nIt expires at %s. If you did not create an account, ignore this message.\n",
		name, code, expiresAt.UTC().Format(time.RFC1123),
	)
	return m.send(ctx, email, "Verify your e-mail address", body)
}

// SendPasswordReset mails the single-use password reset link.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, name, email, resetLink string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nA password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nIf you did not request this, ignore this message.\n",
		name, resetLink,
	)
	return m.send(ctx, email, "Reset your password", body)
}

var _ port.Mailer = (*SMTPMailer)(nil)

// LoggingMailer records deliveries at Info level without sending anything.
// Used when no SMTP host is configured. Plaintext codes are never logged.
type LoggingMailer struct {
	logger *zap.Logger
}

// NewLoggingMailer constructs a development-friendly mailer.
func NewLoggingMailer(log *zap.Logger) *LoggingMailer {
	return &LoggingMailer{logger: log}
}

// SendVerificationCode logs that a verification code would have been mailed.
func (m *LoggingMailer) SendVerificationCode(_ context.Context, _, email, _ string, expiresAt time.Time) error {
	m.logger.Info("verification code issued (mail disabled)",
		zap.String("recipient", logger.MaskEmail(email)),
		zap.Time("expires_at", expiresAt),
	)
	return nil
}

// SendPasswordReset logs that a reset link would have been mailed.
func (m *LoggingMailer) SendPasswordReset(_ context.Context, _, email, _ string) error {
	m.logger.Info("password reset link issued (mail disabled)",
		zap.String("recipient", logger.MaskEmail(email)),
	)
	return nil
}

var _ port.Mailer = (*LoggingMailer)(nil)
