package services

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

// LogMailer writes mail to the application log instead of delivering it (dev and test).
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendMail(ctx context.Context, mail signing.Mail) error {
	m.logger.Info("mail",
		slog.String("to", strings.Join(mail.To, ",")),
		slog.String("from", mail.From),
		slog.String("subject", mail.Subject),
		slog.String("body", mail.Text),
	)
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer delivers mail with net/smtp. PLAIN auth is used when a username is configured.
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendMail(ctx context.Context, mail signing.Mail) error {
	if len(mail.To) == 0 {
		return fmt.Errorf("mail has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, mail.From, mail.To, buildMessage(mail)); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}
	return nil
}

// buildMessage renders a multipart/alternative message with a text and an HTML part.
func buildMessage(mail signing.Mail) []byte {
	boundary := "esign-" + uuid.NewString()

	var b strings.Builder
	b.WriteString("From: " + mail.From + "\r\n")
	b.WriteString("To: " + strings.Join(mail.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", mail.Subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")

	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(mail.Text + "\r\n")

	if mail.HTML != "" {
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(mail.HTML + "\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}
