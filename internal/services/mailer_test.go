package services

import (
	"bytes"
	"context"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"

	"github.com/information-sharing-networks/esign-demo/internal/signing"
)

func TestSMTPMailer(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 2525})
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		if a != nil {
			t.Error("expected no auth without a username")
		}
		return nil
	}

	err := m.SendMail(context.Background(), signing.Mail{
		To:      []string{"alice@example.com"},
		From:    "no-reply@example.com",
		Subject: "Please sign: Lease",
		Text:    "sign here",
		HTML:    "<p>sign here</p>",
	})
	if err != nil {
		t.Fatalf("SendMail() error: %v", err)
	}

	if gotAddr != "smtp.example.com:2525" {
		t.Errorf("addr = %s", gotAddr)
	}
	if len(gotTo) != 1 || gotTo[0] != "alice@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	for _, want := range []string{"Subject: Please sign: Lease", "text/plain", "text/html", "<p>sign here</p>"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message does not contain %q", want)
		}
	}
}

func TestSMTPMailerNoRecipients(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 25})
	if err := m.SendMail(context.Background(), signing.Mail{}); err == nil {
		t.Error("expected an error for mail without recipients")
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	if err := m.SendMail(context.Background(), signing.Mail{To: []string{"bob@example.com"}, Subject: "Completed"}); err != nil {
		t.Fatalf("SendMail() error: %v", err)
	}
	if !strings.Contains(buf.String(), "bob@example.com") {
		t.Errorf("log output does not contain the recipient: %s", buf.String())
	}
}
