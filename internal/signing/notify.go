package signing

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/information-sharing-networks/esign-demo/internal/logger"
)

// SigningURL returns the link a recipient opens to view and sign the envelope.
func (s *Service) SigningURL(r Recipient) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/api/v1/sign/" + r.Token
}

func (s *Service) newMail(to []string, subject, body string) Mail {
	return Mail{
		To:      to,
		From:    s.cfg.MailFrom,
		Subject: subject,
		Text:    body,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>",
	}
}

func (s *Service) inviteMail(env Envelope, r Recipient) Mail {
	action := "sign"
	switch r.Role {
	case RoleApprover:
		action = "approve"
	case RoleViewer:
		action = "view"
	case RoleAssistant:
		action = "complete"
	}
	subject := fmt.Sprintf("Please %s: %s", action, env.Title)
	body := fmt.Sprintf("Hello %s,\n\nYou have been asked to %s %q.\n\n%s", displayName(r), action, env.Title, s.SigningURL(r))
	return s.newMail([]string{r.Email}, subject, body)
}

// completionMails notifies the owner, every recipient who took part in signing and CC recipients.
func (s *Service) completionMails(env Envelope, owner User, recipients []Recipient) []Mail {
	seen := map[string]bool{}
	var to []string
	add := func(email string) {
		if email == "" || seen[strings.ToLower(email)] {
			return
		}
		seen[strings.ToLower(email)] = true
		to = append(to, email)
	}
	add(owner.Email)
	for _, r := range recipients {
		if r.Role != RoleViewer {
			add(r.Email)
		}
	}

	mails := make([]Mail, 0, len(to))
	for _, addr := range to {
		body := fmt.Sprintf("All recipients have signed %q. The completed document is available from the sender.", env.Title)
		mails = append(mails, s.newMail([]string{addr}, "Completed: "+env.Title, body))
	}
	return mails
}

func (s *Service) rejectionMail(env Envelope, owner User, r Recipient, reason string) Mail {
	body := fmt.Sprintf("%s (%s) rejected %q.\n\nReason: %s", displayName(r), r.Email, env.Title, reason)
	return s.newMail([]string{owner.Email}, "Rejected: "+env.Title, body)
}

func displayName(r Recipient) string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}

// deliver sends mail after the transaction has committed. Failures are logged and otherwise ignored.
func (s *Service) deliver(ctx context.Context, mails []Mail) {
	for _, m := range mails {
		if err := s.mailer.SendMail(ctx, m); err != nil {
			logger.ContextRequestLogger(ctx).Error("failed to send notification",
				slog.String("subject", m.Subject),
				slog.Int("recipients", len(m.To)),
				slog.String("error", err.Error()),
			)
		}
	}
}
