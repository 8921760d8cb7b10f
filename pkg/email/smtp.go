package email

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"
)

type smtpSender struct {
	dialer *gomail.Dialer
	from   string
}

func newSMTPSender(cfg Config) (*smtpSender, error) {
	host := strings.TrimSpace(cfg.SMTPHost)
	if host == "" {
		return nil, fmt.Errorf("%w: smtp host is required", ErrConfiguration)
	}
	port := cfg.SMTPPort
	if port <= 0 {
		port = 587
	}

	return &smtpSender{
		dialer: gomail.NewDialer(host, port, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   strings.TrimSpace(cfg.FromEmail),
	}, nil
}

func (s *smtpSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	// gomail has no context support; honor cancellation up front.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: smtp: %v", ErrProvider, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.Text != "" {
		m.SetBody("text/plain", msg.Text)
		m.AddAlternative("text/html", msg.HTML)
	} else {
		m.SetBody("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return nil, fmt.Errorf("%w: smtp: %v", ErrProvider, err)
	}

	return &Receipt{Provider: ProviderSMTP, Status: "sent"}, nil
}
