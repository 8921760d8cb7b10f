package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConfiguration marks a backend that cannot be constructed from the
	// supplied configuration. Detected at startup, never mid-send.
	ErrConfiguration = errors.New("email configuration invalid")

	// ErrProvider marks a send failure reported by the selected backend.
	ErrProvider = errors.New("email provider failure")
)

const (
	ProviderSendGrid = "sendgrid"
	ProviderResend   = "resend"
	ProviderSMTP     = "smtp"
)

type Config struct {
	Provider         string        `split_words:"true" default:"sendgrid"`
	FromEmail        string        `split_words:"true" required:"true"`
	DefaultRecipient string        `split_words:"true"`
	DefaultSubject   string        `split_words:"true" default:"CRM Action Confirmation"`
	SendGridAPIKey   string        `envconfig:"SENDGRID_API_KEY"`
	SendGridBaseURL  string        `envconfig:"SENDGRID_BASE_URL"`
	ResendAPIKey     string        `envconfig:"RESEND_API_KEY"`
	ResendBaseURL    string        `envconfig:"RESEND_BASE_URL"`
	SMTPHost         string        `envconfig:"SMTP_HOST"`
	SMTPPort         int           `envconfig:"SMTP_PORT" default:"587"`
	SMTPUsername     string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string        `envconfig:"SMTP_PASSWORD"`
	Timeout          time.Duration `split_words:"true" default:"30s"`
}

type Message struct {
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

type Receipt struct {
	Provider string `json:"provider"`
	Status   string `json:"status"`
}

// Sender is the shared capability contract all backends expose. The
// backend is selected once at startup and never switched per call.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// Service wraps the configured backend and applies recipient and subject
// fallbacks before dispatch. Sending is best effort: a failure here never
// rolls back CRM mutations already committed by the caller.
type Service struct {
	backend          Sender
	defaultRecipient string
	defaultSubject   string
}

func New(cfg Config) (*Service, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		backend:          backend,
		defaultRecipient: strings.TrimSpace(cfg.DefaultRecipient),
		defaultSubject:   strings.TrimSpace(cfg.DefaultSubject),
	}, nil
}

func newBackend(cfg Config) (Sender, error) {
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("%w: from address is required", ErrConfiguration)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderSendGrid:
		return newSendGridSender(cfg)
	case ProviderResend:
		return newResendSender(cfg)
	case ProviderSMTP:
		return newSMTPSender(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported provider %q", ErrConfiguration, cfg.Provider)
	}
}

func (s *Service) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if strings.TrimSpace(msg.To) == "" {
		msg.To = s.defaultRecipient
	}
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("%w: no recipient provided and no default configured", ErrConfiguration)
	}
	if strings.TrimSpace(msg.Subject) == "" {
		msg.Subject = s.defaultSubject
	}
	if strings.TrimSpace(msg.HTML) == "" {
		return nil, fmt.Errorf("%w: message body is empty", ErrConfiguration)
	}

	return s.backend.Send(ctx, msg)
}
