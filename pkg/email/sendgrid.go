package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tanpawarit/crmpilot/pkg/httpx"
)

const sendgridBaseURL = "https://api.sendgrid.com/v3"

type sendgridSender struct {
	api  *httpx.Client
	from string
}

func newSendGridSender(cfg Config) (*sendgridSender, error) {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		return nil, fmt.Errorf("%w: sendgrid api key is required", ErrConfiguration)
	}
	baseURL := strings.TrimSpace(cfg.SendGridBaseURL)
	if baseURL == "" {
		baseURL = sendgridBaseURL
	}
	api, err := httpx.NewClient(baseURL, cfg.SendGridAPIKey, httpx.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &sendgridSender{api: api, from: strings.TrimSpace(cfg.FromEmail)}, nil
}

func (s *sendgridSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	// SendGrid rejects content entries with an empty value, so the
	// text/plain part is only included when a text body was supplied.
	content := []map[string]string{}
	if msg.Text != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.Text})
	}
	content = append(content, map[string]string{"type": "text/html", "value": msg.HTML})

	body := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": s.from},
		"subject": msg.Subject,
		"content": content,
	}

	// SendGrid answers 202 with an empty body on success.
	if _, err := s.api.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Path:   "/mail/send",
		Body:   body,
	}); err != nil {
		return nil, fmt.Errorf("%w: sendgrid: %v", ErrProvider, err)
	}

	return &Receipt{Provider: ProviderSendGrid, Status: "queued"}, nil
}
