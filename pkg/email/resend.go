package email

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tanpawarit/crmpilot/pkg/httpx"
)

const resendBaseURL = "https://api.resend.com"

type resendSender struct {
	api  *httpx.Client
	from string
}

func newResendSender(cfg Config) (*resendSender, error) {
	if strings.TrimSpace(cfg.ResendAPIKey) == "" {
		return nil, fmt.Errorf("%w: resend api key is required", ErrConfiguration)
	}
	baseURL := strings.TrimSpace(cfg.ResendBaseURL)
	if baseURL == "" {
		baseURL = resendBaseURL
	}
	api, err := httpx.NewClient(baseURL, cfg.ResendAPIKey, httpx.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &resendSender{api: api, from: strings.TrimSpace(cfg.FromEmail)}, nil
}

func (s *resendSender) Send(ctx context.Context, msg Message) (*Receipt, error) {
	body := map[string]any{
		"from":    s.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if msg.Text != "" {
		body["text"] = msg.Text
	}

	if _, err := s.api.Do(ctx, httpx.Request{
		Method: http.MethodPost,
		Path:   "/emails",
		Body:   body,
	}); err != nil {
		return nil, fmt.Errorf("%w: resend: %v", ErrProvider, err)
	}

	return &Receipt{Provider: ProviderResend, Status: "queued"}, nil
}
