package llm

import (
	"errors"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type Config struct {
	BaseURL             string        `split_words:"true"`
	APIKey              string        `split_words:"true" required:"true"`
	Model               string        `split_words:"true" default:"gpt-4o-mini"`
	Temperature         float64       `split_words:"true" default:"0"`
	MaxCompletionTokens int64         `split_words:"true" default:"2000"`
	Timeout             time.Duration `split_words:"true" default:"60s"`
}

// NewClient creates an OpenAI SDK client. BaseURL may point at any
// OpenAI-compatible endpoint; the model identifier stays configuration.
func NewClient(cfg Config) (*openaisdk.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("llm api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &client, nil
}

func MustNewClient(cfg Config) *openaisdk.Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}
