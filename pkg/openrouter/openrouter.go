package openrouter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	contractx "github.com/omniflowhq/omniflow/agent/contract"
)

type Config struct {
	BaseURL  string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey   string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model    string        `envconfig:"MODEL" split_words:"true" required:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"15s"`
	SiteURL  string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName string        `envconfig:"SITE_NAME" split_words:"true"`
}

// NewClient creates an OpenAI SDK client pointed at OpenRouter.
func NewClient(cfg Config) *openaisdk.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(cfg.BaseURL, "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}

// Synthesizer runs single-shot chat completions at temperature 0. The answer
// wording may vary between calls; every stated fact must come from the facts
// message, which the guard enforces downstream.
type Synthesizer struct {
	client *openaisdk.Client
	model  string
}

var _ contractx.Synthesizer = (*Synthesizer)(nil)

func NewSynthesizer(cfg Config) (*Synthesizer, error) {
	client := NewClient(cfg)
	if client == nil {
		return nil, errors.New("openrouter api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("openrouter model is required")
	}
	return &Synthesizer{client: client, model: model}, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, systemPrompt, userFactsMessage string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(s.model),
		Temperature: openaisdk.Float(0),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(userFactsMessage),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrSynthesizerInvoke, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrSynthesizerInvoke)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
