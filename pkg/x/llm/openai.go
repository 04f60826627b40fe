package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIModel          = "gpt-4o-mini"
	DefaultOpenAIMaxRetries     = 2
	DefaultOpenAIRequestTimeout = 30 * time.Second
)

type OpenAIChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string

	// SDK client options.
	MaxRetries     int
	RequestTimeout time.Duration
}

func (c OpenAIChatConfig) withDefaults() OpenAIChatConfig {
	out := c
	if strings.TrimSpace(out.BaseURL) == "" {
		out.BaseURL = DefaultOpenAIBaseURL
	}
	if strings.TrimSpace(out.Model) == "" {
		out.Model = DefaultOpenAIModel
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultOpenAIMaxRetries
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultOpenAIRequestTimeout
	}
	return out
}

// ChatClient answers single-turn prompts through an OpenAI compatible API.
type ChatClient struct {
	client openaigo.Client
	model  string
}

func NewChatClient(httpClient *http.Client, cfg OpenAIChatConfig) (*ChatClient, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout + 5*time.Second}
	}

	return &ChatClient{
		client: openaigo.NewClient(
			option.WithBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")),
			option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(cfg.MaxRetries),
			option.WithRequestTimeout(cfg.RequestTimeout),
		),
		model: strings.TrimSpace(cfg.Model),
	}, nil
}

// Complete returns the first choice for a system + user prompt pair.
func (c *ChatClient) Complete(ctx context.Context, system, user string) (string, error) {
	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, openaigo.SystemMessage(system))
	}
	messages = append(messages, openaigo.UserMessage(user))

	resp, err := c.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned empty choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("llm returned empty content")
	}
	return out, nil
}
