// Package deepseek talks to DeepSeek's OpenAI-compatible chat endpoint.
package deepseek

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/topic-enricher/internal/resilience"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModel   = "deepseek-chat"
)

// Client performs chat completions.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single-turn chat request.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
	// JSON asks the model for a JSON object response.
	JSON bool
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	ID               string
	Model            string
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Option configures the client.
type Option func(*openai.ClientConfig, *string)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(cfg *openai.ClientConfig, _ *string) {
		cfg.BaseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(_ *openai.ClientConfig, m *string) {
		*m = model
	}
}

type client struct {
	api   *openai.Client
	model string
}

// NewClient creates a DeepSeek client.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = defaultBaseURL
	model := defaultModel
	for _, o := range opts {
		o(&cfg, &model)
	}
	return &client{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSON {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.api.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classify(eris.Wrap(err, "deepseek: chat completion"))
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("deepseek: empty choices")
	}

	return &ChatResponse{
		ID:               resp.ID,
		Model:            resp.Model,
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     string(resp.Choices[0].FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// classify attaches the HTTP status so the gateway can tell 429 and 5xx
// from permanent failures.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return resilience.StatusError(err, apiErr.HTTPStatusCode, 0)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return resilience.StatusError(err, reqErr.HTTPStatusCode, 0)
	}
	return err
}
