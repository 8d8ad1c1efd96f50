package llm

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-enricher/pkg/anthropic"
	"github.com/sells-group/topic-enricher/pkg/deepseek"
	"github.com/sells-group/topic-enricher/pkg/perplexity"
)

const defaultMaxTokens = 2048

// Perplexity completes prompts with sonar web search.
type Perplexity struct {
	client perplexity.Client
	model  string
}

// NewPerplexity wraps a Perplexity client.
func NewPerplexity(client perplexity.Client, model string) *Perplexity {
	return &Perplexity{client: client, model: model}
}

func (p *Perplexity) Service() string { return ServicePerplexity }
func (p *Perplexity) Model() string   { return p.model }

func (p *Perplexity) Complete(ctx context.Context, pr Prompt) (*Completion, error) {
	msgs := make([]perplexity.Message, 0, 2)
	if pr.System != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: pr.System})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: pr.User})

	req := perplexity.ChatCompletionRequest{Model: p.model, Messages: msgs}
	if pr.Temperature > 0 {
		t := pr.Temperature
		req.Temperature = &t
	}
	if pr.MaxTokens > 0 {
		n := pr.MaxTokens
		req.MaxTokens = &n
	}

	resp, err := p.client.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, eris.Wrap(err, "llm: encode perplexity response")
	}

	citations := append([]string(nil), resp.Citations...)
	for _, r := range resp.SearchResults {
		if r.URL != "" {
			citations = append(citations, r.URL)
		}
	}

	return &Completion{
		Text:         resp.Content(),
		Model:        resp.Model,
		Citations:    citations,
		Raw:          raw,
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}

// DeepSeek completes prompts with DeepSeek chat.
type DeepSeek struct {
	client deepseek.Client
	model  string
}

// NewDeepSeek wraps a DeepSeek client.
func NewDeepSeek(client deepseek.Client, model string) *DeepSeek {
	return &DeepSeek{client: client, model: model}
}

func (d *DeepSeek) Service() string { return ServiceDeepSeek }
func (d *DeepSeek) Model() string   { return d.model }

func (d *DeepSeek) Complete(ctx context.Context, pr Prompt) (*Completion, error) {
	resp, err := d.client.Chat(ctx, deepseek.ChatRequest{
		Model:       d.model,
		System:      pr.System,
		User:        pr.User,
		Temperature: float32(pr.Temperature),
		MaxTokens:   pr.MaxTokens,
		JSON:        pr.JSON,
	})
	if err != nil {
		return nil, err
	}
	return &Completion{
		Text:         resp.Content,
		Model:        resp.Model,
		InputTokens:  int64(resp.PromptTokens),
		OutputTokens: int64(resp.CompletionTokens),
	}, nil
}

// Anthropic completes prompts with Claude.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic wraps an Anthropic client.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

func (a *Anthropic) Service() string { return ServiceAnthropic }
func (a *Anthropic) Model() string   { return a.model }

func (a *Anthropic) Complete(ctx context.Context, pr Prompt) (*Completion, error) {
	maxTokens := int64(pr.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	req := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    pr.System,
		Messages:  []anthropic.Message{{Role: "user", Content: pr.User}},
	}
	if pr.Temperature > 0 {
		t := pr.Temperature
		req.Temperature = &t
	}

	resp, err := a.client.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Completion{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
