// Package llm puts the search and chat providers behind one completion
// interface and routes every completion through the gateway.
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-enricher/internal/gateway"
)

// Service names as they appear in the call log and metrics.
const (
	ServicePerplexity = "perplexity"
	ServiceDeepSeek   = "deepseek"
	ServiceAnthropic  = "anthropic"
	ServiceJina       = "jina"
)

// Prompt is one single-turn completion request.
type Prompt struct {
	Operation   string
	SessionID   string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
	// JSON asks providers that support it for a JSON object response.
	JSON bool
	// CacheTTL enables the gateway response cache when positive.
	CacheTTL time.Duration
}

// Completion is a provider-neutral completion result.
type Completion struct {
	Text         string          `json:"text"`
	Model        string          `json:"model"`
	Citations    []string        `json:"citations,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cached       bool            `json:"-"`
}

// Completer produces completions.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// Provider is a Completer that talks to one named upstream service.
type Provider interface {
	Completer
	Service() string
	Model() string
}

type gated struct {
	gw   gateway.Doer
	next Provider
}

// Gated returns a Completer whose every call takes its turn on gw.
func Gated(gw gateway.Doer, p Provider) Completer {
	return &gated{gw: gw, next: p}
}

func (g *gated) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	call := gateway.Call{
		Service:   g.next.Service(),
		Operation: p.Operation,
		Model:     g.next.Model(),
		SessionID: p.SessionID,
		Prompt:    cacheIdentity(p),
		CacheTTL:  p.CacheTTL,
	}

	resp, err := g.gw.Do(ctx, call, func(ctx context.Context) (*gateway.Response, error) {
		c, err := g.next.Complete(ctx, p)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(c)
		if err != nil {
			return nil, eris.Wrap(err, "llm: encode completion")
		}
		return &gateway.Response{
			Body:         body,
			HTTPStatus:   200,
			InputTokens:  c.InputTokens,
			OutputTokens: c.OutputTokens,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	var out Completion
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, eris.Wrapf(err, "llm: decode %s completion", call.Service)
	}
	out.Cached = resp.FromCache
	return &out, nil
}

// cacheIdentity is everything about a prompt that changes the answer.
func cacheIdentity(p Prompt) string {
	var b strings.Builder
	b.WriteString(p.System)
	b.WriteByte(0)
	b.WriteString(p.User)
	if p.JSON {
		b.WriteString("\x00json")
	}
	return b.String()
}
