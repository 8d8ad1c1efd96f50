// Package expand turns a topic into bilingual search queries and opens a
// session for them.
package expand

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/store"
)

const defaultRelevance = 50

// Request describes a new session. A nil TargetCount uses the configured
// default.
type Request struct {
	Topic       string `json:"main_topic"`
	TargetCount *int   `json:"target_count,omitempty"`
}

// Result is a created session. Warning is set, with kind Partial, when fewer
// queries than requested were generated.
type Result struct {
	Session *model.Session
	Warning error
}

// Expander generates queries with a chat model.
type Expander struct {
	llm      llm.Completer
	store    store.Store
	cfg      config.TopicsConfig
	cacheTTL time.Duration
}

// New creates an Expander. cacheTTL of zero disables response caching.
func New(completer llm.Completer, st store.Store, cfg config.TopicsConfig, cacheTTL time.Duration) *Expander {
	if cfg.DefaultQueryCount <= 0 {
		cfg.DefaultQueryCount = 10
	}
	if cfg.MaxQueryCount <= 0 {
		cfg.MaxQueryCount = 50
	}
	return &Expander{llm: completer, store: st, cfg: cfg, cacheTTL: cacheTTL}
}

// CreateSession validates req, generates its queries and persists the
// session with them. No session is created when nothing was generated.
func (e *Expander) CreateSession(ctx context.Context, req Request) (*Result, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, apperr.Validation("main_topic is required")
	}
	target, err := e.target(req.TargetCount)
	if err != nil {
		return nil, err
	}

	queries, err := e.Generate(ctx, topic, target)
	if err != nil {
		return nil, err
	}

	sess, err := e.store.CreateSession(ctx, topic, target)
	if err != nil {
		return nil, eris.Wrap(err, "expand: create session")
	}
	saved, err := e.store.SaveQueries(ctx, sess.ID, queries)
	if err != nil {
		return nil, eris.Wrapf(err, "expand: save queries for session %s", sess.ID)
	}
	sess.Queries = saved

	res := &Result{Session: sess}
	if len(saved) < target {
		res.Warning = apperr.Partial("generated %d of %d requested queries", len(saved), target)
	}

	zap.L().Info("expand: session created",
		zap.String("session_id", sess.ID),
		zap.Int("target", target),
		zap.Int("generated", len(saved)),
	)
	return res, nil
}

func (e *Expander) target(n *int) (int, error) {
	if n == nil {
		return e.cfg.DefaultQueryCount, nil
	}
	if *n <= 0 {
		return 0, apperr.Validation("target_count must be positive, got %d", *n)
	}
	if *n > e.cfg.MaxQueryCount {
		return 0, apperr.Validation("target_count must be at most %d, got %d", e.cfg.MaxQueryCount, *n)
	}
	return *n, nil
}

// Generate asks the model for up to n distinct queries, retrying once with an
// alternative prompt when the first answer falls short. It returns an
// Upstream error only when nothing usable came back.
func (e *Expander) Generate(ctx context.Context, topic string, n int) ([]model.Query, error) {
	log := zap.L().With(zap.String("topic", topic), zap.Int("target", n))

	seen := make(map[string]bool)
	var out []model.Query
	var lastErr error

	attempts := []struct {
		op     string
		prompt string
	}{
		{"expand", expansionPrompt(topic, n)},
		{"expand_retry", retryPrompt(topic, n)},
	}
	for i, a := range attempts {
		if len(out) >= n {
			break
		}
		if i > 0 {
			log.Warn("expand: too few queries, retrying", zap.Int("have", len(out)))
		}
		got, err := e.ask(ctx, a.op, a.prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			log.Warn("expand: generation failed", zap.String("operation", a.op), zap.Error(err))
			continue
		}
		for _, q := range got {
			key := cases.Fold().String(q.QueryCN)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, q)
		}
	}

	if len(out) == 0 {
		if lastErr == nil {
			lastErr = eris.New("expand: model returned no usable queries")
		}
		return nil, apperr.Upstream(lastErr, "query generation produced no queries")
	}
	if len(out) > n {
		out = out[:n]
	}
	for i := range out {
		out[i].Position = i + 1
	}
	return out, nil
}

func (e *Expander) ask(ctx context.Context, op, prompt string) ([]model.Query, error) {
	c, err := e.llm.Complete(ctx, llm.Prompt{
		Operation:   op,
		System:      systemPrompt,
		User:        prompt,
		MaxTokens:   2000,
		Temperature: 0.7,
		JSON:        true,
		CacheTTL:    e.cacheTTL,
	})
	if err != nil {
		return nil, err
	}
	return ParseQueries(c.Text)
}

type rawQuery struct {
	QueryCN   string    `json:"query_cn"`
	QueryRU   string    `json:"query_ru"`
	Relevance relevance `json:"relevance"`
}

// relevance accepts a number or a numeric string.
type relevance int

func (r *relevance) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*r = defaultRelevance
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*r = defaultRelevance
		return nil
	}
	*r = relevance(f)
	return nil
}

// ParseQueries extracts queries from a model answer, dropping entries missing
// either language.
func ParseQueries(text string) ([]model.Query, error) {
	payload, err := llm.Decode[struct {
		Queries []rawQuery `json:"queries"`
	}](text)
	if err != nil {
		return nil, err
	}
	if payload.Queries == nil {
		return nil, eris.New("expand: response has no queries array")
	}

	out := make([]model.Query, 0, len(payload.Queries))
	for _, q := range payload.Queries {
		cn := strings.TrimSpace(q.QueryCN)
		ru := strings.TrimSpace(q.QueryRU)
		if cn == "" || ru == "" {
			continue
		}
		rel := int(q.Relevance)
		if rel <= 0 || rel > 100 {
			rel = defaultRelevance
		}
		out = append(out, model.Query{QueryCN: cn, QueryRU: ru, Relevance: rel})
	}
	return out, nil
}

const systemPrompt = `You are an expert at finding Chinese manufacturers and service providers.
You write precise search-engine queries in Chinese with Russian translations.
Respond with JSON only.`

func expansionPrompt(topic string, n int) string {
	return fmt.Sprintf(`Task description, in the requester's own words:
%s

Write %d specific Chinese search queries that would find companies matching this task.

Tell apart two kinds of companies:
1. Service providers that make parts or perform processing (加工服务, 零件加工, 制造).
2. Equipment makers that build machines (机床制造商, 设备制造).
If the task talks about processing or making parts, target service providers.
If it asks for machine or equipment makers, target equipment makers.

Rules:
- Do not reuse the task description itself as a query.
- Each query is exactly what would be typed into a search engine.
- Rate each query's relevance to the task from 0 to 100.

Answer as JSON:
{"queries":[{"query_cn":"Chinese query","query_ru":"Russian translation","relevance":95}]}`, topic, n)
}

func retryPrompt(topic string, n int) string {
	return fmt.Sprintf(`Write %d more alternative Chinese search queries for this topic:
%s

Use alternative process names, related technologies, different phrasings and specialist terms.
Answer as JSON with a "queries" array of {"query_cn","query_ru","relevance"}.`, n, topic)
}
