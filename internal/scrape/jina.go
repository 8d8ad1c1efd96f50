package scrape

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/pkg/jina"
)

// JinaScraper reads pages through Jina Reader. Every read takes its turn on
// the gateway like any other upstream call.
type JinaScraper struct {
	client jina.Client
	gw     gateway.Doer
}

// NewJinaScraper creates a JinaScraper.
func NewJinaScraper(client jina.Client, gw gateway.Doer) *JinaScraper {
	return &JinaScraper{client: client, gw: gw}
}

func (j *JinaScraper) Name() string           { return "jina" }
func (j *JinaScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	call := gateway.Call{Service: "jina", Operation: "read"}
	resp, err := j.gw.Do(ctx, call, func(ctx context.Context) (*gateway.Response, error) {
		r, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(r)
		if err != nil {
			return nil, eris.Wrap(err, "jina: encode response")
		}
		return &gateway.Response{Body: body, HTTPStatus: 200, InputTokens: int64(r.Data.Usage.Tokens)}, nil
	})
	if err != nil {
		return nil, err
	}

	var r jina.ReadResponse
	if err := json.Unmarshal(resp.Body, &r); err != nil {
		return nil, eris.Wrap(err, "jina: decode response")
	}
	if needsFallback(&r) {
		return nil, eris.Errorf("jina: unusable content for %s", targetURL)
	}

	pageURL := r.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	page, err := parsePage(pageURL, 200, []byte(r.Data.Content))
	if err != nil {
		return nil, err
	}
	if page.Title == "" {
		page.Title = r.Data.Title
	}
	return &Result{Page: page, Source: j.Name()}, nil
}

var jinaChallengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a Jina response is empty or a challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	if len(content) < 1000 {
		lower := strings.ToLower(content)
		for _, sig := range jinaChallengeSignatures {
			if strings.Contains(lower, sig) {
				return true
			}
		}
	}
	return false
}
