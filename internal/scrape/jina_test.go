package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/pkg/jina"
)

type fakeJina struct {
	resp  *jina.ReadResponse
	err   error
	calls int
}

func (f *fakeJina) Read(_ context.Context, _ string) (*jina.ReadResponse, error) {
	f.calls++
	return f.resp, f.err
}

// passthrough runs calls inline and remembers what it saw.
type passthrough struct {
	calls []gateway.Call
}

func (p *passthrough) Do(ctx context.Context, call gateway.Call, fn gateway.Func) (*gateway.Response, error) {
	p.calls = append(p.calls, call)
	return fn(ctx)
}

func longHTML(body string) string {
	return "<html><head><title>Acme</title></head><body>" + body + strings.Repeat(" filler text", 20) + "</body></html>"
}

func TestJinaScraper_Scrape_Success(t *testing.T) {
	client := &fakeJina{resp: &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			URL:     "https://acme.com/contact",
			Title:   "Contact Acme",
			Content: longHTML(`<a href="mailto:sales@acme.com">Mail</a>`),
			Usage:   jina.ReadUsage{Tokens: 120},
		},
	}}
	gw := &passthrough{}

	result, err := NewJinaScraper(client, gw).Scrape(context.Background(), "https://acme.com/contact")
	require.NoError(t, err)
	assert.Equal(t, "jina", result.Source)
	assert.Equal(t, "https://acme.com/contact", result.Page.URL)
	assert.Equal(t, "Acme", result.Page.Title)
	assert.Contains(t, result.Page.HTML, "mailto:sales@acme.com")

	require.Len(t, gw.calls, 1)
	assert.Equal(t, "jina", gw.calls[0].Service)
	assert.Equal(t, "read", gw.calls[0].Operation)
	assert.Zero(t, gw.calls[0].CacheTTL)
}

func TestJinaScraper_Scrape_ClientError(t *testing.T) {
	client := &fakeJina{err: errors.New("connection refused")}

	_, err := NewJinaScraper(client, &passthrough{}).Scrape(context.Background(), "https://fail.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestJinaScraper_Scrape_ChallengePage(t *testing.T) {
	client := &fakeJina{resp: &jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{Content: "Just a moment... Checking your browser before accessing acme.com. This takes a few seconds, please wait."},
	}}

	_, err := NewJinaScraper(client, &passthrough{}).Scrape(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable content")
}

func TestNeedsFallback(t *testing.T) {
	long := strings.Repeat("real content ", 20)
	tests := []struct {
		name string
		resp *jina.ReadResponse
		want bool
	}{
		{"nil", nil, true},
		{"error code", &jina.ReadResponse{Code: 451, Data: jina.ReadData{Content: long}}, true},
		{"too short", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "tiny"}}, true},
		{"access denied short", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "Access denied. " + long}}, true},
		{"challenge word in long page", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "access denied " + strings.Repeat(long, 10)}}, false},
		{"good", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: long}}, false},
		{"zero code", &jina.ReadResponse{Data: jina.ReadData{Content: long}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsFallback(tt.resp))
		})
	}
}
