package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	result   *Result
	err      error
	calls    int
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, _ string) (*Result, error) {
	m.calls++
	return m.result, m.err
}

func TestChain_Scrape_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{
		name: "primary", supports: true,
		result: &Result{Page: Page{URL: "https://acme.com", Title: "Home"}, Source: "primary"},
	}
	s2 := &mockScraper{name: "fallback", supports: true}

	chain := NewChain(NewPathMatcher([]string{"/excluded/*"}), s1, s2)
	result, err := chain.Scrape(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "primary", result.Source)
	assert.Equal(t, 0, s2.calls)
}

func TestChain_Scrape_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("blocked")}
	s2 := &mockScraper{
		name: "fallback", supports: true,
		result: &Result{Page: Page{URL: "https://acme.com"}, Source: "fallback"},
	}

	chain := NewChain(nil, s1, s2)
	result, err := chain.Scrape(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Source)
}

func TestChain_Scrape_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, err: errors.New("s1 error")}
	s2 := &mockScraper{name: "s2", supports: true, err: errors.New("s2 error")}

	chain := NewChain(nil, s1, s2)
	result, err := chain.Scrape(context.Background(), "https://acme.com")

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "all scrapers failed")
}

func TestChain_Scrape_ExcludedURL(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true}

	chain := NewChain(NewPathMatcher([]string{"/blog/*"}), s1)
	_, err := chain.Scrape(context.Background(), "https://acme.com/blog/post1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "excluded")
	assert.Equal(t, 0, s1.calls)
}

func TestChain_Scrape_SkipsUnsupported(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: false}
	s2 := &mockScraper{
		name: "s2", supports: true,
		result: &Result{Page: Page{URL: "https://acme.com"}, Source: "s2"},
	}

	chain := NewChain(nil, s1, s2)
	result, err := chain.Scrape(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "s2", result.Source)
	assert.Equal(t, 0, s1.calls)
}

func TestChain_Scrape_NoScrapers(t *testing.T) {
	_, err := NewChain(nil).Scrape(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable scraper")
}

func TestChain_Scrape_CancelledContext(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewChain(nil, s1).Scrape(ctx, "https://acme.com")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s1.calls)
}
