package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/cache"
	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/gateway"
	"github.com/sells-group/topic-enricher/internal/resilience"
)

type fakeProvider struct {
	calls atomic.Int32
	text  string
	err   error
	last  atomic.Pointer[Prompt]
}

func (f *fakeProvider) Service() string { return "fake" }
func (f *fakeProvider) Model() string   { return "fake-1" }

func (f *fakeProvider) Complete(_ context.Context, p Prompt) (*Completion, error) {
	f.calls.Add(1)
	f.last.Store(&p)
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{
		Text:         f.text,
		Model:        "fake-1",
		Citations:    []string{"https://acme.com"},
		InputTokens:  12,
		OutputTokens: 4,
	}, nil
}

func newGateway(t *testing.T, c cache.Cache) *gateway.Gateway {
	t.Helper()
	gw := gateway.New(gateway.Options{
		Retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		},
		Circuit: resilience.CircuitBreakerConfig{FailureThreshold: 50, ResetTimeout: time.Minute},
		Cache:   c,
	})
	t.Cleanup(gw.Close)
	return gw
}

func TestGated_Complete(t *testing.T) {
	gw := newGateway(t, nil)
	p := &fakeProvider{text: `{"ok":true}`}

	c, err := Gated(gw, p).Complete(context.Background(), Prompt{
		Operation: "stage1",
		SessionID: "s-1",
		User:      "find CNC shops",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, c.Text)
	assert.Equal(t, []string{"https://acme.com"}, c.Citations)
	assert.Equal(t, int64(12), c.InputTokens)
	assert.False(t, c.Cached)
	assert.Equal(t, "find CNC shops", p.last.Load().User)

	st := gw.Stats()
	assert.Equal(t, int64(1), st.TotalCalls)
	assert.Equal(t, int64(16), st.TotalTokens)
}

func TestGated_CachesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() }) //nolint:errcheck

	gw := newGateway(t, rc)
	p := &fakeProvider{text: "cached answer"}
	completer := Gated(gw, p)
	prompt := Prompt{Operation: "stage2", User: "acme website", CacheTTL: time.Hour}

	first, err := completer.Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := completer.Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "cached answer", second.Text)
	assert.Equal(t, int32(1), p.calls.Load())

	// JSON mode changes the cache identity.
	prompt.JSON = true
	_, err = completer.Complete(context.Background(), prompt)
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestGated_RateLimitSurfacesAsKind(t *testing.T) {
	gw := newGateway(t, nil)
	p := &fakeProvider{err: resilience.StatusError(assert.AnError, 429, 0)}

	_, err := Gated(gw, p).Complete(context.Background(), Prompt{Operation: "stage2"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRateLimit))
	assert.Equal(t, int32(2), p.calls.Load())
	assert.Equal(t, int64(2), gw.Stats().RateLimited)
}

func TestGated_PermanentErrorNotRetried(t *testing.T) {
	gw := newGateway(t, nil)
	p := &fakeProvider{err: resilience.StatusError(assert.AnError, 401, 0)}

	_, err := Gated(gw, p).Complete(context.Background(), Prompt{Operation: "stage4"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestCacheIdentity(t *testing.T) {
	a := cacheIdentity(Prompt{System: "s", User: "u"})
	b := cacheIdentity(Prompt{System: "s", User: "u", JSON: true})
	c := cacheIdentity(Prompt{System: "su", User: ""})
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheIdentity(Prompt{System: "s", User: "u", SessionID: "other"}))
}
