package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/resilience"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Acme Machining",
			URL:     "https://acme.com/contact",
			Content: `<a href="mailto:sales@acme.com">Email us</a>`,
			Usage:   ReadUsage{Tokens: 310},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "html", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://acme.com/contact", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://acme.com/contact")

	require.NoError(t, err)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, 310, got.Data.Usage.Tokens)
}

func TestRead_AnonymousAndFormat(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		w.Write([]byte(`{"code":200,"data":{"content":"# hi"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL), WithFormat("markdown"))
	got, err := client.Read(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "# hi", got.Data.Content)
}

func TestRead_StatusErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		retryAfter    string
		wantTransient bool
		wantWait      time.Duration
	}{
		{name: "rate_limited", status: http.StatusTooManyRequests, retryAfter: "7", wantTransient: true, wantWait: 7 * time.Second},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantTransient: true},
		{name: "forbidden", status: http.StatusForbidden},
		{name: "unprocessable", status: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`)) //nolint:errcheck
			}))
			defer srv.Close()

			client := NewClient("k", WithBaseURL(srv.URL))
			_, err := client.Read(context.Background(), "https://acme.com")
			require.Error(t, err)
			assert.Equal(t, int32(1), hits.Load())
			assert.Equal(t, tt.status, resilience.StatusCode(err))
			assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))

			if tt.wantWait > 0 {
				var te *resilience.TransientError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, tt.wantWait, te.RetryAfter)
			}
		})
	}
}

func TestRead_ErrorBodyTruncated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(strings.Repeat("x", 5000))) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 1200)
}

func TestRead_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}

func TestRead_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Read(ctx, "https://acme.com")
	require.Error(t, err)
}
