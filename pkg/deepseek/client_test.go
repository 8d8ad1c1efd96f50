package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/resilience"
)

func chatServer(t *testing.T, status int, body string, check func(req map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ds-key", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if check != nil {
			check(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okChat = `{
	"id": "chat-1",
	"model": "deepseek-chat",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"queries\":[]}"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 30, "completion_tokens": 12, "total_tokens": 42}
}`

func TestClient_Chat(t *testing.T) {
	srv := chatServer(t, http.StatusOK, okChat, func(req map[string]any) {
		assert.Equal(t, "deepseek-chat", req["model"])
		msgs := req["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
		format := req["response_format"].(map[string]any)
		assert.Equal(t, "json_object", format["type"])
	})

	c := NewClient("ds-key", WithBaseURL(srv.URL))
	resp, err := c.Chat(context.Background(), ChatRequest{
		System: "You generate search queries.",
		User:   "CNC machining",
		JSON:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"queries":[]}`, resp.Content)
	assert.Equal(t, 30, resp.PromptTokens)
	assert.Equal(t, 12, resp.CompletionTokens)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestClient_Chat_NoSystemNoJSON(t *testing.T) {
	srv := chatServer(t, http.StatusOK, okChat, func(req map[string]any) {
		assert.Equal(t, "deepseek-reasoner", req["model"])
		assert.Len(t, req["messages"].([]any), 1)
		_, hasFormat := req["response_format"]
		assert.False(t, hasFormat)
	})

	c := NewClient("ds-key", WithBaseURL(srv.URL), WithModel("deepseek-reasoner"))
	_, err := c.Chat(context.Background(), ChatRequest{User: "hello"})
	require.NoError(t, err)
}

func TestClient_Chat_StatusClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
	}{
		{name: "rate_limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limit","type":"rate_limit"}}`, wantTransient: true},
		{name: "server_error", status: http.StatusServiceUnavailable, body: `{"error":{"message":"busy","type":"server"}}`, wantTransient: true},
		{name: "bad_key", status: http.StatusUnauthorized, body: `{"error":{"message":"bad key","type":"auth"}}`},
		{name: "non_json_error", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantTransient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.body, nil)
			c := NewClient("ds-key", WithBaseURL(srv.URL))

			_, err := c.Chat(context.Background(), ChatRequest{User: "x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "deepseek: chat completion")
			assert.Equal(t, tt.status, resilience.StatusCode(err))
			assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
		})
	}
}

func TestClient_Chat_EmptyChoices(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"id":"x","choices":[],"usage":{}}`, nil)
	c := NewClient("ds-key", WithBaseURL(srv.URL))

	_, err := c.Chat(context.Background(), ChatRequest{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}
