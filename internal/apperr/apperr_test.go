package apperr

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", Validation("target_count must be positive"), http.StatusBadRequest},
		{"not found", NotFound("session", "abc"), http.StatusNotFound},
		{"upstream", Upstream(errors.New("dial tcp"), "perplexity"), http.StatusBadGateway},
		{"rate limit", RateLimit(errors.New("429"), "perplexity"), http.StatusTooManyRequests},
		{"partial", Partial("3 of 5 queries"), http.StatusOK},
		{"deadline", eris.Wrap(context.DeadlineExceeded, "stage 2"), http.StatusGatewayTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestKindOf_ThroughErisWrap(t *testing.T) {
	t.Parallel()

	err := eris.Wrap(NotFound("session", "s-1"), "pipeline: load session")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(nil, KindNotFound))
	assert.Equal(t, "session not found: s-1", Message(err))
}

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := Upstream(errors.New("connection refused"), "all queries failed")
	assert.Equal(t, "all queries failed: connection refused", err.Error())
	assert.Equal(t, "UpstreamError", KindOf(err).String())
	assert.Equal(t, "InternalError", KindOf(errors.New("x")).String())
}
