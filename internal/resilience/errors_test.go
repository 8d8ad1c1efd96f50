package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("invalid input: missing field"), false},
		{"transient", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped transient", fmt.Errorf("call failed: %w", NewTransientError(errors.New("slow down"), 429)), true},
		{"eris wrapped transient", eris.Wrap(NewTransientError(errors.New("slow down"), 429), "perplexity: search"), true},
		{"permanent http", StatusError(errors.New("bad key"), http.StatusUnauthorized, 0), false},
		{"conn reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, true},
		{"tls handshake", errors.New("net/http: TLS handshake timeout"), true},
		{"unexpected eof", errors.New("read body: unexpected EOF"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestStatusError(t *testing.T) {
	base := errors.New("unexpected status")

	err := StatusError(base, http.StatusTooManyRequests, 3*time.Second)
	var te *TransientError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, 3*time.Second, te.RetryAfter)
	assert.True(t, IsRateLimited(err))
	assert.ErrorIs(t, err, base)

	err = StatusError(base, http.StatusNotFound, 0)
	var he *HTTPError
	assert.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.False(t, IsRateLimited(err))
	assert.Equal(t, "unexpected status", err.Error())
}

func TestStatusCode_Wrapped(t *testing.T) {
	err := eris.Wrap(StatusError(errors.New("boom"), 502, 0), "deepseek: chat")
	assert.Equal(t, 502, StatusCode(err))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{" 12 ", 12 * time.Second},
		{"soon", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
		{"999999", time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRetryAfter(tt.in), "input %q", tt.in)
	}
}
