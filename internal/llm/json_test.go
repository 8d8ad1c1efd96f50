package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare_fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose_around", in: "Here you go:\n{\"a\":{\"b\":2}}\nHope this helps.", want: `{"a":{"b":2}}`},
		{name: "no_object", in: "no json here", want: "no json here"},
		{name: "empty", in: "  ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}

func TestDecode(t *testing.T) {
	type payload struct {
		Companies []struct {
			Name string `json:"name"`
		} `json:"companies"`
	}

	got, err := Decode[payload]("```json\n{\"companies\":[{\"name\":\"Acme\"}]}\n```")
	require.NoError(t, err)
	require.Len(t, got.Companies, 1)
	assert.Equal(t, "Acme", got.Companies[0].Name)

	_, err = Decode[payload]("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")

	_, err = Decode[payload]("{not json}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json response")
}
