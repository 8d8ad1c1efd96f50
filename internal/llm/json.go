package llm

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// CleanJSON strips markdown fences and surrounding prose from a model
// response, returning the span from the first '{' to the last '}'.
func CleanJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// Decode parses a model response into T after CleanJSON.
func Decode[T any](text string) (*T, error) {
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return nil, eris.New("llm: empty response")
	}
	var v T
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, eris.Wrap(err, "llm: decode json response")
	}
	return &v, nil
}
