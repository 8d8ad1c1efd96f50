package expand

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/llm/mocks"
	"github.com/sells-group/topic-enricher/internal/store"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "expand.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func queriesJSON(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"query_cn":"%s查询%d","query_ru":"запрос %d","relevance":%d}`, prefix, i, i, 90-i)
	}
	return `{"queries":[` + strings.Join(parts, ",") + `]}`
}

func forOp(op string) any {
	return mock.MatchedBy(func(p llm.Prompt) bool { return p.Operation == op })
}

func ptr(n int) *int { return &n }

func TestExpander_CreateSession_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{"empty topic", Request{Topic: "   "}, "main_topic is required"},
		{"zero target", Request{Topic: "cnc", TargetCount: ptr(0)}, "must be positive"},
		{"negative target", Request{Topic: "cnc", TargetCount: ptr(-3)}, "must be positive"},
		{"too many", Request{Topic: "cnc", TargetCount: ptr(51)}, "at most 50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mocks.NewMockCompleter(t)
			e := New(c, newStore(t), config.TopicsConfig{}, 0)

			_, err := e.CreateSession(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestExpander_CreateSession_DefaultTarget(t *testing.T) {
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, forOp("expand")).
		Return(&llm.Completion{Text: queriesJSON("a", 10)}, nil).Once()

	st := newStore(t)
	e := New(c, st, config.TopicsConfig{DefaultQueryCount: 10, MaxQueryCount: 50}, time.Hour)

	res, err := e.CreateSession(context.Background(), Request{Topic: "精密数控加工服务"})
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, 10, res.Session.TargetCount)
	require.Len(t, res.Session.Queries, 10)
	assert.Equal(t, 1, res.Session.Queries[0].Position)
	assert.Equal(t, 10, res.Session.Queries[9].Position)

	got, err := st.GetSession(context.Background(), res.Session.ID)
	require.NoError(t, err)
	assert.Len(t, got.Queries, 10)
	assert.Equal(t, "a查询0", got.Queries[0].QueryCN)
}

func TestExpander_CreateSession_PromptShape(t *testing.T) {
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, mock.MatchedBy(func(p llm.Prompt) bool {
		return p.Operation == "expand" &&
			p.JSON &&
			p.CacheTTL == 2*time.Hour &&
			strings.Contains(p.User, "laser cutting") &&
			strings.Contains(p.User, "Write 3 specific")
	})).Return(&llm.Completion{Text: queriesJSON("b", 3)}, nil).Once()

	e := New(c, newStore(t), config.TopicsConfig{}, 2*time.Hour)
	res, err := e.CreateSession(context.Background(), Request{Topic: "laser cutting", TargetCount: ptr(3)})
	require.NoError(t, err)
	assert.Len(t, res.Session.Queries, 3)
}

func TestExpander_CreateSession_PartialWarning(t *testing.T) {
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, forOp("expand")).
		Return(&llm.Completion{Text: queriesJSON("a", 3)}, nil).Once()
	c.On("Complete", mock.Anything, forOp("expand_retry")).
		Return(&llm.Completion{Text: queriesJSON("b", 2)}, nil).Once()

	e := New(c, newStore(t), config.TopicsConfig{}, 0)
	res, err := e.CreateSession(context.Background(), Request{Topic: "cnc", TargetCount: ptr(8)})
	require.NoError(t, err)
	require.Error(t, res.Warning)
	assert.True(t, apperr.Is(res.Warning, apperr.KindPartial))
	assert.Contains(t, res.Warning.Error(), "generated 5 of 8")
	assert.Len(t, res.Session.Queries, 5)
	assert.Equal(t, 8, res.Session.TargetCount)
}

func TestExpander_CreateSession_NoQueriesNoSession(t *testing.T) {
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, forOp("expand")).
		Return(nil, errors.New("upstream down")).Once()
	c.On("Complete", mock.Anything, forOp("expand_retry")).
		Return(&llm.Completion{Text: `{"queries":[]}`}, nil).Once()

	st := newStore(t)
	e := New(c, st, config.TopicsConfig{}, 0)
	_, err := e.CreateSession(context.Background(), Request{Topic: "cnc", TargetCount: ptr(5)})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	sessions, err := st.ListSessions(context.Background(), store.SessionFilter{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestExpander_Generate_RetryDedupesAndTruncates(t *testing.T) {
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, forOp("expand")).
		Return(&llm.Completion{Text: queriesJSON("a", 2)}, nil).Once()
	// Retry repeats the first two and adds three new ones.
	c.On("Complete", mock.Anything, forOp("expand_retry")).
		Return(&llm.Completion{Text: `{"queries":[
			{"query_cn":"a查询0","query_ru":"дубль","relevance":70},
			{"query_cn":"A查询1","query_ru":"дубль","relevance":70},
			{"query_cn":"c1","query_ru":"р1","relevance":60},
			{"query_cn":"c2","query_ru":"р2","relevance":60},
			{"query_cn":"c3","query_ru":"р3","relevance":60}
		]}`}, nil).Once()

	e := New(c, newStore(t), config.TopicsConfig{}, 0)
	qs, err := e.Generate(context.Background(), "cnc", 4)
	require.NoError(t, err)
	require.Len(t, qs, 4)
	assert.Equal(t, "a查询0", qs[0].QueryCN)
	assert.Equal(t, "a查询1", qs[1].QueryCN)
	assert.Equal(t, "c1", qs[2].QueryCN)
	assert.Equal(t, "c2", qs[3].QueryCN)
	for i, q := range qs {
		assert.Equal(t, i+1, q.Position)
	}
}

func TestExpander_Generate_SkipsRetryWhenEnough(t *testing.T) {
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, forOp("expand")).
		Return(&llm.Completion{Text: queriesJSON("a", 6)}, nil).Once()

	e := New(c, newStore(t), config.TopicsConfig{}, 0)
	qs, err := e.Generate(context.Background(), "cnc", 4)
	require.NoError(t, err)
	assert.Len(t, qs, 4)
	c.AssertNumberOfCalls(t, "Complete", 1)
}

func TestExpander_Generate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := mocks.NewMockCompleter(t)
	c.On("Complete", mock.Anything, forOp("expand")).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()

	e := New(c, newStore(t), config.TopicsConfig{}, 0)
	_, err := e.Generate(ctx, "cnc", 4)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParseQueries(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		rel     []int
		wantErr bool
	}{
		{
			name: "fenced with string relevance",
			text: "```json\n{\"queries\":[{\"query_cn\":\"数控\",\"query_ru\":\"ЧПУ\",\"relevance\":\"85\"}]}\n```",
			want: []string{"数控"},
			rel:  []int{85},
		},
		{
			name: "missing language dropped",
			text: `{"queries":[{"query_cn":"数控","query_ru":""},{"query_cn":" 铣削 ","query_ru":" фрезеровка "}]}`,
			want: []string{"铣削"},
			rel:  []int{50},
		},
		{
			name: "out of range relevance",
			text: `{"queries":[{"query_cn":"a","query_ru":"b","relevance":150},{"query_cn":"c","query_ru":"d","relevance":0}]}`,
			want: []string{"a", "c"},
			rel:  []int{50, 50},
		},
		{
			name: "garbage relevance",
			text: `{"queries":[{"query_cn":"a","query_ru":"b","relevance":"high"}]}`,
			want: []string{"a"},
			rel:  []int{50},
		},
		{name: "no array", text: `{"items":[]}`, wantErr: true},
		{name: "not json", text: "sorry, I can't", wantErr: true},
		{name: "empty", text: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := ParseQueries(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, qs, len(tt.want))
			for i := range qs {
				assert.Equal(t, tt.want[i], qs[i].QueryCN)
				assert.Equal(t, tt.rel[i], qs[i].Relevance)
			}
		})
	}
}
