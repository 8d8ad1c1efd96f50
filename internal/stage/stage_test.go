package stage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/llm"
	"github.com/sells-group/topic-enricher/internal/llm/mocks"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/scrape"
	"github.com/sells-group/topic-enricher/internal/store"
)

type fixture struct {
	store     store.Store
	search    *mocks.MockCompleter
	validator *mocks.MockCompleter
	fallback  *mocks.MockCompleter
	deps      Deps
	proc      *Processor
}

func newFixture(t *testing.T, contacts ContactFinder) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "stage.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	f := &fixture{
		store:     st,
		search:    mocks.NewMockCompleter(t),
		validator: mocks.NewMockCompleter(t),
	}
	f.deps = Deps{
		Store:         st,
		Search:        f.search,
		Validator:     f.validator,
		ValidatorName: llm.ServiceDeepSeek,
		Contacts:      contacts,
		Stages:        config.StagesConfig{MinCompanies: 2, MaxCompanies: 3},
		Validation:    config.ValidationConfig{MinRelevance: 50, FallbackBasic: true},
	}
	f.proc = New(f.deps)
	return f
}

// withFallback rebuilds the processor with a fallback completer for the
// retry passes of stages 2 and 3.
func (f *fixture) withFallback(t *testing.T) *fixture {
	t.Helper()
	f.fallback = mocks.NewMockCompleter(t)
	f.deps.Fallback = f.fallback
	f.proc = New(f.deps)
	return f
}

func (f *fixture) session(t *testing.T, queries ...string) *model.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.store.CreateSession(ctx, "精密数控加工服务", len(queries))
	require.NoError(t, err)
	qs := make([]model.Query, 0, len(queries))
	for _, q := range queries {
		qs = append(qs, model.Query{QueryCN: q, QueryRU: q + " ru", Relevance: 80})
	}
	saved, err := f.store.SaveQueries(ctx, sess.ID, qs)
	require.NoError(t, err)
	sess.Queries = saved
	return sess
}

func (f *fixture) companies(t *testing.T, sessionID string, cs ...model.Company) []model.Company {
	t.Helper()
	for i := range cs {
		cs[i].SessionID = sessionID
	}
	n, err := f.store.InsertCompanies(context.Background(), cs)
	require.NoError(t, err)
	require.Equal(t, len(cs), n)
	return cs
}

func (f *fixture) get(t *testing.T, id string) *model.Company {
	t.Helper()
	c, err := f.store.GetCompany(context.Background(), id)
	require.NoError(t, err)
	return c
}

func forOp(op string) any {
	return mock.MatchedBy(func(p llm.Prompt) bool { return p.Operation == op })
}

func answer(text string) *llm.Completion {
	return &llm.Completion{Text: text, Model: "sonar-pro"}
}

// fakeContacts returns canned crawl results per website.
type fakeContacts struct {
	results map[string]*scrape.ContactResult
	errs    map[string]error
	calls   []string
}

func (f *fakeContacts) Find(_ context.Context, website string) (*scrape.ContactResult, error) {
	f.calls = append(f.calls, website)
	if err := f.errs[website]; err != nil {
		return &scrape.ContactResult{Failed: []string{website}}, err
	}
	if r, ok := f.results[website]; ok {
		return r, nil
	}
	return &scrape.ContactResult{Visited: []string{website}}, nil
}

func contains(s, sub string) bool { return strings.Contains(s, sub) }
