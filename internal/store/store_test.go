package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedSession(t *testing.T, s Store) *model.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := s.CreateSession(ctx, "精密数控加工服务", 2)
	require.NoError(t, err)
	qs, err := s.SaveQueries(ctx, sess.ID, []model.Query{
		{QueryCN: "数控加工", QueryRU: "ЧПУ обработка", Relevance: 90},
		{QueryCN: "精密零件", QueryRU: "точные детали", Relevance: 80},
	})
	require.NoError(t, err)
	sess.Queries = qs
	return sess
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetSession", func(t *testing.T) {
		s := newStore(t)
		sess := seedSession(t, s)

		got, err := s.GetSession(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "精密数控加工服务", got.Topic)
		assert.Equal(t, model.SessionStatusCreated, got.Status)
		require.Len(t, got.Queries, 2)
		assert.Equal(t, 1, got.Queries[0].Position)
		assert.Equal(t, "ЧПУ обработка", got.Queries[0].QueryRU)
		assert.False(t, got.Queries[0].Processed())
		assert.Equal(t, "数控加工; 精密零件", got.SearchQuery())
	})

	t.Run("GetSessionNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSession(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("ListSessionsNewestFirst", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := seedSession(t, s)
		time.Sleep(5 * time.Millisecond)
		second := seedSession(t, s)
		require.NoError(t, s.UpdateSessionStatus(ctx, second.ID, model.SessionStatusProcessing, 1))

		all, err := s.ListSessions(ctx, SessionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, second.ID, all[0].ID)
		assert.Equal(t, first.ID, all[1].ID)
		assert.Len(t, all[0].Queries, 2)

		limited, err := s.ListSessions(ctx, SessionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		processing, err := s.ListSessions(ctx, SessionFilter{Status: model.SessionStatusProcessing})
		require.NoError(t, err)
		require.Len(t, processing, 1)
		assert.Equal(t, 1, processing[0].LastStage)
	})

	t.Run("UpdateSessionStatusKeepsHighestStage", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)

		require.NoError(t, s.UpdateSessionStatus(ctx, sess.ID, model.SessionStatusProcessing, 3))
		require.NoError(t, s.UpdateSessionStatus(ctx, sess.ID, model.SessionStatusProcessing, 1))

		got, err := s.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.LastStage)

		err = s.UpdateSessionStatus(ctx, "missing", model.SessionStatusFailed, 0)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("MarkQueryProcessed", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)

		require.NoError(t, s.MarkQueryProcessed(ctx, sess.Queries[0].ID, 7))
		qs, err := s.ListQueries(ctx, sess.ID)
		require.NoError(t, err)
		assert.True(t, qs[0].Processed())
		assert.Equal(t, 7, qs[0].CompaniesFound)
		assert.False(t, qs[1].Processed())
	})

	t.Run("InsertCompaniesDedupesByNameKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)

		n, err := s.InsertCompanies(ctx, []model.Company{
			{SessionID: sess.ID, Name: "Acme Precision"},
			{SessionID: sess.ID, Name: "Shenzhen Tools", Website: "https://sztools.cn"},
			{SessionID: sess.ID, Name: "Full Data Ltd", Website: "https://full.cn", Email: "info@full.cn"},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = s.InsertCompanies(ctx, []model.Company{
			{SessionID: sess.ID, Name: "ACME  precision"},
			{SessionID: sess.ID, Name: "New Co"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		companies, err := s.ListCompanies(ctx, CompanyFilter{SessionID: sess.ID})
		require.NoError(t, err)
		require.Len(t, companies, 4)
		assert.Equal(t, model.StageNamesFound, companies[0].Stage)
		assert.Equal(t, model.StageWebsiteFound, companies[1].Stage)
		assert.Equal(t, model.StageContactsFound, companies[2].Stage)

		count, err := s.CountCompanies(ctx, CompanyFilter{SessionID: sess.ID, Stage: model.StageNamesFound})
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		byStage, err := s.CountByStage(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, byStage[model.StageNamesFound])
		assert.Equal(t, 4, byStage.Total())
	})

	t.Run("InsertCompaniesRequiresName", func(t *testing.T) {
		s := newStore(t)
		sess := seedSession(t, s)
		_, err := s.InsertCompanies(context.Background(), []model.Company{{SessionID: sess.ID}})
		require.Error(t, err)
	})

	t.Run("UpdateCompanyPersistsRawDataWithoutWebsite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)
		_, err := s.InsertCompanies(ctx, []model.Company{{SessionID: sess.ID, Name: "Ghost Factory"}})
		require.NoError(t, err)
		companies, err := s.ListCompanies(ctx, CompanyFilter{SessionID: sess.ID})
		require.NoError(t, err)
		id := companies[0].ID

		raw := &model.RawData{
			Source:       "perplexity",
			Result:       model.RawResultNotFound,
			Timestamp:    time.Now().UTC(),
			FullResponse: json.RawMessage(`{"website":null}`),
		}
		updated, err := s.UpdateCompany(ctx, id, CompanyUpdate{Stage2Raw: raw})
		require.NoError(t, err)
		assert.Equal(t, model.StageNamesFound, updated.Stage)

		got, err := s.GetCompany(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got.Website)
		require.NotNil(t, got.Stage2Raw)
		assert.Equal(t, "perplexity", got.Stage2Raw.Source)
		assert.Equal(t, model.RawResultNotFound, got.Stage2Raw.Result)
		assert.JSONEq(t, `{"website":null}`, string(got.Stage2Raw.FullResponse))
		assert.False(t, got.EligibleStage2(false))
		assert.True(t, got.EligibleStage2(true))
	})

	t.Run("UpdateCompanyAdvancesAndRejectsRegression", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)
		_, err := s.InsertCompanies(ctx, []model.Company{{SessionID: sess.ID, Name: "Acme"}})
		require.NoError(t, err)
		companies, err := s.ListCompanies(ctx, CompanyFilter{SessionID: sess.ID})
		require.NoError(t, err)
		id := companies[0].ID

		website := "https://acme.cn"
		_, err = s.UpdateCompany(ctx, id, CompanyUpdate{Website: &website, Stage: model.StageWebsiteFound})
		require.NoError(t, err)

		_, err = s.UpdateCompany(ctx, id, CompanyUpdate{Validation: &model.Validation{Score: 82, Provider: "deepseek"}, Stage: model.StageCompleted})
		require.NoError(t, err)

		_, err = s.UpdateCompany(ctx, id, CompanyUpdate{Stage: model.StageNamesFound})
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrStageRegression)

		got, err := s.GetCompany(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StageCompleted, got.Stage)
		assert.Equal(t, website, got.Website)
		require.NotNil(t, got.Validation)
		assert.Equal(t, 82, got.Validation.Score)
	})

	t.Run("UpdateCompanyNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.UpdateCompany(context.Background(), "missing", CompanyUpdate{})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("StageRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)

		run, err := s.CreateStageRun(ctx, sess.ID, 2, true)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		done := time.Now().UTC()
		run.Status = model.RunStatusCompleted
		run.CompletedAt = &done
		run.DurationSecs = 1.5
		run.Result = json.RawMessage(`{"total":3,"found":1,"notFound":2}`)
		require.NoError(t, s.CompleteStageRun(ctx, run))

		runs, err := s.ListStageRuns(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 2, runs[0].Stage)
		assert.True(t, runs[0].Force)
		assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
		assert.NotNil(t, runs[0].CompletedAt)
		assert.JSONEq(t, `{"total":3,"found":1,"notFound":2}`, string(runs[0].Result))
	})

	t.Run("APICallLog", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.RecordAPICall(ctx, &model.APICall{SessionID: "s1", Service: "perplexity", Operation: "stage2", Status: model.CallStatusSuccess, DurationMs: 120, InputTokens: 10, OutputTokens: 20}))
		require.NoError(t, s.RecordAPICall(ctx, &model.APICall{SessionID: "s2", Service: "deepseek", Operation: "stage4", Status: model.CallStatusRateLimited, HTTPStatus: 429}))

		calls, err := s.ListAPICalls(ctx, "s2", 0)
		require.NoError(t, err)
		require.Len(t, calls, 1)
		assert.Equal(t, 429, calls[0].HTTPStatus)
		assert.Equal(t, model.CallStatusRateLimited, calls[0].Status)

		all, err := s.ListAPICalls(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("ResponseCache", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetCachedResponse(ctx, "k1", []byte(`{"a":1}`), time.Hour))
		require.NoError(t, s.SetCachedResponse(ctx, "k1", []byte(`{"a":2}`), time.Hour))
		require.NoError(t, s.SetCachedResponse(ctx, "old", []byte("x"), -time.Hour))

		data, err := s.GetCachedResponse(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, `{"a":2}`, string(data))

		data, err = s.GetCachedResponse(ctx, "old")
		require.NoError(t, err)
		assert.Nil(t, data)

		n, err := s.DeleteExpiredResponses(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		keep := seedSession(t, s)
		drop := seedSession(t, s)
		_, err := s.InsertCompanies(ctx, []model.Company{
			{SessionID: keep.ID, Name: "Keep Co"},
			{SessionID: drop.ID, Name: "Drop Co"},
		})
		require.NoError(t, err)

		require.NoError(t, s.DeleteSession(ctx, drop.ID))

		n, err := s.CountCompanies(ctx, CompanyFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = s.GetSession(ctx, drop.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
		assert.True(t, apperr.Is(s.DeleteSession(ctx, drop.ID), apperr.KindNotFound))
	})

	t.Run("ClearAll", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		sess := seedSession(t, s)
		_, err := s.InsertCompanies(ctx, []model.Company{{SessionID: sess.ID, Name: "Acme"}})
		require.NoError(t, err)
		_, err = s.CreateStageRun(ctx, sess.ID, 1, false)
		require.NoError(t, err)

		tables, err := s.ClearAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"stage_runs", "api_calls", "companies", "session_queries", "sessions", "response_cache"}, tables)

		companies, err := s.ListCompanies(ctx, CompanyFilter{})
		require.NoError(t, err)
		assert.Empty(t, companies)
		sessions, err := s.ListSessions(ctx, SessionFilter{})
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLiteStore_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestApplyUpdate_KeepsStageWhenEmpty(t *testing.T) {
	c := &model.Company{Stage: model.StageContactsFound}
	email := "sales@acme.cn"
	score, err := applyUpdate(c, CompanyUpdate{Email: &email})
	require.NoError(t, err)
	assert.Nil(t, score)
	assert.Equal(t, model.StageContactsFound, c.Stage)
	assert.Equal(t, email, c.Email)
}

func TestPrepareCompany(t *testing.T) {
	now := time.Now().UTC()
	c := &model.Company{SessionID: "s1", Name: "  Acme   Tools ", Website: "https://acme.cn"}
	require.NoError(t, prepareCompany(c, "id-1", now))
	assert.Equal(t, "id-1", c.ID)
	assert.Equal(t, "acme tools", c.NameKey)
	assert.Equal(t, model.StageWebsiteFound, c.Stage)

	assert.Error(t, prepareCompany(&model.Company{Name: "orphan"}, "id-2", now))
}

func TestListAllCompanies_Pages(t *testing.T) {
	s := newTestSQLite(t)
	sess := seedSession(t, s)
	ctx := context.Background()

	companies := make([]model.Company, 0, defaultCompanyLimit+7)
	for i := range defaultCompanyLimit + 7 {
		companies = append(companies, model.Company{SessionID: sess.ID, Name: fmt.Sprintf("Company %04d", i)})
	}
	n, err := s.InsertCompanies(ctx, companies)
	require.NoError(t, err)
	require.Equal(t, defaultCompanyLimit+7, n)

	all, err := ListAllCompanies(ctx, s, CompanyFilter{SessionID: sess.ID, Limit: 3, Offset: 40})
	require.NoError(t, err)
	assert.Len(t, all, defaultCompanyLimit+7)

	ids := make(map[string]bool, len(all))
	for _, c := range all {
		ids[c.ID] = true
	}
	assert.Len(t, ids, len(all), "pages do not overlap")
}
