package main

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/config"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/pipeline"
)

// stageRecorder records the stages run per session and fails where told.
type stageRecorder struct {
	mu    sync.Mutex
	calls map[string][]int
	fail  map[string]int // session -> stage that fails
	fatal bool
}

func (r *stageRecorder) run(_ context.Context, sessionID string, n int) (*pipeline.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string][]int)
	}
	r.calls[sessionID] = append(r.calls[sessionID], n)
	out := &pipeline.Outcome{Stage: n, RunID: "run"}
	if r.fail[sessionID] == n {
		err := apperr.Upstream(errors.New("boom"), "stage failed")
		out.Err = err
		out.Fatal = r.fatal
		return out, err
	}
	return out, nil
}

func TestRunBatch_RunsRangeInOrder(t *testing.T) {
	rec := &stageRecorder{}
	sessions := []model.Session{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	sum, err := runBatch(context.Background(), sessions, batchOptions{From: 1, To: 3, Concurrency: 2}, rec.run)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Sessions)
	assert.Equal(t, int64(3), sum.Succeeded)
	assert.Equal(t, int64(0), sum.Failed)
	assert.Equal(t, int64(9), sum.StagesRun)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, []int{1, 2, 3}, rec.calls[id])
	}
}

func TestRunBatch_ResumesAfterLastStage(t *testing.T) {
	rec := &stageRecorder{}
	sessions := []model.Session{{ID: "fresh"}, {ID: "half", LastStage: 2}, {ID: "done", LastStage: 4}}

	sum, err := runBatch(context.Background(), sessions, batchOptions{To: 4, Concurrency: 1}, rec.run)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, rec.calls["fresh"])
	assert.Equal(t, []int{3, 4}, rec.calls["half"])
	assert.Empty(t, rec.calls["done"])
	assert.Equal(t, int64(3), sum.Succeeded)
}

func TestRunBatch_FatalStopsSession(t *testing.T) {
	rec := &stageRecorder{fail: map[string]int{"a": 2}, fatal: true}
	sessions := []model.Session{{ID: "a"}, {ID: "b"}}

	sum, err := runBatch(context.Background(), sessions, batchOptions{From: 1, To: 4, Concurrency: 2}, rec.run)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, rec.calls["a"])
	assert.Equal(t, []int{1, 2, 3, 4}, rec.calls["b"])
	assert.Equal(t, int64(1), sum.Succeeded)
	assert.Equal(t, int64(1), sum.Failed)
}

func TestRunBatch_NonFatalContinues(t *testing.T) {
	rec := &stageRecorder{fail: map[string]int{"a": 4}}
	sum, err := runBatch(context.Background(), []model.Session{{ID: "a", LastStage: 3}}, batchOptions{To: 4}, rec.run)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Succeeded)
	assert.Equal(t, int64(0), sum.Failed)
}

func TestRunBatch_PreflightErrorFails(t *testing.T) {
	run := func(context.Context, string, int) (*pipeline.Outcome, error) {
		return nil, apperr.NotFound("session", "gone")
	}
	sum, err := runBatch(context.Background(), []model.Session{{ID: "gone"}}, batchOptions{From: 1, To: 2}, run)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(0), sum.StagesRun)
}

func TestRunBatch_Empty(t *testing.T) {
	sum, err := runBatch(context.Background(), nil, batchOptions{From: 1, To: 4}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Sessions)
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &stageRecorder{}

	_, err := runBatch(ctx, []model.Session{{ID: "a"}}, batchOptions{From: 1, To: 4}, rec.run)
	require.Error(t, err)
	assert.Empty(t, rec.calls["a"])
}

func TestSelectSessions(t *testing.T) {
	ctx := context.Background()
	cfg = &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "batch.db"),
	}}
	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	s1, err := st.CreateSession(ctx, "CNC machining", 5)
	require.NoError(t, err)
	s2, err := st.CreateSession(ctx, "injection molding", 5)
	require.NoError(t, err)
	require.NoError(t, st.UpdateSessionStatus(ctx, s2.ID, model.SessionStatusCompleted, 4))

	byStatus, err := selectSessions(ctx, st, nil, model.SessionStatusCreated, 10)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, s1.ID, byStatus[0].ID)

	byID, err := selectSessions(ctx, st, []string{s2.ID, " ", s1.ID}, "", 0)
	require.NoError(t, err)
	ids := []string{byID[0].ID, byID[1].ID}
	sort.Strings(ids)
	want := []string{s1.ID, s2.ID}
	sort.Strings(want)
	assert.Equal(t, want, ids)

	_, err = selectSessions(ctx, st, []string{"missing"}, "", 0)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
