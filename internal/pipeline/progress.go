package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/topic-enricher/internal/model"
)

// Progress is a session's stage history and where its companies stand.
type Progress struct {
	SessionID string              `json:"session_id"`
	Status    model.SessionStatus `json:"status"`
	LastStage int                 `json:"last_stage"`
	Total     int                 `json:"total_companies"`
	Counts    model.StageCounts   `json:"stage_counts"`
	Runs      []model.StageRun    `json:"stage_runs"`
}

// Progress loads the stage runs and per-stage company counts of a session.
func (p *Pipeline) Progress(ctx context.Context, sessionID string) (*Progress, error) {
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	counts, err := p.store.CountByStage(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: count companies by stage")
	}
	runs, err := p.store.ListStageRuns(ctx, sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list stage runs")
	}
	if runs == nil {
		runs = []model.StageRun{}
	}
	return &Progress{
		SessionID: sess.ID,
		Status:    sess.Status,
		LastStage: sess.LastStage,
		Total:     counts.Total(),
		Counts:    counts,
		Runs:      runs,
	}, nil
}
