// Package pipeline runs one stage at a time against a session and keeps the
// session and its stage-run history consistent with the outcome.
package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/metrics"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/store"
)

// Stager runs the four stages. *stage.Processor satisfies it.
type Stager interface {
	Discover(ctx context.Context, sessionID string, force bool) (*model.Stage1Result, error)
	FindWebsites(ctx context.Context, sessionID string, force bool) (*model.Stage2Result, error)
	FindContacts(ctx context.Context, sessionID string, force bool) (*model.Stage3Result, error)
	Validate(ctx context.Context, sessionID string, force bool) (*model.Stage4Result, error)
}

// Options controls a single stage invocation.
type Options struct {
	Force bool
	// Timeout bounds the stage. Zero uses the pipeline default; records not
	// reached by then are left for the next run.
	Timeout time.Duration
}

// Outcome reports a finished stage invocation.
type Outcome struct {
	Stage    int           `json:"stage"`
	RunID    string        `json:"run_id"`
	Result   any           `json:"result"`
	Duration time.Duration `json:"-"`
	// Fatal is false for failures that leave the session usable, such as a
	// Stage 4 run where every AI call failed.
	Fatal bool  `json:"fatal"`
	Err   error `json:"-"`
}

// Seconds returns the duration in seconds.
func (o *Outcome) Seconds() float64 { return o.Duration.Seconds() }

// Partial reports whether the stage stopped early at its deadline.
func (o *Outcome) Partial() bool {
	switch r := o.Result.(type) {
	case *model.Stage1Result:
		return r != nil && r.Partial
	case *model.Stage2Result:
		return r != nil && r.Partial
	case *model.Stage3Result:
		return r != nil && r.Partial
	case *model.Stage4Result:
		return r != nil && r.Partial
	}
	return false
}

// Pipeline dispatches stage invocations.
type Pipeline struct {
	store   store.Store
	stages  Stager
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records stage runs on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDefaultTimeout sets the timeout used when Options.Timeout is zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

// New creates a Pipeline.
func New(st store.Store, stages Stager, opts ...Option) *Pipeline {
	p := &Pipeline{store: st, stages: stages}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RunStage runs stage n (1-4) for a session. Invalid stages and unknown
// sessions fail before anything is recorded. Otherwise a stage run is
// recorded and the returned Outcome is non-nil; a stage failure is returned
// both as the error and in Outcome.Err.
func (p *Pipeline) RunStage(ctx context.Context, sessionID string, n int, opts Options) (*Outcome, error) {
	if n < 1 || n > 4 {
		return nil, apperr.Validation("stage must be between 1 and 4, got %d", n)
	}
	sess, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("session_id", sessionID), zap.Int("stage", n), zap.Bool("force", opts.Force))

	run, err := p.store.CreateStageRun(ctx, sessionID, n, opts.Force)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create stage run")
	}
	if err := p.store.UpdateSessionStatus(ctx, sessionID, model.SessionStatusProcessing, sess.LastStage); err != nil {
		return nil, eris.Wrap(err, "pipeline: mark session processing")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.timeout
	}
	stageCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Info("pipeline: stage starting")
	start := time.Now()
	result, stageErr := p.dispatch(stageCtx, sessionID, n, opts.Force)
	out := &Outcome{
		Stage:    n,
		RunID:    run.ID,
		Result:   result,
		Duration: time.Since(start),
		Err:      stageErr,
		Fatal:    stageErr != nil && n != 4,
	}

	// Bookkeeping must land even when the caller's context has ended.
	wctx := context.WithoutCancel(ctx)
	if err := p.finish(wctx, sess, run, out); err != nil {
		return out, err
	}
	p.observe(out)

	if stageErr != nil {
		log.Warn("pipeline: stage failed",
			zap.Bool("fatal", out.Fatal),
			zap.Duration("duration", out.Duration),
			zap.Error(stageErr),
		)
		return out, stageErr
	}
	log.Info("pipeline: stage complete",
		zap.Duration("duration", out.Duration),
		zap.Bool("partial", out.Partial()),
	)
	return out, nil
}

func (p *Pipeline) dispatch(ctx context.Context, sessionID string, n int, force bool) (any, error) {
	switch n {
	case 1:
		return result(p.stages.Discover(ctx, sessionID, force))
	case 2:
		return result(p.stages.FindWebsites(ctx, sessionID, force))
	case 3:
		return result(p.stages.FindContacts(ctx, sessionID, force))
	default:
		return result(p.stages.Validate(ctx, sessionID, force))
	}
}

// result keeps a nil stage result an untyped nil.
func result[T any](r *T, err error) (any, error) {
	if r == nil {
		return nil, err
	}
	return r, err
}

// finish completes the run record and moves the session status.
func (p *Pipeline) finish(ctx context.Context, sess *model.Session, run *model.StageRun, out *Outcome) error {
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.DurationSecs = out.Duration.Seconds()
	run.Status = model.RunStatusCompleted
	if out.Err != nil {
		run.Status = model.RunStatusFailed
		run.Error = out.Err.Error()
	}
	if out.Result != nil {
		b, err := json.Marshal(out.Result)
		if err != nil {
			return eris.Wrap(err, "pipeline: encode stage result")
		}
		run.Result = b
	}
	if err := p.store.CompleteStageRun(ctx, run); err != nil {
		return eris.Wrap(err, "pipeline: complete stage run")
	}

	status, last := model.SessionStatusProcessing, max(sess.LastStage, out.Stage)
	switch {
	case out.Err != nil && out.Fatal:
		status, last = model.SessionStatusFailed, sess.LastStage
	case out.Err != nil:
		// A non-fatal failure leaves the session as it was before the run.
		status, last = sess.Status, sess.LastStage
		if status == "" {
			status = model.SessionStatusProcessing
		}
	case out.Stage == 4:
		status = model.SessionStatusCompleted
	}
	return eris.Wrap(p.store.UpdateSessionStatus(ctx, sess.ID, status, last), "pipeline: update session status")
}

func (p *Pipeline) observe(out *Outcome) {
	if p.metrics == nil {
		return
	}
	stage := strconv.Itoa(out.Stage)
	status := string(model.RunStatusCompleted)
	if out.Err != nil {
		status = string(model.RunStatusFailed)
	}
	p.metrics.StageRuns.WithLabelValues(stage, status).Inc()
	p.metrics.StageDuration.WithLabelValues(stage).Observe(out.Duration.Seconds())

	add := func(label string, n int) {
		if n > 0 {
			p.metrics.StageRecords.WithLabelValues(stage, label).Add(float64(n))
		}
	}
	switch r := out.Result.(type) {
	case *model.Stage1Result:
		if r != nil {
			add("found", r.CompaniesFound)
			add("duplicate", r.DuplicatesSkipped)
			add("error", r.QueriesFailed)
		}
	case *model.Stage2Result:
		if r != nil {
			add("found", r.Found)
			add("not_found", r.NotFound)
			add("error", r.Errors)
			add("retry_found", r.RetryFound)
		}
	case *model.Stage3Result:
		if r != nil {
			add("found", r.ContactsFound)
			add("not_found", r.SitesProcessed-r.ContactsFound-r.Errors)
			add("error", r.Errors)
			add("retry_found", r.RetryFound)
		}
	case *model.Stage4Result:
		if r != nil {
			add("validated", r.ValidatedCount)
			add("rejected", r.RejectedCount)
			add("fallback", r.FallbackCount)
		}
	}
}
