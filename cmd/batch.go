package main

import (
	"context"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/pipeline"
	"github.com/sells-group/topic-enricher/internal/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run stages across many sessions",
	Long: "Runs a range of stages for each selected session. Sessions run concurrently; " +
		"stages within a session run in order and stop at the first fatal failure. " +
		"All outbound calls still pass through the shared gateway one at a time.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ids, _ := cmd.Flags().GetStringSlice("sessions")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		from, _ := cmd.Flags().GetInt("from")
		to, _ := cmd.Flags().GetInt("to")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		force, _ := cmd.Flags().GetBool("force")

		if from < 0 || from > 4 || to < 1 || to > 4 || (from > 0 && from > to) {
			return apperr.Validation("invalid stage range %d..%d", from, to)
		}

		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := selectSessions(ctx, env.Store, ids, model.SessionStatus(status), limit)
		if err != nil {
			return err
		}

		sum, err := runBatch(ctx, sessions, batchOptions{From: from, To: to, Concurrency: concurrency},
			func(ctx context.Context, sessionID string, n int) (*pipeline.Outcome, error) {
				return env.Pipeline.RunStage(ctx, sessionID, n, pipeline.Options{Force: force})
			})
		if err != nil {
			return err
		}
		if sum.Failed > 0 {
			return eris.Errorf("batch: %d of %d sessions failed", sum.Failed, sum.Sessions)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringSlice("sessions", nil, "session IDs to process (default: select by --status)")
	batchCmd.Flags().String("status", string(model.SessionStatusCreated), "select sessions with this status")
	batchCmd.Flags().Int("limit", 50, "max number of sessions to select by status")
	batchCmd.Flags().Int("from", 0, "first stage to run (0: the stage after each session's last stage)")
	batchCmd.Flags().Int("to", 4, "last stage to run")
	batchCmd.Flags().Int("concurrency", 2, "sessions processed at once")
	batchCmd.Flags().Bool("force", false, "rerun stages that already completed")
	rootCmd.AddCommand(batchCmd)
}

// selectSessions loads the named sessions, or lists sessions by status when
// no IDs are given.
func selectSessions(ctx context.Context, st store.Store, ids []string, status model.SessionStatus, limit int) ([]model.Session, error) {
	if len(ids) == 0 {
		sessions, err := st.ListSessions(ctx, store.SessionFilter{Status: status, Limit: limit})
		return sessions, eris.Wrap(err, "batch: list sessions")
	}
	sessions := make([]model.Session, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		sess, err := st.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// stageFunc runs stage n for a session.
type stageFunc func(ctx context.Context, sessionID string, n int) (*pipeline.Outcome, error)

type batchOptions struct {
	// From is the first stage; 0 resumes after each session's LastStage.
	From        int
	To          int
	Concurrency int
}

type batchSummary struct {
	Sessions  int
	Succeeded int64
	Failed    int64
	StagesRun int64
}

// runBatch runs the stage range for each session, several sessions at once.
// A fatal stage failure stops that session only.
func runBatch(ctx context.Context, sessions []model.Session, opts batchOptions, run stageFunc) (batchSummary, error) {
	sum := batchSummary{Sessions: len(sessions)}
	if len(sessions) == 0 {
		zap.L().Info("no sessions to process")
		return sum, nil
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("sessions", len(sessions)),
		zap.Int("from", opts.From),
		zap.Int("to", opts.To),
		zap.Int("concurrency", opts.Concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	var succeeded, failed, stages atomic.Int64

	for _, sess := range sessions {
		g.Go(func() error {
			log := zap.L().With(zap.String("session_id", sess.ID))

			start := opts.From
			if start == 0 {
				start = sess.LastStage + 1
			}
			for n := start; n <= opts.To; n++ {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				out, err := run(gctx, sess.ID, n)
				if out != nil {
					stages.Add(1)
				}
				if err != nil && (out == nil || out.Fatal) {
					failed.Add(1)
					log.Error("batch: session stopped", zap.Int("stage", n), zap.Error(err))
					return nil
				}
				if err != nil {
					log.Warn("batch: stage finished with errors", zap.Int("stage", n), zap.Error(err))
				}
			}
			succeeded.Add(1)
			return nil
		})
	}

	err := g.Wait()
	sum.Succeeded = succeeded.Load()
	sum.Failed = failed.Load()
	sum.StagesRun = stages.Load()
	if err != nil {
		return sum, eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
		zap.Int64("stages_run", sum.StagesRun),
	)
	return sum, nil
}
