package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/topic-enricher/internal/cache"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage sessions",
	Long:  "Commands for listing, viewing, deleting, and tracking enrichment sessions.",
}

// -- sessions list --

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		sessions, err := st.ListSessions(ctx, store.SessionFilter{
			Status: model.SessionStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "sessions list")
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		formatSessionsList(os.Stdout, sessions)
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its queries and stage counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		counts, err := st.CountByStage(ctx, sess.ID)
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*model.Session
			StageCounts    model.StageCounts `json:"stage_counts"`
			TotalCompanies int               `json:"total_companies"`
		}{sess, counts, counts.Total()})
	},
}

// -- sessions delete --

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session with its queries, companies and stage runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteSession(ctx, args[0]); err != nil {
			return eris.Wrap(err, "sessions delete")
		}
		fmt.Fprintf(os.Stderr, "Deleted session %s\n", args[0])
		return nil
	},
}

// -- sessions clear-all --

var sessionsClearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Delete every session and empty the response cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return eris.New("clear-all deletes all data; pass --yes to confirm")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tables, err := st.ClearAll(ctx)
		if err != nil {
			return eris.Wrap(err, "sessions clear-all")
		}
		if cfg.Cache.Enabled && cfg.Redis.Addr != "" {
			rc, err := cache.New(ctx, cfg.Redis, st)
			if err != nil {
				return err
			}
			if err := rc.Clear(ctx); err != nil {
				return eris.Wrap(err, "sessions clear-all: cache")
			}
			if c, ok := rc.(*cache.RedisCache); ok {
				_ = c.Close()
			}
		}
		fmt.Fprintf(os.Stderr, "Cleared %s\n", strings.Join(tables, ", "))
		return nil
	},
}

// -- sessions progress --

var sessionsProgressCmd = &cobra.Command{
	Use:   "progress <session-id>",
	Short: "Show stage runs and company counts of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sess, err := st.GetSession(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "sessions progress")
		}
		counts, err := st.CountByStage(ctx, sess.ID)
		if err != nil {
			return eris.Wrap(err, "sessions progress")
		}
		runs, err := st.ListStageRuns(ctx, sess.ID)
		if err != nil {
			return eris.Wrap(err, "sessions progress")
		}
		formatProgress(os.Stdout, sess, counts, runs)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().String("status", "", "filter by status (created, processing, completed, failed)")
	sessionsListCmd.Flags().Int("limit", 50, "max number of sessions to display")

	sessionsClearAllCmd.Flags().Bool("yes", false, "confirm deleting all data")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsClearAllCmd)
	sessionsCmd.AddCommand(sessionsProgressCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSessionsList writes a tabular list of sessions to w.
func formatSessionsList(out io.Writer, sessions []model.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTOPIC\tSTATUS\tSTAGE\tQUERIES\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t-----\t-------\t-------")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(s.ID),
			truncate(s.Topic, 30),
			s.Status,
			s.LastStage,
			len(s.Queries),
			s.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatProgress writes the stage counts and run history of a session to w.
func formatProgress(out io.Writer, sess *model.Session, counts model.StageCounts, runs []model.StageRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Session:\t%s\n", sess.ID)
	_, _ = fmt.Fprintf(w, "Topic:\t%s\n", sess.Topic)
	_, _ = fmt.Fprintf(w, "Status:\t%s (last stage %d)\n", sess.Status, sess.LastStage)
	_, _ = fmt.Fprintf(w, "Companies:\t%d\n", counts.Total())
	for _, st := range []model.Stage{model.StageNamesFound, model.StageWebsiteFound, model.StageContactsFound, model.StageCompleted} {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", st, counts[st])
	}
	_ = w.Flush()

	if len(runs) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTAGE\tSTATUS\tFORCE\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---\t-----\t------\t-----\t-------\t--------\t-----")
	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = fmt.Sprintf("%.1fs", r.DurationSecs)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Stage,
			r.Status,
			r.Force,
			r.StartedAt.Format("2006-01-02 15:04:05"),
			dur,
			truncate(r.Error, 50),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
