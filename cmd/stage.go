package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/topic-enricher/internal/apperr"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/pipeline"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Run or probe pipeline stages",
}

// -- stage run --

var stageRunCmd = &cobra.Command{
	Use:   "run <session-id> <stage>",
	Short: "Run one stage (1-4) for a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		n, err := strconv.Atoi(args[1])
		if err != nil {
			return apperr.Validation("stage must be a number, got %q", args[1])
		}

		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		force, _ := cmd.Flags().GetBool("force")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		out, err := env.Pipeline.RunStage(ctx, args[0], n, pipeline.Options{Force: force, Timeout: timeout})
		if out == nil {
			return err
		}
		if werr := writeOutcome(os.Stdout, out); werr != nil {
			return werr
		}
		if err != nil && out.Fatal {
			return eris.Wrapf(err, "stage %d", n)
		}
		return nil
	},
}

// -- stage probe --

var stageProbeCmd = &cobra.Command{
	Use:   "probe <query>",
	Short: "Run one discovery query without saving results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "stage")
		if err != nil {
			return err
		}
		defer env.Close()

		start := time.Now()
		companies, err := env.Processor.Probe(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "stage probe")
		}
		formatCompanies(os.Stdout, companies)
		fmt.Fprintf(os.Stderr, "%d companies in %s\n", len(companies), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	stageRunCmd.Flags().Bool("force", false, "rerun a stage that already completed")
	stageRunCmd.Flags().Duration("timeout", 0, "stage deadline (default from config)")

	stageCmd.AddCommand(stageRunCmd)
	stageCmd.AddCommand(stageProbeCmd)
	rootCmd.AddCommand(stageCmd)
}

// outcomeView is the printed form of a stage outcome.
type outcomeView struct {
	Stage    int     `json:"stage"`
	RunID    string  `json:"run_id"`
	Duration float64 `json:"duration"`
	Partial  bool    `json:"partial"`
	Result   any     `json:"result"`
	Error    string  `json:"error,omitempty"`
	Fatal    bool    `json:"fatal,omitempty"`
}

func writeOutcome(w io.Writer, out *pipeline.Outcome) error {
	v := outcomeView{
		Stage:    out.Stage,
		RunID:    out.RunID,
		Duration: out.Seconds(),
		Partial:  out.Partial(),
		Result:   out.Result,
	}
	if out.Err != nil {
		v.Error = out.Err.Error()
		v.Fatal = out.Fatal
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatCompanies writes a tabular list of companies to w.
func formatCompanies(out io.Writer, companies []model.Company) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTAGE\tWEBSITE\tEMAIL\tSCORE")
	_, _ = fmt.Fprintln(w, "----\t-----\t-------\t-----\t-----")
	for _, c := range companies {
		score := ""
		if c.Validation != nil {
			score = strconv.Itoa(c.Validation.Score)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(c.Name, 40),
			c.Stage,
			truncate(c.Website, 40),
			c.Email,
			score,
		)
	}
	_ = w.Flush()
}

// truncate shortens s to n runes, ending with "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
