package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/expand"
)

var topicCount int

var topicCmd = &cobra.Command{
	Use:   "topic <main-topic>",
	Short: "Create a session by expanding a topic into search queries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "topic")
		if err != nil {
			return err
		}
		defer env.Close()

		req := expand.Request{Topic: args[0]}
		if cmd.Flags().Changed("count") {
			req.TargetCount = &topicCount
		}

		res, err := env.Expander.CreateSession(ctx, req)
		if err != nil {
			return err
		}
		if res.Warning != nil {
			zap.L().Warn("topic expansion incomplete", zap.Error(res.Warning))
			fmt.Fprintln(os.Stderr, "warning:", res.Warning)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Session)
	},
}

func init() {
	topicCmd.Flags().IntVar(&topicCount, "count", 10, "number of search queries to generate (1-50)")
	rootCmd.AddCommand(topicCmd)
}
