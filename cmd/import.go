package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/topic-enricher/internal/export"
	"github.com/sells-group/topic-enricher/internal/stage"
)

var importCmd = &cobra.Command{
	Use:   "import <session-id> <file.xlsx>",
	Short: "Seed a session with companies from a spreadsheet",
	Long: "Reads company name, website and email columns from an XLSX sheet and inserts them " +
		"into an existing session. Duplicates, marketplace websites and invalid emails are skipped.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sheet, _ := cmd.Flags().GetString("sheet")
		index, _ := cmd.Flags().GetInt("sheet-index")

		rows, err := export.ReadSeedXLSX(args[1], export.SeedOptions{SheetName: sheet, SheetIndex: index})
		if err != nil {
			return eris.Wrap(err, "import")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var filter *stage.MarketplaceFilter
		if len(cfg.Stages.Marketplaces) > 0 {
			filter = stage.NewMarketplaceFilter(cfg.Stages.Marketplaces)
		}
		res, err := export.Seed(ctx, st, args[0], rows, filter)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("session_id", args[0]),
			zap.String("file", args[1]),
			zap.Int("inserted", res.Inserted),
		)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	importCmd.Flags().String("sheet", "", "sheet name (default: first sheet)")
	importCmd.Flags().Int("sheet-index", 0, "sheet index when --sheet is not set")
	rootCmd.AddCommand(importCmd)
}
