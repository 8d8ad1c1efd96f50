package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/topic-enricher/internal/export"
	"github.com/sells-group/topic-enricher/internal/model"
	"github.com/sells-group/topic-enricher/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session's companies as CSV, XLSX or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		formatFlag, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		stageFlag, _ := cmd.Flags().GetString("stage")

		format, err := export.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		filter := store.CompanyFilter{SessionID: args[0]}
		if stageFlag != "" {
			filter.Stage, err = model.ParseStage(stageFlag)
			if err != nil {
				return err
			}
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if _, err := st.GetSession(ctx, args[0]); err != nil {
			return eris.Wrap(err, "export")
		}
		companies, err := store.ListAllCompanies(ctx, st, filter)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		var w io.Writer = os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrapf(err, "export: create %s", outPath)
			}
			defer f.Close() //nolint:errcheck
			w = f
		} else if format == export.FormatXLSX {
			return eris.New("export: xlsx output requires --out")
		}

		if err := export.Write(w, format, companies); err != nil {
			return err
		}
		if outPath != "" {
			fmt.Fprintf(os.Stderr, "Wrote %d companies to %s\n", len(companies), outPath)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", export.FormatCSV, "output format (csv, xlsx, json)")
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	exportCmd.Flags().String("stage", "", "only companies at this stage")
	rootCmd.AddCommand(exportCmd)
}
