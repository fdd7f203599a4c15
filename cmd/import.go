package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-housing/sitescreen-cli/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <batch-file>",
	Short: "Ingest and validate a batch file without screening it",
	Long:  "Parses an XLSX or CSV batch, maps headers, normalizes rows, and reports what would enter the pipeline. Nothing is persisted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, err := ingest.ReadBatch(args[0])
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("batch parsed",
			zap.String("path", args[0]),
			zap.Int("sites", len(batch.Sites)),
			zap.Int("invalid", len(batch.Invalid)),
		)

		fmt.Printf("%d site(s) parsed, %d invalid row(s).\n", len(batch.Sites), len(batch.Invalid))
		if len(batch.Invalid) > 0 {
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ROW\tSITE\tADDRESS\tREASON")
			for _, row := range batch.Invalid {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", row.RowNumber, row.SiteID, row.Address, row.Reason)
			}
			tw.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
