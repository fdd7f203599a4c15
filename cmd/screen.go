package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
	"github.com/meridian-housing/sitescreen-cli/internal/scoring"
	"github.com/meridian-housing/sitescreen-cli/internal/screen"
)

var screenTop int

var screenCmd = &cobra.Command{
	Use:   "screen <batch-file>",
	Short: "Screen a batch of candidate sites",
	Long:  "Runs the full elimination pipeline over an XLSX or CSV batch, persists the audit trail, and prints the funnel summary with ranked survivors.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		analyzers, err := screen.Setup(cfg)
		if err != nil {
			return err
		}
		engine, err := scoring.NewEngine(cfg.Scoring)
		if err != nil {
			return eris.Wrap(err, "scoring config")
		}

		screener := screen.New(cfg, st, analyzers, engine)
		result, err := screener.Run(ctx, args[0])
		if err != nil {
			if result != nil && result.Run != nil {
				zap.L().Error("screen failed",
					zap.String("run_id", result.Run.ID),
					zap.Error(err),
				)
			}
			return eris.Wrap(err, "screen")
		}

		printScreenResult(os.Stdout, result, screenTop)
		return nil
	},
}

func printScreenResult(w io.Writer, result *model.ScreenResult, top int) {
	fmt.Fprintf(w, "Run %s (%s)\n\n", result.Run.ID, result.Run.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PHASE\tSTATUS\tENTERING\tELIMINATED\tSURVIVING\tFLAGS")
	for _, pr := range result.Phases {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
			pr.Phase, pr.Status, pr.Entering, pr.Eliminated, pr.Surviving, len(pr.Flags),
		)
	}
	tw.Flush()

	if n := len(result.InvalidRows); n > 0 {
		fmt.Fprintf(w, "\n%d invalid input row(s) set aside.\n", n)
	}
	if n := len(result.ManualReview); n > 0 {
		fmt.Fprintf(w, "%d site(s) flagged for manual review.\n", n)
	}

	if len(result.Scored) == 0 {
		fmt.Fprintln(w, "\nNo sites survived screening.")
		return
	}

	fmt.Fprintf(w, "\nTop ranked sites:\n")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSITE\tCOMPOSITE\tPRICE\tMARKET\tACREAGE\tLOCATION")
	for i, sc := range result.Scored {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\n",
			sc.Rank, sc.SiteID, sc.Composite,
			sc.Sub.Price, sc.Sub.MarketTier, sc.Sub.Acreage, sc.Sub.Location,
		)
	}
	tw.Flush()
}

func init() {
	screenCmd.Flags().IntVar(&screenTop, "top", 20, "number of ranked sites to print (0 = all)")
	rootCmd.AddCommand(screenCmd)
}
