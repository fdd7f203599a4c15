package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-housing/sitescreen-cli/internal/model"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect screening run history",
	Long:  "Commands for listing runs and viewing a run's funnel, eliminations, manual-review flags, and ranked sites.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List screening runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTATUS\tSITES\tBATCH\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Status, r.SiteCount, r.BatchPath, r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush()
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
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

		runID := args[0]
		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		out := struct {
			Run          *model.Run                `json:"run"`
			Phases       []model.PhaseResult       `json:"phases"`
			Eliminations []model.EliminationRecord `json:"eliminations,omitempty"`
			ManualReview []model.ManualReviewFlag  `json:"manual_review,omitempty"`
			InvalidRows  []model.InvalidRow        `json:"invalid_rows,omitempty"`
			Scored       []model.ScoredSite        `json:"scored,omitempty"`
		}{Run: run}

		if out.Phases, err = st.GetPhaseResults(ctx, runID); err != nil {
			return eris.Wrap(err, "runs show phases")
		}
		if out.Eliminations, err = st.GetEliminations(ctx, runID); err != nil {
			return eris.Wrap(err, "runs show eliminations")
		}
		if out.ManualReview, err = st.GetManualReview(ctx, runID); err != nil {
			return eris.Wrap(err, "runs show manual review")
		}
		if out.InvalidRows, err = st.GetInvalidRows(ctx, runID); err != nil {
			return eris.Wrap(err, "runs show invalid rows")
		}
		if out.Scored, err = st.GetScores(ctx, runID); err != nil {
			return eris.Wrap(err, "runs show scores")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 50, "maximum runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
