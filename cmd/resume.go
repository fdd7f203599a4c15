package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-housing/sitescreen-cli/internal/scoring"
	"github.com/meridian-housing/sitescreen-cli/internal/screen"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Resume an interrupted screening run",
	Long:  "Re-derives the surviving set from persisted phase results and continues from the first incomplete phase. Completed phases are not re-executed.",
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
		result, err := screener.Resume(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "resume")
		}

		printScreenResult(os.Stdout, result, screenTop)
		return nil
	},
}

func init() {
	resumeCmd.Flags().IntVar(&screenTop, "top", 20, "number of ranked sites to print (0 = all)")
	rootCmd.AddCommand(resumeCmd)
}
