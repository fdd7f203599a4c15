package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/meridian-housing/sitescreen-cli/internal/geolookup"
	"github.com/meridian-housing/sitescreen-cli/internal/refdata"
)

var refdataCmd = &cobra.Command{
	Use:   "refdata",
	Short: "Manage reference datasets",
}

var refdataValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate all reference datasets",
	Long:  "Loads every dataset manifest and shapefile under the configured refdata directory and checks the attribute schema contract. Fails if any dataset an enabled phase depends on cannot be loaded.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		datasets := []string{
			refdata.DatasetQCT,
			refdata.DatasetDDA,
			refdata.DatasetResource,
			refdata.DatasetFlood,
			refdata.DatasetFire,
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DATASET\tVERSION\tFEATURES\tSTATUS")

		var failed bool
		for _, name := range datasets {
			set, err := refdata.Load(cfg.Refdata.Dir, name)
			if err != nil {
				failed = true
				fmt.Fprintf(tw, "%s\t-\t-\t%s\n", name, err)
				continue
			}
			idx := geolookup.NewIndex(set)
			fmt.Fprintf(tw, "%s\t%s\t%d\tok\n", idx.Dataset(), idx.Version(), idx.Size())
		}
		tw.Flush()

		if failed {
			return eris.New("one or more reference datasets failed validation")
		}
		return nil
	},
}

func init() {
	refdataCmd.AddCommand(refdataValidateCmd)
	rootCmd.AddCommand(refdataCmd)
}
