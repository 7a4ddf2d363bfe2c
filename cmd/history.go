package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alivesay/squire/internal/ledger"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent daemon runs",
		Long: `Lists the newest entries of the run ledger: published and failed title lists
and cached item lists.`,
		Example: `  squire history --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := ledger.Open(a.cfg.Ledger.Path)
			if err != nil {
				return err
			}
			defer runs.Close()

			entries, err := runs.Latest(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tKIND\tLIST\tSTATUS\tCOUNT\tITEMS\tDETAIL")
			for _, e := range entries {
				items := "-"
				if e.HasItemList {
					items = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime), e.Kind, e.CorrelationKey, e.Status, e.RecordCount, items, e.Detail)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of entries to show")

	return cmd
}
