package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leadnexus/subiq/internal/model"
	"github.com/leadnexus/subiq/internal/store"
)

var (
	runsStatusFlag string
	runsLimitFlag  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List classification runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatusFlag),
			Limit:  runsLimitFlag,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tWINDOW\tSTATUS\tSUB_IDS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s to %s\t%s\t%d\n",
				r.ID, r.RunDate.Format("2006-01-02"),
				r.WindowStart.Format("2006-01-02"), r.WindowEnd.Format("2006-01-02"),
				r.Status, r.SubIDCount)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatusFlag, "status", "", "filter by status")
	runsCmd.Flags().IntVar(&runsLimitFlag, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(runsCmd)
}
