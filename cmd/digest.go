package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadnexus/subiq/internal/export"
)

var digestOutFlag string

var digestCmd = &cobra.Command{
	Use:   "digest <run_id>",
	Short: "Export a run digest workbook",
	Long: `Export an XLSX digest for one run: a summary sheet counting
recommended actions and a per-sub_id detail sheet for operator review.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID := args[0]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return eris.Errorf("digest: run not found: %s", runID)
		}

		results, err := st.ListClassifications(ctx, runID)
		if err != nil {
			return err
		}

		out := digestOutFlag
		if out == "" {
			out = fmt.Sprintf("subiq-digest-%s.xlsx", run.RunDate.Format("2006-01-02"))
		}
		if err := export.WriteDigest(out, *run, results); err != nil {
			return err
		}

		fmt.Printf("Digest written to %s (%d sub_ids)\n", out, len(results))
		return nil
	},
}

func init() {
	digestCmd.Flags().StringVar(&digestOutFlag, "out", "", "output path (default subiq-digest-<date>.xlsx)")
	rootCmd.AddCommand(digestCmd)
}
