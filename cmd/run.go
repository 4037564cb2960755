package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadnexus/subiq/internal/pipeline"
	"github.com/leadnexus/subiq/internal/rules"
)

var runDateFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a classification run",
	Long: `Execute one classification run: aggregate the trailing fact window,
classify every sub_id against the configured thresholds, and persist the
results under a new run record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runDate := time.Now().UTC().Truncate(24 * time.Hour)
		if runDateFlag != "" {
			var err error
			runDate, err = time.Parse("2006-01-02", runDateFlag)
			if err != nil {
				return eris.Wrapf(err, "run: parse --date %q", runDateFlag)
			}
		}

		thresholds, err := rules.LoadThresholds(cfg.Rules.ThresholdsPath)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner := pipeline.NewRunner(st, rules.New(thresholds, cfg.Rules), *cfg)
		run, err := runner.Execute(ctx, runDate)
		if err != nil {
			return eris.Wrap(err, "run")
		}

		fmt.Printf("Run %s complete: %d sub_ids classified (window %s to %s)\n",
			run.ID, run.SubIDCount,
			run.WindowStart.Format("2006-01-02"), run.WindowEnd.Format("2006-01-02"))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDateFlag, "date", "", "run date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(runCmd)
}
