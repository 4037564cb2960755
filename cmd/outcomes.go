package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadnexus/subiq/internal/outcome"
)

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Measure outcomes of confirmed actions",
}

var outcomesEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate every confirmed action whose post-period has elapsed",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runner := outcome.NewRunner(st, cfg.Outcome)
		n, err := runner.EvaluateDue(ctx, time.Now().UTC())
		if err != nil {
			return eris.Wrap(err, "outcomes evaluate")
		}

		fmt.Printf("Evaluated %d action(s)\n", n)
		return nil
	},
}

var outcomesShowCmd = &cobra.Command{
	Use:   "show <action_id>",
	Short: "Show the measured outcome for one action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		out, err := st.GetOutcome(ctx, args[0])
		if err != nil {
			return err
		}
		if out == nil {
			return eris.Errorf("no outcome recorded for action %s", args[0])
		}

		fmt.Printf("Action:      %s (%s)\n", out.ActionID, out.SubID)
		fmt.Printf("Status:      %s\n", out.Status)
		fmt.Printf("Windows:     pre %s to %s, post through %s\n",
			out.PreStart.Format("2006-01-02"), out.PreEnd.Format("2006-01-02"), out.PostEnd.Format("2006-01-02"))
		fmt.Printf("Cohort size: %d\n", out.CohortSize)
		if out.DiDEstimate != nil {
			fmt.Printf("Quality DiD: %+.4f (%s)\n", *out.DiDEstimate, out.OutcomeLabel)
		}
		if out.RevenueImpact != nil {
			fmt.Printf("Revenue DiD: %+.2f/day\n", *out.RevenueImpact)
		}
		return nil
	},
}

func init() {
	outcomesCmd.AddCommand(outcomesEvaluateCmd)
	outcomesCmd.AddCommand(outcomesShowCmd)
	rootCmd.AddCommand(outcomesCmd)
}
