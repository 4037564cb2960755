package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/leadnexus/subiq/internal/model"
)

var (
	confirmByFlag   string
	confirmDateFlag string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <run_id> <subid>",
	Short: "Confirm a recommended action",
	Long: `Record that a human operator executed the action a run recommended
for a sub_id. Confirmation starts the outcome measurement clock; only
confirmed actions are ever evaluated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		runID, subID := args[0], args[1]

		actionDate := time.Now().UTC().Truncate(24 * time.Hour)
		if confirmDateFlag != "" {
			var err error
			actionDate, err = time.Parse("2006-01-02", confirmDateFlag)
			if err != nil {
				return eris.Wrapf(err, "confirm: parse --date %q", confirmDateFlag)
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.ListClassifications(ctx, runID)
		if err != nil {
			return err
		}
		var match *model.ClassificationResult
		for i := range results {
			if results[i].SubID == subID {
				match = &results[i]
				break
			}
		}
		if match == nil {
			return eris.Errorf("confirm: run %s has no classification for %s", runID, subID)
		}

		action := model.ActionRecord{
			ActionID:    uuid.NewString(),
			SubID:       subID,
			ActionType:  match.ActionType,
			ActionDate:  actionDate,
			Vertical:    match.Vertical,
			TrafficType: match.TrafficType,
			ConfirmedBy: confirmByFlag,
		}
		if err := st.CreateAction(ctx, action); err != nil {
			return err
		}

		fmt.Printf("Action %s confirmed: %s for %s on %s\n",
			action.ActionID, action.ActionType, subID, actionDate.Format("2006-01-02"))
		return nil
	},
}

func init() {
	confirmCmd.Flags().StringVar(&confirmByFlag, "by", "", "operator confirming the action")
	confirmCmd.Flags().StringVar(&confirmDateFlag, "date", "", "action date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(confirmCmd)
}
