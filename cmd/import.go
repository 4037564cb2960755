package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leadnexus/subiq/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import daily fact feed CSV files",
	Long: `Import one or more fact feed CSV files into the fact store.

Rows are keyed by (date, subid, vertical, traffic_type); re-importing a
day replaces its rows, so restated feeds are safe to load twice.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var total int64
		for _, path := range args {
			n, err := ingest.ImportFile(ctx, st, path)
			if err != nil {
				return err
			}
			zap.L().Info("imported", zap.String("file", path), zap.Int64("rows", n))
			total += n
		}

		fmt.Printf("Imported %d rows from %d file(s)\n", total, len(args))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
