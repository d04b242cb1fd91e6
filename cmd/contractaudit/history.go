package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"contractaudit/internal/history"
	"contractaudit/internal/logging"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看最近的对账记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logging.Close(logger)

			store, err := history.NewStore(cfg.History.Path, cfg.History.MaxRuns, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(historyLimit)
			if err != nil {
				return err
			}
			stats, err := store.Stats()
			if err != nil {
				return err
			}

			if jsonReport {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]interface{}{"runs": runs, "stats": stats})
			}

			fmt.Printf("📊 %d runs recorded, %d clean, %d stored\n\n", stats.TotalRuns, stats.CleanRuns, stats.Stored)
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tSTARTED\tDURATION\tTOTAL\tRESULT")
			for _, r := range runs {
				result := "clean"
				switch {
				case r.Error != "":
					result = "error: " + r.Error
				case !r.Clean:
					result = "discrepancies"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					r.RunID,
					r.StartedAt.Local().Format(time.DateTime),
					r.Duration().Round(time.Millisecond),
					r.Total,
					result)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "显示条数")
	cmd.Flags().BoolVar(&jsonReport, "json", false, "以JSON格式输出")
	return cmd
}
