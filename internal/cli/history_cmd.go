package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/pipeconfig/internal/history"
)

var (
	historyDB     string
	historyLimit  int
	historyBuilds bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded compilations and builds",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent compilations (or builds with --builds)",
	Args:  maxArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(historyDB, func(db *history.DB) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if historyBuilds {
				builds, err := db.ListBuilds(historyLimit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tTIME\tCOMMAND\tRESULT\tDURATION")
				for _, b := range builds {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%dms\n", b.ID, b.Timestamp, b.Command, b.Summary, b.DurationMs)
				}
				return w.Flush()
			}

			runs, err := db.ListCompiles(historyLimit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tTIME\tCONFIG\tOUTCOME\tRULES\tFINGERPRINT")
			for _, r := range runs {
				fp := r.Fingerprint
				if len(fp) > 12 {
					fp = fp[:12]
				}
				if fp == "" {
					fp = "-"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Timestamp, r.ConfigPath, r.Outcome, r.Rules, fp)
			}
			return w.Flush()
		})
	},
}

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all recorded history (destructive!)",
	Args:  maxArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(historyDB, func(db *history.DB) error {
			if err := db.Reset(); err != nil {
				return err
			}
			cmd.Printf("History cleared (%s).\n", db.Path())
			return nil
		})
	},
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyDB, "db", "", "history database path (default ~/.pipeconfig/history.db)")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show (0 for all)")
	historyListCmd.Flags().BoolVar(&historyBuilds, "builds", false, "list make runs instead of compilations")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyResetCmd)
}
