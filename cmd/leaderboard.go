package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/signalnine/skillbench/internal/store"
	"github.com/spf13/cobra"
)

var (
	flagLimit     int
	flagHistoryOf string
)

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show recorded skills ranked by overall score",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Results.Leaderboard == "" {
				return errors.New("results.leaderboard is not configured")
			}
			db, err := store.Open(cmd.Context(), cfg.Results.Leaderboard)
			if err != nil {
				return err
			}
			defer db.Close()

			var entries []store.Entry
			if flagHistoryOf != "" {
				entries, err = db.History(cmd.Context(), flagHistoryOf)
			} else {
				entries, err = db.Leaderboard(cmd.Context(), flagLimit)
			}
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No evaluations recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tSKILL\tSCORE\tGRADE\tTASKS\tWIN RATE\tCOST/USE\tMODEL\tDATE")
			for _, e := range entries {
				rank := "-"
				if e.Rank > 0 {
					rank = fmt.Sprintf("%d", e.Rank)
				}
				winRate := "untested"
				if e.QualityTested {
					winRate = fmt.Sprintf("%.0f%%", 100*e.WinRate)
				}
				fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%d/%d\t%s\t%s\t%s\t%s\n",
					rank, e.Skill, e.OverallScore, e.Grade, e.TasksPassed, e.TotalTasks,
					winRate, e.CostPerUse, e.Model, e.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "max skills to show (0 for all)")
	cmd.Flags().StringVar(&flagHistoryOf, "history", "", "show every evaluation of one skill instead")
	return cmd
}
