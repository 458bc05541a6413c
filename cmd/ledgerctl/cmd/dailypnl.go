package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var dailyPnLDays int

var dailyPnLCmd = &cobra.Command{
	Use:   "daily-pnl",
	Short: "Summarize realized PnL and fees per trading day",
	Args:  cobra.NoArgs,
	RunE:  runDailyPnL,
}

func init() {
	rootCmd.AddCommand(dailyPnLCmd)
	dailyPnLCmd.Flags().IntVarP(&dailyPnLDays, "days", "n", 30, "number of days to include")
}

func runDailyPnL(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	days, err := repo.DailyPnL(cmd.Context(), scopeMode, dailyPnLDays)
	if err != nil {
		return fmt.Errorf("query daily pnl: %w", err)
	}
	if len(days) == 0 {
		fmt.Println("No trading activity in the given scope.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTRADES\tWIN\tLOSS\tREALIZED PNL\tTRADING FEES\tFUNDING FEES")
	for _, d := range days {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			d.Date, d.TradeCount, d.WinCount, d.LossCount,
			d.RealizedPnL.String(), d.TradingFees.String(), d.FundingFees.String())
	}
	return w.Flush()
}
