package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history <account-id>",
	Short: "Browse an account's journal history, newest first",
	Long: `Browse an account's journal history, newest first.

Examples:
  ledgerctl history ASSET:BINANCE_FUTURES:USDT
  ledgerctl history EXPENSE:FEE:TRADING:TAKER -n 20`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of lines to show")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "number of lines to skip")
}

func runHistory(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	lines, err := repo.EntriesByAccount(cmd.Context(), args[0], scopeMode, historyLimit, historyOffset)
	if err != nil {
		return fmt.Errorf("query account history: %w", err)
	}
	if len(lines) == 0 {
		fmt.Println("No entries for this account in the given scope.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tENTRY\tTYPE\tSIDE\tAMOUNT\tASSET\tVALUE\tDESCRIPTION")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Time.Format("2006-01-02 15:04:05"), l.EntryID, l.Type, l.Side,
			l.Amount.String(), l.Asset, l.SettlementValue.String(), l.Description)
	}
	return w.Flush()
}
