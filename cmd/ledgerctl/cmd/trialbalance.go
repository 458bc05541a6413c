package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var trialBalanceCmd = &cobra.Command{
	Use:   "trial-balance",
	Short: "Print the running balance of every active account",
	Args:  cobra.NoArgs,
	RunE:  runTrialBalance,
}

func init() {
	rootCmd.AddCommand(trialBalanceCmd)
}

func runTrialBalance(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	balances, err := repo.TrialBalance(cmd.Context(), scopeMode)
	if err != nil {
		return fmt.Errorf("query trial balance: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tBALANCE\tLAST ENTRY")
	total := decimal.Zero
	for _, b := range balances {
		last := ""
		if !b.LastEntryAt.IsZero() {
			last = b.LastEntryAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.AccountID, b.Balance.String(), last)
		total = total.Add(b.Balance)
	}
	fmt.Fprintf(w, "TOTAL\t%s\t\n", total.String())
	return w.Flush()
}
