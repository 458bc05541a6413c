package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List the chart of accounts",
	Args:  cobra.NoArgs,
	RunE:  runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	accounts, err := repo.KnownAccounts(cmd.Context())
	if err != nil {
		return fmt.Errorf("query accounts: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tTYPE\tVENUE\tASSET\tNAME")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Type, a.Venue, a.Asset, a.Name)
	}
	return w.Flush()
}
