package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var suspenseLimit int

var suspenseCmd = &cobra.Command{
	Use:   "suspense",
	Short: "List quarantined suspense entries awaiting reconciliation",
	Args:  cobra.NoArgs,
	RunE:  runSuspense,
}

func init() {
	rootCmd.AddCommand(suspenseCmd)
	suspenseCmd.Flags().IntVarP(&suspenseLimit, "limit", "n", 50, "maximum number of lines to show")
}

func runSuspense(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	lines, err := repo.SuspenseEntries(cmd.Context(), scopeMode, suspenseLimit)
	if err != nil {
		return fmt.Errorf("query suspense entries: %w", err)
	}
	if len(lines) == 0 {
		fmt.Println("No suspense entries. The books are clean.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tENTRY\tTYPE\tSIDE\tAMOUNT\tASSET\tDESCRIPTION")
	for _, l := range lines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.Time.Format("2006-01-02 15:04:05"), l.EntryID, l.Type, l.Side,
			l.Amount.String(), l.Asset, l.Description)
	}
	return w.Flush()
}
