package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Review position sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "maximum number of sessions to show")
}

func runSessions(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	sessions, err := repo.FindSessions(cmd.Context(), scopeMode, sessionsLimit)
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No position sessions in the given scope.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPENED\tSYMBOL\tSIDE\tSTATUS\tQTY\tMAX QTY\tTRADES\tPNL\tFEES\tCLOSED")
	for _, s := range sessions {
		closed := ""
		if !s.ClosedAt.IsZero() {
			closed = s.ClosedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			s.OpenedAt.Format("2006-01-02 15:04:05"), s.Symbol, s.Side, s.Status,
			s.Quantity.String(), s.MaxQty.String(), s.TradeCount,
			s.RealizedPnL.String(), s.TotalCommission.String(), closed)
	}
	return w.Flush()
}
