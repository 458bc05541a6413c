package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptoLedgerBot/internal/utils"
)

var (
	exportLimit  int
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <account-id>",
	Short: "Export an account's journal history to CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "n", 10000, "maximum number of lines to export")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "ledger_export.csv", "output CSV file")
}

func runExport(cmd *cobra.Command, args []string) error {
	repo, err := openRepo()
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer repo.Close()

	lines, err := repo.EntriesByAccount(cmd.Context(), args[0], scopeMode, exportLimit, 0)
	if err != nil {
		return fmt.Errorf("query account history: %w", err)
	}
	if err := utils.WriteLedgerLinesToCSV(lines, exportOutput); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	fmt.Printf("Exported %d lines to %s\n", len(lines), exportOutput)
	return nil
}
