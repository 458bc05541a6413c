package cmd

import (
	"github.com/spf13/cobra"

	"cryptoLedgerBot/internal/adapters/logger"
	"cryptoLedgerBot/internal/adapters/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Inspect the trading bot's double-entry ledger",
	Long: `Ledgerctl queries the SQLite ledger the bot writes while trading.

It provides tools for:
  - Printing the trial balance per scope
  - Listing quarantined suspense entries awaiting reconciliation
  - Browsing an account's journal history
  - Summarizing realized PnL and fees per trading day
  - Reviewing position sessions`,
}

var (
	dbPath          string
	scopeMode       string
	settlementAsset string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./data/ledger.db", "path to the SQLite ledger DB")
	rootCmd.PersistentFlags().StringVarP(&scopeMode, "scope", "s", "TESTNET", "scope mode to query (TESTNET, PRODUCTION, ...)")
	rootCmd.PersistentFlags().StringVar(&settlementAsset, "settlement", "USDT", "settlement asset the books are valued in")
}

// openRepo opens the ledger database for read queries. Log output is kept to
// warnings so it does not interleave with the printed tables.
func openRepo() (*sqlite.Repository, error) {
	return sqlite.NewRepository(sqlite.Config{
		DBPath:          dbPath,
		Logger:          logger.NewStdLogger(logger.LevelWarn),
		SettlementAsset: settlementAsset,
	})
}
