package utils

import (
	"encoding/csv"
	"os"
	"time"

	"cryptoLedgerBot/internal/domain"
)

// WriteLedgerLinesToCSV exports account history lines for spreadsheet-based
// reconciliation.
func WriteLedgerLinesToCSV(lines []domain.LedgerLine, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"time", "entry_id", "transaction_type", "account_id", "side", "amount", "asset", "settlement_value", "symbol", "description"})

	for _, l := range lines {
		writer.Write([]string{
			l.Time.Format(time.RFC3339),
			l.EntryID,
			string(l.Type),
			l.AccountID,
			string(l.Side),
			l.Amount.String(),
			l.Asset,
			l.SettlementValue.String(),
			l.Symbol,
			l.Description,
		})
	}
	return writer.Error()
}
