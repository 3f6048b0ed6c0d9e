package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/milhau/tradesim/internal/domain"
	"github.com/milhau/tradesim/internal/portfolio"
)

const (
	holdingsSheet     = "Holdings"
	summarySheet      = "Summary"
	transactionsSheet = "Transactions"
)

// WriteXLSX writes a workbook with the portfolio's holdings, its aggregate and its ledger.
func WriteXLSX(w io.Writer, p portfolio.Portfolio, txs []domain.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", holdingsSheet); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	for _, name := range []string{summarySheet, transactionsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}

	sheets := []struct {
		name string
		rows [][]any
	}{
		{holdingsSheet, append([][]any{holdingHeader}, holdingRows(p)...)},
		{summarySheet, [][]any{summaryHeader, summaryRow(p)}},
		{transactionsSheet, append([][]any{transactionHeader}, transactionRows(txs)...)},
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	for _, s := range sheets {
		for i, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				return fmt.Errorf("writing %s row %d: %w", s.name, i+1, err)
			}
		}
		last, err := excelize.CoordinatesToCellName(len(s.rows[0]), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(s.name, "A1", last, bold); err != nil {
			return fmt.Errorf("styling %s header: %w", s.name, err)
		}
		if err := f.SetPanes(s.name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freezing %s header: %w", s.name, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
