package export

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"
)

const (
	holdingsTab = "HOLDINGS"
	historyTab  = "HISTORY"
)

// SheetsWriter implements SheetWriter using the Google Sheets API.
type SheetsWriter struct {
	spreadsheetID string
	svc           *sheets.Service
}

// NewSheetsWriter creates a SheetsWriter authenticated with a service account JSON.
func NewSheetsWriter(ctx context.Context, spreadsheetID, credentialsJSON string) (*SheetsWriter, error) {
	creds, err := google.CredentialsFromJSON(
		ctx,
		[]byte(credentialsJSON),
		sheets.SpreadsheetsScope,
	)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	return &SheetsWriter{spreadsheetID: spreadsheetID, svc: svc}, nil
}

// Write ensures the holdings sheet exists, then clears and rewrites it.
func (w *SheetsWriter) Write(ctx context.Context, holdings [][]any) error {
	if _, err := w.ensureSheets(ctx, holdingsTab); err != nil {
		return err
	}

	_, err := w.svc.Spreadsheets.Values.Clear(
		w.spreadsheetID,
		holdingsTab+"!A:I",
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing %s: %w", holdingsTab, err)
	}

	_, err = w.svc.Spreadsheets.Values.Update(
		w.spreadsheetID,
		holdingsTab+"!A1",
		&sheets.ValueRange{Values: holdings},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("writing %s: %w", holdingsTab, err)
	}

	return nil
}

// AppendHistory ensures the history sheet exists, writes the header row if the sheet
// is new or empty, then appends the given rows.
func (w *SheetsWriter) AppendHistory(ctx context.Context, rows [][]any) error {
	meta, err := w.ensureSheets(ctx, historyTab)
	if err != nil {
		return err
	}

	existing, err := w.svc.Spreadsheets.Values.Get(w.spreadsheetID, historyTab+"!A1:A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("reading %s header: %w", historyTab, err)
	}

	if len(existing.Values) == 0 {
		_, err = w.svc.Spreadsheets.Values.Update(
			w.spreadsheetID,
			historyTab+"!A1",
			&sheets.ValueRange{Values: [][]any{historyHeader}},
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("writing %s header: %w", historyTab, err)
		}
		if err := w.formatHeader(ctx, meta[historyTab], int64(len(historyHeader))); err != nil {
			return fmt.Errorf("formatting %s: %w", historyTab, err)
		}
	}

	_, err = w.svc.Spreadsheets.Values.Append(
		w.spreadsheetID,
		historyTab+"!A:E",
		&sheets.ValueRange{Values: rows},
	).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("appending %s rows: %w", historyTab, err)
	}

	return nil
}

// formatHeader bolds and freezes the first row of the sheet.
func (w *SheetsWriter) formatHeader(ctx context.Context, sheetID int64, cols int64) error {
	reqs := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   cols,
				},
				Cell: &sheets.CellData{UserEnteredFormat: &sheets.CellFormat{
					BackgroundColor:     &sheets.Color{Red: 0.851, Green: 0.918, Blue: 0.827},
					TextFormat:          &sheets.TextFormat{Bold: true},
					HorizontalAlignment: "CENTER",
				}},
				Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
			},
		},
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	_, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: reqs},
	).Context(ctx).Do()
	return err
}

// ensureSheets creates any of the named sheets that do not already exist and
// returns the sheet ids by title.
func (w *SheetsWriter) ensureSheets(ctx context.Context, names ...string) (map[string]int64, error) {
	spreadsheet, err := w.svc.Spreadsheets.Get(w.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("getting spreadsheet metadata: %w", err)
	}

	ids := make(map[string]int64, len(spreadsheet.Sheets))
	for _, s := range spreadsheet.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetId
	}

	var requests []*sheets.Request
	for _, name := range names {
		if _, ok := ids[name]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: name},
				},
			})
		}
	}

	if len(requests) == 0 {
		return ids, nil
	}

	resp, err := w.svc.Spreadsheets.BatchUpdate(
		w.spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests},
	).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating sheets: %w", err)
	}
	for _, r := range resp.Replies {
		if r.AddSheet != nil && r.AddSheet.Properties != nil {
			ids[r.AddSheet.Properties.Title] = r.AddSheet.Properties.SheetId
		}
	}

	return ids, nil
}
