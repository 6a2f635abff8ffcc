package sheetsclient

import (
	"context"
	"fmt"

	"google.golang.org/api/sheets/v4"
)

// GetAllRows reads every populated row of a tab as strings. Cells the
// API returns as other value types are rendered with %v.
func (c *Client) GetAllRows(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get values for sheet %s: %w", sheet, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprintf("%v", cell)
		}
		rows[i] = cells
	}

	return rows, nil
}

// SetCell writes a single cell. Row and column are 1-based.
func (c *Client) SetCell(ctx context.Context, sheet string, row, col int, value string) error {
	cellRange := fmt.Sprintf("%s!%s%d", sheet, columnLetter(col), row)
	valueRange := &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}

	_, err := c.service.Spreadsheets.Values.Update(c.spreadsheetID, cellRange, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update cell %s: %w", cellRange, err)
	}

	return nil
}

// SheetIndex returns the position of the named tab within the spreadsheet.
func (c *Client) SheetIndex(ctx context.Context, name string) (int, error) {
	byTitle, _, err := c.metadata(ctx)
	if err != nil {
		return 0, err
	}

	index, ok := byTitle[name]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet", name)
	}
	return index, nil
}

// SheetTitle returns the tab name at the given position.
func (c *Client) SheetTitle(ctx context.Context, index int) (string, error) {
	_, byIndex, err := c.metadata(ctx)
	if err != nil {
		return "", err
	}

	title, ok := byIndex[index]
	if !ok {
		return "", fmt.Errorf("no sheet at index %d", index)
	}
	return title, nil
}

// CellValue reads a single cell by sheet index. Row and column are 1-based.
func (c *Client) CellValue(ctx context.Context, sheetIndex, row, col int) (string, error) {
	title, err := c.SheetTitle(ctx, sheetIndex)
	if err != nil {
		return "", err
	}

	cellRange := fmt.Sprintf("%s!%s%d", title, columnLetter(col), row)
	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, cellRange).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get cell %s: %w", cellRange, err)
	}

	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return "", nil
	}
	return fmt.Sprintf("%v", resp.Values[0][0]), nil
}

// UpdateCell writes a single cell by sheet index. Row and column are 1-based.
func (c *Client) UpdateCell(ctx context.Context, sheetIndex, row, col int, value string) error {
	title, err := c.SheetTitle(ctx, sheetIndex)
	if err != nil {
		return err
	}
	return c.SetCell(ctx, title, row, col, value)
}

// RefreshMetadata drops the cached tab list so the next lookup refetches
// it. Needed only when tabs are added or reordered while running.
func (c *Client) RefreshMetadata() {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.indexByTitle = nil
	c.titleByIndex = nil
}

func (c *Client) metadata(ctx context.Context) (map[string]int, map[int]string, error) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	if c.indexByTitle != nil {
		return c.indexByTitle, c.titleByIndex, nil
	}

	spreadsheet, err := c.service.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get spreadsheet metadata: %w", err)
	}

	byTitle := make(map[string]int, len(spreadsheet.Sheets))
	byIndex := make(map[int]string, len(spreadsheet.Sheets))
	for i, sheet := range spreadsheet.Sheets {
		byTitle[sheet.Properties.Title] = i
		byIndex[i] = sheet.Properties.Title
	}

	c.indexByTitle = byTitle
	c.titleByIndex = byIndex
	return byTitle, byIndex, nil
}

// columnLetter converts a 1-based column number to its A1 notation letters.
func columnLetter(col int) string {
	letters := ""
	for col > 0 {
		col--
		letters = string(rune('A'+col%26)) + letters
		col /= 26
	}
	return letters
}
