package model

import (
	"fmt"
	"strconv"
	"strings"
)

// CellRef addresses the member slots of one task row in a tasks sheet:
// which sheet, which row, and the candidate columns. Rows are 1-based,
// columns are 0-based sheet columns (member slots start at column 2,
// after the date and time columns).
type CellRef struct {
	SheetIndex int
	Row        int
	Cols       []int
}

// Encode serializes the reference as "sheetIndex:row:col[,col...]",
// compact enough to ride inside a swap token or a button payload.
func (r CellRef) Encode() string {
	cols := make([]string, len(r.Cols))
	for i, c := range r.Cols {
		cols[i] = strconv.Itoa(c)
	}
	return fmt.Sprintf("%d:%d:%s", r.SheetIndex, r.Row, strings.Join(cols, ","))
}

// ParseCellRef parses the Encode format back into a CellRef.
func ParseCellRef(s string) (CellRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return CellRef{}, fmt.Errorf("malformed cell ref %q", s)
	}

	sheetIndex, err := strconv.Atoi(parts[0])
	if err != nil {
		return CellRef{}, fmt.Errorf("malformed sheet index in cell ref %q: %w", s, err)
	}
	row, err := strconv.Atoi(parts[1])
	if err != nil {
		return CellRef{}, fmt.Errorf("malformed row in cell ref %q: %w", s, err)
	}

	colParts := strings.Split(parts[2], ",")
	cols := make([]int, 0, len(colParts))
	for _, p := range colParts {
		if p == "" {
			continue
		}
		col, err := strconv.Atoi(p)
		if err != nil {
			return CellRef{}, fmt.Errorf("malformed column in cell ref %q: %w", s, err)
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return CellRef{}, fmt.Errorf("cell ref %q has no columns", s)
	}

	return CellRef{SheetIndex: sheetIndex, Row: row, Cols: cols}, nil
}
